package service

import (
	"errors"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	apperrors "github.com/lk2023060901/auto-archiver/internal/pkg/errors"
)

var codeOf = []struct {
	err  error
	code int
}{
	{biz.ErrNotFound, apperrors.ErrArchiveNotFound},
	{biz.ErrInvalidPlaceholder, apperrors.ErrArchiveInvalidPlaceholder},
	{biz.ErrExtractionMismatch, apperrors.ErrArchiveExtractionMismatch},
	{biz.ErrAlreadyExists, apperrors.ErrArchiveAlreadyExists},
	{biz.ErrInvalidDecision, apperrors.ErrArchiveInvalidDecision},
	{biz.ErrNotOwner, apperrors.ErrArchiveNotOwner},
	{biz.ErrTaskBusy, apperrors.ErrArchiveBusy},
	{biz.ErrIOFailure, apperrors.ErrArchiveIOFailure},
}

// toAppError 将领域错误映射为带错误码的 AppError
//
// 服务端错误不向调用方暴露底层细节。
func toAppError(err error) *apperrors.AppError {
	var qe *biz.QuotaExceededError
	if errors.As(err, &qe) {
		return apperrors.Wrap(err, apperrors.ErrArchiveQuotaExceeded, "storage_quota_exceeded").WithData(qe)
	}

	for _, m := range codeOf {
		if !errors.Is(err, m.err) {
			continue
		}
		if apperrors.GetHTTPStatus(m.code) >= 500 {
			return apperrors.New(m.code)
		}
		return apperrors.Wrap(err, m.code, m.err.Error())
	}
	return apperrors.New(apperrors.ErrInternalServer)
}
