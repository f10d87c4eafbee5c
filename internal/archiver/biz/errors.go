package biz

import (
	"errors"
	"fmt"
)

// 归档相关错误
var (
	ErrNotFound             = errors.New("not_found")
	ErrInvalidPlaceholder   = errors.New("invalid_placeholder")
	ErrExtractionMismatch   = errors.New("extraction_mismatch")
	ErrStorageQuotaExceeded = errors.New("storage_quota_exceeded")
	ErrIOFailure            = errors.New("io_failure")
	ErrAlreadyExists        = errors.New("already_exists")
	ErrCompressionNotUseful = errors.New("compression_not_beneficial")
)

// 决策相关错误
var (
	ErrInvalidDecision = errors.New("invalid_argument")
	ErrNotOwner        = errors.New("not_owner")
)

// ErrTaskBusy is returned when a non-reentrant task is already running.
var ErrTaskBusy = errors.New("task_busy")

// QuotaExceededError 恢复准入检查失败时返回的结构化错误
type QuotaExceededError struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
	Quota     int64 `json:"quota"`
	Used      int64 `json:"used"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("storage_quota_exceeded: required %d bytes, available %d bytes (quota %d, used %d)",
		e.Required, e.Available, e.Quota, e.Used)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrStorageQuotaExceeded
}

// ioFailure tags err as an io_failure while keeping its own chain.
func ioFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIOFailure, err)
}
