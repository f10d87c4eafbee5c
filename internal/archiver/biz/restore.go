package biz

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
)

// RestoreResult 恢复结果
type RestoreResult struct {
	FileID          FileID `json:"file_id"`
	Path            string `json:"path"`
	Size            int64  `json:"size"`
	ArtifactRemoved bool   `json:"artifact_removed"`
}

// RestoreUseCase 占位文件恢复业务逻辑
type RestoreUseCase struct {
	storage Storage
	codec   Codec
	access  AccessRepo
	policy  Policy
	clock   Clock
	tempDir string
	logger  *logger.Logger
}

func NewRestoreUseCase(storage Storage, codec Codec, access AccessRepo, policy Policy, clock Clock, log *logger.Logger) *RestoreUseCase {
	return &RestoreUseCase{
		storage: storage,
		codec:   codec,
		access:  access,
		policy:  policy.withDefaults(),
		clock:   clock,
		logger:  log.Named("restore"),
	}
}

// SetTempDir sets the parent of per-restore scratch directories; "" uses os.TempDir.
func (uc *RestoreUseCase) SetTempDir(dir string) {
	uc.tempDir = dir
}

// Restore 根据占位文件恢复原文件
//
// caller 为空表示系统调用（CLI），否则校验占位文件属于 caller。
func (uc *RestoreUseCase) Restore(ctx context.Context, caller UserID, placeholderID FileID) (*RestoreResult, error) {
	log := uc.logger.WithContext(ctx).With(zap.Int64("placeholder_id", int64(placeholderID)))

	holder, err := uc.storage.ResolveByID(ctx, placeholderID)
	if err != nil {
		return nil, err
	}
	if caller != "" && holder.Owner != caller {
		return nil, ErrNotOwner
	}
	if holder.IsDir() || !uc.policy.IsPlaceholder(holder.Name) {
		return nil, ErrInvalidPlaceholder
	}

	raw, err := uc.storage.Read(ctx, holder.ID)
	if err != nil {
		return nil, ioFailure("read placeholder", err)
	}
	ph, err := DecodePlaceholder(raw)
	if err != nil {
		return nil, err
	}
	if ph.Owner != holder.Owner {
		return nil, ErrInvalidPlaceholder
	}

	artifact, err := uc.resolveArtifact(ctx, ph)
	if err != nil {
		return nil, err
	}

	if _, err := uc.storage.ResolveByPath(ctx, ph.Owner, ph.OriginalPath); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, ioFailure("check original path", err)
	}

	packed, err := uc.storage.Read(ctx, artifact.ID)
	if err != nil {
		return nil, ioFailure("read artifact", err)
	}

	required, err := uc.codec.UncompressedSize(packed)
	if err != nil {
		log.Warn("read artifact directory failed", zap.Error(err))
		return nil, ErrExtractionMismatch
	}
	if err := uc.admit(ctx, ph.Owner, required); err != nil {
		return nil, err
	}

	data, err := uc.extract(packed, ph.OriginalName)
	if err != nil {
		return nil, err
	}

	restored, err := uc.storage.Create(ctx, ph.Owner, ph.OriginalPath, data)
	if err != nil {
		return nil, ioFailure("recreate file", err)
	}
	if err := uc.storage.Delete(ctx, holder.ID); err != nil {
		log.Warn("delete placeholder failed", zap.Error(err))
	}

	res := &RestoreResult{FileID: restored.ID, Path: restored.Path, Size: int64(len(data))}
	if err := uc.storage.Delete(ctx, artifact.ID); err != nil {
		log.Warn("delete artifact failed", zap.String("artifact", artifact.Path), zap.Error(err))
	} else {
		res.ArtifactRemoved = true
	}

	if err := uc.access.Touch(ctx, restored.ID, ph.Owner, uc.clock.now()); err != nil {
		log.Warn("touch restored file failed", zap.Error(err))
	}

	log.Info("file restored",
		zap.String("owner", string(ph.Owner)),
		zap.String("path", restored.Path),
		zap.Int64("size", res.Size),
	)
	return res, nil
}

func (uc *RestoreUseCase) resolveArtifact(ctx context.Context, ph *Placeholder) (*Node, error) {
	if ph.ArchivedFileID > 0 {
		node, err := uc.storage.ResolveByID(ctx, ph.ArchivedFileID)
		if err == nil && !node.IsDir() && node.Owner == ph.Owner {
			return node, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, ioFailure("resolve artifact", err)
		}
	}
	if ph.ArchivedPath == "" {
		return nil, ErrNotFound
	}
	node, err := uc.storage.ResolveByPath(ctx, ph.Owner, ph.ArchivedPath)
	if err != nil {
		return nil, err
	}
	if node.IsDir() {
		return nil, ErrNotFound
	}
	return node, nil
}

// admit 准入检查：required > available*(1+buffer) 时拒绝
func (uc *RestoreUseCase) admit(ctx context.Context, owner UserID, required int64) error {
	usage, err := UsageOf(ctx, uc.storage, owner)
	if err != nil {
		return ioFailure("read usage", err)
	}
	if usage.Unlimited {
		return nil
	}

	allowed := float64(usage.Free) * (1 + uc.policy.RestoreBuffer)
	if float64(required) > math.Floor(allowed) {
		return &QuotaExceededError{
			Required:  required,
			Available: usage.Free,
			Quota:     usage.Quota,
			Used:      usage.Used,
		}
	}
	return nil
}

// extract unpacks into a private scratch directory removed on every path.
func (uc *RestoreUseCase) extract(packed []byte, name string) ([]byte, error) {
	dir, err := os.MkdirTemp(uc.tempDir, "archiver-restore-*")
	if err != nil {
		return nil, ioFailure("create temp dir", err)
	}
	defer os.RemoveAll(dir)

	if err := uc.codec.Extract(packed, dir); err != nil {
		return nil, ErrExtractionMismatch
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrExtractionMismatch
	}
	if err != nil {
		return nil, ioFailure("read extracted file", err)
	}
	return data, nil
}
