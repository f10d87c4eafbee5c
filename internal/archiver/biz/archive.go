package biz

import (
	"context"
	"errors"

	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
)

// Outcome 单个文件归档结果
type Outcome int

const (
	OutcomeArchived Outcome = iota
	OutcomeSkipped
	OutcomeOrphaned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeArchived:
		return "archived"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "orphaned"
	}
}

// Skip reasons.
const (
	SkipDirectory       = "directory"
	SkipInArchiveArea   = "in_archive_area"
	SkipPlaceholder     = "placeholder"
	SkipAlreadyArchived = "already_archived"
)

// ArchiveResult 描述一次 ArchiveOne 调用
type ArchiveResult struct {
	FileID       FileID
	Owner        UserID
	Path         string
	Outcome      Outcome
	SkipReason   string
	OriginalSize int64
	ArtifactSize int64
	ArtifactID   FileID
	DeletedFirst bool
}

// ArchiveOptions 归档选项
type ArchiveOptions struct {
	// CheckHeadroom compares the artifact size with the owner's free quota
	// and deletes the original before the upload when space is short.
	CheckHeadroom bool
}

// SweepResult 空闲归档扫描汇总
type SweepResult struct {
	Processed int `json:"processed"`
	Archived  int `json:"archived"`
	Skipped   int `json:"skipped"`
	Orphaned  int `json:"orphaned"`
	Failed    int `json:"failed"`

	// ArchivedBytes is the original size of everything archived.
	ArchivedBytes int64 `json:"archived_bytes"`
}

// ArchiveUseCase 归档业务逻辑
type ArchiveUseCase struct {
	storage Storage
	codec   Codec
	access  AccessRepo
	policy  Policy
	clock   Clock
	logger  *logger.Logger
}

func NewArchiveUseCase(storage Storage, codec Codec, access AccessRepo, policy Policy, clock Clock, log *logger.Logger) *ArchiveUseCase {
	return &ArchiveUseCase{
		storage: storage,
		codec:   codec,
		access:  access,
		policy:  policy.withDefaults(),
		clock:   clock,
		logger:  log.Named("archive"),
	}
}

func (uc *ArchiveUseCase) Policy() Policy {
	return uc.policy
}

// Sweep archives every unpinned file idle for longer than IdleThreshold.
// Per-file errors are logged and counted; only a ledger read failure aborts.
func (uc *ArchiveUseCase) Sweep(ctx context.Context) (*SweepResult, error) {
	now := uc.clock.now()
	q := IdleQuery{
		Before: now.Add(-uc.policy.IdleThreshold),
		Limit:  uc.policy.SweepPageSize,
	}

	log := uc.logger.WithContext(ctx)
	log.Info("idle sweep started", zap.Time("idle_before", q.Before))

	res := &SweepResult{}
	for {
		page, err := uc.access.ListIdleUnpinned(ctx, q)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}

		for _, rec := range page {
			res.Processed++
			out, err := uc.ArchiveOne(ctx, rec.FileID, ArchiveOptions{})
			if err != nil {
				res.Failed++
				log.Error("archive file failed", zap.Int64("file_id", int64(rec.FileID)), zap.Error(err))
				continue
			}
			switch out.Outcome {
			case OutcomeArchived:
				res.Archived++
				res.ArchivedBytes += out.OriginalSize
			case OutcomeSkipped:
				res.Skipped++
			case OutcomeOrphaned:
				res.Orphaned++
			}
		}

		if len(page) < q.Limit {
			break
		}
		q.Cursor = NextCursor(page)
	}

	log.Info("idle sweep finished",
		zap.Int("processed", res.Processed),
		zap.Int("archived", res.Archived),
		zap.Int("skipped", res.Skipped),
		zap.Int("orphaned", res.Orphaned),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// ArchiveOne 归档单个文件
//
// 顺序：压缩 -> 上传归档包 -> 删除原文件 -> 写占位文件 -> 删除访问记录。
// 只有在 CheckHeadroom 且剩余空间放不下归档包时，才会先删除原文件。
func (uc *ArchiveUseCase) ArchiveOne(ctx context.Context, fileID FileID, opts ArchiveOptions) (*ArchiveResult, error) {
	log := uc.logger.WithContext(ctx).With(zap.Int64("file_id", int64(fileID)))
	res := &ArchiveResult{FileID: fileID}

	node, err := uc.storage.ResolveByID(ctx, fileID)
	if errors.Is(err, ErrNotFound) {
		log.Debug("file no longer exists, dropping access record")
		res.Outcome = OutcomeOrphaned
		return res, uc.forget(ctx, fileID)
	}
	if err != nil {
		return nil, ioFailure("resolve file", err)
	}
	res.Owner, res.Path = node.Owner, node.Path

	switch {
	case node.IsDir():
		return uc.skip(ctx, res, SkipDirectory)
	case uc.policy.InArchiveArea(node.Path):
		return uc.skip(ctx, res, SkipInArchiveArea)
	case uc.policy.IsPlaceholder(node.Name):
		return uc.skip(ctx, res, SkipPlaceholder)
	}

	artifactPath := uc.policy.ArtifactPath(node.Name)
	_, err = uc.storage.ResolveByPath(ctx, node.Owner, artifactPath)
	if err == nil {
		return uc.skip(ctx, res, SkipAlreadyArchived)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, ioFailure("check artifact", err)
	}

	parent, err := uc.storage.ResolveParent(ctx, node.ID)
	if err != nil {
		return nil, ioFailure("resolve parent", err)
	}

	data, err := uc.storage.Read(ctx, node.ID)
	if err != nil {
		return nil, ioFailure("read file", err)
	}
	artifact, err := uc.codec.Compress(node.Name, data)
	if err != nil {
		return nil, ioFailure("compress", err)
	}
	res.OriginalSize = int64(len(data))
	res.ArtifactSize = int64(len(artifact))

	if opts.CheckHeadroom {
		usage, err := UsageOf(ctx, uc.storage, node.Owner)
		if err != nil {
			return nil, ioFailure("read usage", err)
		}
		if !usage.Unlimited && usage.Free < res.ArtifactSize {
			if res.ArtifactSize >= res.OriginalSize {
				log.Warn("artifact larger than original, refusing to archive",
					zap.Int64("original", res.OriginalSize),
					zap.Int64("artifact", res.ArtifactSize),
				)
				return nil, ioFailure("headroom check", ErrCompressionNotUseful)
			}
			if err := uc.storage.Delete(ctx, node.ID); err != nil {
				return nil, ioFailure("delete original", err)
			}
			res.DeletedFirst = true
			log.Info("deleted original before upload to free space", zap.Int64("free", usage.Free))
		}
	}

	stored, err := uc.storage.Create(ctx, node.Owner, artifactPath, artifact)
	if err != nil {
		if res.DeletedFirst {
			if _, rerr := uc.storage.Create(ctx, node.Owner, node.Path, data); rerr != nil {
				log.Error("put original back failed", zap.Error(rerr))
			}
		}
		return nil, ioFailure("upload artifact", err)
	}
	res.ArtifactID = stored.ID

	if !res.DeletedFirst {
		if err := uc.storage.Delete(ctx, node.ID); err != nil {
			uc.discard(ctx, stored.ID)
			return nil, ioFailure("delete original", err)
		}
	}

	placeholder, err := EncodePlaceholder(&Placeholder{
		OriginalName:   node.Name,
		ArchivedAt:     uc.clock.now(),
		ArchivedFileID: stored.ID,
		ArchivedPath:   stored.Path,
		OriginalPath:   node.Path,
		Owner:          node.Owner,
	})
	if err == nil {
		_, err = uc.storage.Create(ctx, node.Owner, uc.policy.PlaceholderPath(parent.Path, node.Name), placeholder)
	}
	if err != nil {
		// 占位文件写失败时回滚，否则归档包将无法被找回
		if _, rerr := uc.storage.Create(ctx, node.Owner, node.Path, data); rerr != nil {
			log.Error("put original back failed, artifact kept", zap.String("artifact", stored.Path), zap.Error(rerr))
		} else {
			uc.discard(ctx, stored.ID)
		}
		return nil, ioFailure("write placeholder", err)
	}

	if err := uc.forget(ctx, fileID); err != nil {
		log.Warn("remove access record failed", zap.Error(err))
	}

	res.Outcome = OutcomeArchived
	log.Info("file archived",
		zap.String("owner", string(node.Owner)),
		zap.String("path", node.Path),
		zap.Int64("original", res.OriginalSize),
		zap.Int64("artifact", res.ArtifactSize),
	)
	return res, nil
}

func (uc *ArchiveUseCase) skip(ctx context.Context, res *ArchiveResult, reason string) (*ArchiveResult, error) {
	res.Outcome = OutcomeSkipped
	res.SkipReason = reason
	uc.logger.WithContext(ctx).Debug("file skipped",
		zap.Int64("file_id", int64(res.FileID)),
		zap.String("reason", reason),
	)
	return res, uc.forget(ctx, res.FileID)
}

func (uc *ArchiveUseCase) forget(ctx context.Context, fileID FileID) error {
	if err := uc.access.Remove(ctx, fileID); err != nil {
		return ioFailure("remove access record", err)
	}
	return nil
}

func (uc *ArchiveUseCase) discard(ctx context.Context, id FileID) {
	if err := uc.storage.Delete(ctx, id); err != nil {
		uc.logger.WithContext(ctx).Warn("delete artifact failed", zap.Int64("artifact_id", int64(id)), zap.Error(err))
	}
}

// UsageOf 计算账户存储使用情况
func UsageOf(ctx context.Context, storage Storage, owner UserID) (Usage, error) {
	used, err := storage.FolderSize(ctx, owner, "")
	if err != nil {
		return Usage{}, err
	}
	quotaStr, err := storage.QuotaString(ctx, owner)
	if err != nil {
		return Usage{}, err
	}
	quota, unlimited := ParseQuota(quotaStr)
	return NewUsage(used, quota, unlimited), nil
}
