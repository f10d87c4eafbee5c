package biz

import (
	"context"
	"time"
)

// Storage 文件存储协作方
//
// Resolve* 在节点不存在时返回 ErrNotFound，Create 在路径已被占用时返回 ErrAlreadyExists。
type Storage interface {
	ResolveByID(ctx context.Context, id FileID) (*Node, error)
	ResolveByPath(ctx context.Context, owner UserID, path string) (*Node, error)
	ResolveOwner(ctx context.Context, id FileID) (UserID, error)
	// ResolveParent returns the directory holding id; top-level nodes get
	// the account root (Path "").
	ResolveParent(ctx context.Context, id FileID) (*Node, error)
	Read(ctx context.Context, id FileID) ([]byte, error)
	Create(ctx context.Context, owner UserID, path string, data []byte) (*Node, error)
	Delete(ctx context.Context, id FileID) error
	// FolderSize sums file sizes under prefix; "" is the whole account.
	FolderSize(ctx context.Context, owner UserID, prefix string) (int64, error)
	QuotaString(ctx context.Context, owner UserID) (string, error)
	Accounts(ctx context.Context) ([]UserID, error)
}

// Codec 压缩编解码
type Codec interface {
	// Compress packs data as a single entry called name.
	Compress(name string, data []byte) ([]byte, error)
	// UncompressedSize reads sizes from the archive directory without inflating.
	UncompressedSize(artifact []byte) (int64, error)
	// Extract writes every entry below dir.
	Extract(artifact []byte, dir string) error
}

// AccessRepo 访问记录仓储
type AccessRepo interface {
	// Touch upserts last_accessed and never changes is_pinned.
	Touch(ctx context.Context, fileID FileID, owner UserID, at time.Time) error
	// SetPinned creates the record with last_accessed=at when absent.
	SetPinned(ctx context.Context, fileID FileID, owner UserID, pinned bool, at time.Time) error
	// Get returns nil, nil when there is no record.
	Get(ctx context.Context, fileID FileID) (*AccessRecord, error)
	Remove(ctx context.Context, fileID FileID) error
	ListIdleUnpinned(ctx context.Context, q IdleQuery) ([]*AccessRecord, error)
}

// DecisionRepo 决策记录仓储
type DecisionRepo interface {
	// HasNotifiedSince 检查 since 之后是否已通知过；decision 为空时不限决策类型
	HasNotifiedSince(ctx context.Context, fileID FileID, userID UserID, decision Decision, since time.Time) (bool, error)
	Create(ctx context.Context, record *DecisionRecord) error
	// Transition moves the newest undecided record of kind pendingKind to
	// decision in place, or appends a terminal record when none exists.
	Transition(ctx context.Context, fileID FileID, userID UserID, pendingKind, decision Decision, filePath string, at time.Time) (*DecisionRecord, error)
	// LatestDecided returns nil, nil when no such decision was recorded.
	LatestDecided(ctx context.Context, fileID FileID, userID UserID, decision Decision) (*DecisionRecord, error)
	Statistics(ctx context.Context, userID UserID) (*DecisionStatistics, error)
}

// Transactor runs fn inside one database transaction carried by ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EvictionTrigger starts an eviction run for one account without waiting.
// It reports false when a run for that account is already in flight.
type EvictionTrigger interface {
	TriggerEviction(ctx context.Context, user UserID) bool
}

// Clock 便于测试替换时间
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
