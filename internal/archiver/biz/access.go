package biz

import (
	"context"
	"net/http"
	"strings"

	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
)

// FileEvent 文件事件（创建或读取）
type FileEvent struct {
	FileID FileID
	Path   string
	Method string // 读取事件的 HTTP 方法
	URI    string // 读取事件的请求 URI
}

// PinResult 批量置顶结果
type PinResult struct {
	Succeeded []FileID `json:"succeeded"`
	Failed    []FileID `json:"failed"`
}

var (
	trashPrefixes   = []string{"files_trashbin/", ".trash/"}
	ignoredReadURIs = []string{"/preview", "/thumbnail", "/avatar", "/core/preview"}
)

// AccessUseCase 访问记录业务逻辑
type AccessUseCase struct {
	access  AccessRepo
	storage Storage
	policy  Policy
	clock   Clock
	logger  *logger.Logger
}

func NewAccessUseCase(access AccessRepo, storage Storage, policy Policy, clock Clock, log *logger.Logger) *AccessUseCase {
	return &AccessUseCase{
		access:  access,
		storage: storage,
		policy:  policy.withDefaults(),
		clock:   clock,
		logger:  log.Named("access"),
	}
}

// Touch 记录一次访问；caller 非空时校验归属
func (uc *AccessUseCase) Touch(ctx context.Context, caller UserID, fileID FileID) error {
	owner, err := uc.ownedFile(ctx, caller, fileID)
	if err != nil {
		return err
	}
	return uc.access.Touch(ctx, fileID, owner, uc.clock.now())
}

// OnFileCreated 文件创建钩子
func (uc *AccessUseCase) OnFileCreated(ctx context.Context, ev FileEvent) error {
	if uc.ignoredPath(ev.Path) {
		return nil
	}
	return uc.touchEvent(ctx, ev)
}

// OnFileRead 文件读取钩子，仅跟踪 GET 且跳过预览、缩略图、头像请求
func (uc *AccessUseCase) OnFileRead(ctx context.Context, ev FileEvent) error {
	if ev.Method != "" && !strings.EqualFold(ev.Method, http.MethodGet) {
		return nil
	}
	for _, u := range ignoredReadURIs {
		if strings.Contains(ev.URI, u) {
			return nil
		}
	}
	if uc.ignoredPath(ev.Path) {
		return nil
	}
	return uc.touchEvent(ctx, ev)
}

func (uc *AccessUseCase) touchEvent(ctx context.Context, ev FileEvent) error {
	node, err := uc.storage.ResolveByID(ctx, ev.FileID)
	if err != nil {
		uc.logger.WithContext(ctx).Debug("ignore event for unresolved file", zap.Int64("file_id", int64(ev.FileID)), zap.Error(err))
		return nil
	}
	if node.IsDir() {
		return nil
	}
	return uc.access.Touch(ctx, node.ID, node.Owner, uc.clock.now())
}

func (uc *AccessUseCase) ignoredPath(p string) bool {
	p = strings.TrimLeft(p, "/")
	if uc.policy.IsPlaceholder(p) || uc.policy.InArchiveArea(p) {
		return true
	}
	for _, prefix := range trashPrefixes {
		if strings.HasPrefix(p, prefix) || strings.Contains(p, "/"+prefix) {
			return true
		}
	}
	return false
}

// Pin 批量置顶
func (uc *AccessUseCase) Pin(ctx context.Context, user UserID, ids []FileID) *PinResult {
	return uc.setPinned(ctx, user, ids, true)
}

// Unpin 批量取消置顶
func (uc *AccessUseCase) Unpin(ctx context.Context, user UserID, ids []FileID) *PinResult {
	return uc.setPinned(ctx, user, ids, false)
}

func (uc *AccessUseCase) setPinned(ctx context.Context, user UserID, ids []FileID, pinned bool) *PinResult {
	res := &PinResult{Succeeded: []FileID{}, Failed: []FileID{}}
	now := uc.clock.now()

	for _, id := range ids {
		owner, err := uc.ownedFile(ctx, user, id)
		if err == nil {
			err = uc.access.SetPinned(ctx, id, owner, pinned, now)
		}
		if err != nil {
			uc.logger.WithContext(ctx).Warn("set pin failed",
				zap.Int64("file_id", int64(id)),
				zap.Bool("pinned", pinned),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

// GetPinStatus 查询置顶状态，没有记录时为 false
func (uc *AccessUseCase) GetPinStatus(ctx context.Context, user UserID, id FileID) (bool, error) {
	if _, err := uc.ownedFile(ctx, user, id); err != nil {
		return false, err
	}
	rec, err := uc.access.Get(ctx, id)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.IsPinned, nil
}

// ListIdle lists unpinned records for operators.
func (uc *AccessUseCase) ListIdle(ctx context.Context, q IdleQuery) ([]*AccessRecord, error) {
	if q.Before.IsZero() {
		q.Before = uc.clock.now()
		q.InclusiveBefore = true
	}
	return uc.access.ListIdleUnpinned(ctx, q)
}

// ownedFile resolves the owner of id and checks it against caller.
func (uc *AccessUseCase) ownedFile(ctx context.Context, caller UserID, id FileID) (UserID, error) {
	owner, err := uc.storage.ResolveOwner(ctx, id)
	if err != nil {
		return "", err
	}
	if caller != "" && owner != caller {
		return "", ErrNotOwner
	}
	return owner, nil
}
