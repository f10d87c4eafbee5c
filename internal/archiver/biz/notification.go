package biz

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
)

// NotifyResult 文件归档预警扫描结果
type NotifyResult struct {
	Candidates   int `json:"candidates"`
	Notified     int `json:"notified"`
	Deduplicated int `json:"deduplicated"`
	Failed       int `json:"failed"`
}

// NotificationUseCase 通知与决策业务逻辑
type NotificationUseCase struct {
	access    AccessRepo
	decisions DecisionRepo
	storage   Storage
	notifier  Notifier
	tx        Transactor
	trigger   EvictionTrigger
	policy    Policy
	clock     Clock
	logger    *logger.Logger
}

func NewNotificationUseCase(access AccessRepo, decisions DecisionRepo, storage Storage, notifier Notifier,
	tx Transactor, policy Policy, clock Clock, log *logger.Logger) *NotificationUseCase {
	return &NotificationUseCase{
		access:    access,
		decisions: decisions,
		storage:   storage,
		notifier:  notifier,
		tx:        tx,
		policy:    policy.withDefaults(),
		clock:     clock,
		logger:    log.Named("notification"),
	}
}

// SetEvictionTrigger wires the scheduler used by archive_now decisions.
func (uc *NotificationUseCase) SetEvictionTrigger(t EvictionTrigger) {
	uc.trigger = t
}

// DaysUntilArchive = clamp(ceil((lastAccessed + IdleThreshold - now) / day), 1, LeadDays)
func (uc *NotificationUseCase) DaysUntilArchive(lastAccessed, now time.Time) int {
	remaining := lastAccessed.Add(uc.policy.IdleThreshold).Sub(now)
	days := int(math.Ceil(remaining.Hours() / 24))
	if days < 1 {
		days = 1
	}
	if lead := uc.policy.LeadDays(); days > lead {
		days = lead
	}
	return days
}

// NotifyIdleFiles 通知即将被归档的文件（空闲 23~30 天）
func (uc *NotificationUseCase) NotifyIdleFiles(ctx context.Context) (*NotifyResult, error) {
	now := uc.clock.now()
	log := uc.logger.WithContext(ctx)
	q := IdleQuery{
		Before:          now.Add(-uc.policy.NotifyAfter()),
		InclusiveBefore: true,
		After:           now.Add(-uc.policy.IdleThreshold),
		Limit:           uc.policy.SweepPageSize,
	}

	res := &NotifyResult{}
	for {
		page, err := uc.access.ListIdleUnpinned(ctx, q)
		if err != nil {
			return res, err
		}
		for _, rec := range page {
			res.Candidates++
			sent, err := uc.notifyFile(ctx, rec, now)
			switch {
			case err != nil:
				res.Failed++
				log.Warn("notify file failed", zap.Int64("file_id", int64(rec.FileID)), zap.Error(err))
			case sent:
				res.Notified++
			default:
				res.Deduplicated++
			}
		}
		if len(page) < q.Limit {
			break
		}
		q.Cursor = NextCursor(page)
	}

	log.Info("archive warnings sent",
		zap.Int("candidates", res.Candidates),
		zap.Int("notified", res.Notified),
		zap.Int("deduplicated", res.Deduplicated),
	)
	return res, nil
}

func (uc *NotificationUseCase) notifyFile(ctx context.Context, rec *AccessRecord, now time.Time) (bool, error) {
	node, err := uc.storage.ResolveByID(ctx, rec.FileID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if node.IsDir() {
		return false, nil
	}

	user := rec.OwnerID
	if user == "" {
		user = node.Owner
	}

	recent, err := uc.decisions.HasNotifiedSince(ctx, rec.FileID, user, "", now.Add(-uc.policy.DedupWindow))
	if err != nil || recent {
		return false, err
	}

	days := uc.DaysUntilArchive(rec.LastAccessed, now)
	err = uc.notifier.Notify(ctx, &Notification{
		Key:       FileNoticeKey(user, rec.FileID),
		Params:    map[string]interface{}{"file": node.Path, "days": days},
		CreatedAt: now,
	})
	if err != nil {
		return false, err
	}

	err = uc.decisions.Create(ctx, &DecisionRecord{
		FileID:     rec.FileID,
		UserID:     user,
		FilePath:   node.Path,
		Decision:   DecisionPending,
		NotifiedAt: now,
	})
	return err == nil, err
}

// WarnStorage 发送存储空间警告，24 小时内同一账户只发一次
func (uc *NotificationUseCase) WarnStorage(ctx context.Context, user UserID, usage Usage) (bool, error) {
	now := uc.clock.now()
	recent, err := uc.decisions.HasNotifiedSince(ctx, AccountFileID, user, DecisionStorageWarningPending, now.Add(-uc.policy.DedupWindow))
	if err != nil || recent {
		return false, err
	}

	err = uc.notifier.Notify(ctx, &Notification{
		Key: StorageNoticeKey(user),
		Params: map[string]interface{}{
			"usage_percent": usage.Percent(),
			"used":          usage.Used,
			"quota":         usage.Quota,
		},
		CreatedAt: now,
	})
	if err != nil {
		return false, err
	}

	err = uc.decisions.Create(ctx, &DecisionRecord{
		FileID:     AccountFileID,
		UserID:     user,
		FilePath:   StorageWarningPath,
		Decision:   DecisionStorageWarningPending,
		NotifiedAt: now,
	})
	return err == nil, err
}

var (
	fileDecisions    = map[Decision]bool{DecisionExtend: true, DecisionExtend7Days: true, DecisionIgnore: true}
	accountDecisions = map[Decision]bool{DecisionIgnore: true, DecisionArchiveNow: true, DecisionSkipArchive: true}
)

// ValidateDecision 校验决策与 fileId 的组合
func ValidateDecision(fileID FileID, d Decision) error {
	if fileID == AccountFileID {
		if !accountDecisions[d] {
			return ErrInvalidDecision
		}
		return nil
	}
	if fileID < 0 || !fileDecisions[d] {
		return ErrInvalidDecision
	}
	return nil
}

// RecordDecision 记录用户决策
//
// 文件决策会重置 last_accessed（extend -> now，extend_7days -> now-16d），
// 账户决策 archive_now 会立即触发一次驱逐。
func (uc *NotificationUseCase) RecordDecision(ctx context.Context, user UserID, fileID FileID, d Decision) (*DecisionRecord, error) {
	if err := ValidateDecision(fileID, d); err != nil {
		return nil, err
	}
	now := uc.clock.now()

	pendingKind := DecisionPending
	filePath := ""
	key := FileNoticeKey(user, fileID)
	if fileID == AccountFileID {
		pendingKind = DecisionStorageWarningPending
		filePath = StorageWarningPath
		key = StorageNoticeKey(user)
	} else {
		node, err := uc.storage.ResolveByID(ctx, fileID)
		if err != nil {
			return nil, err
		}
		if node.Owner != user {
			return nil, ErrNotOwner
		}
		filePath = node.Path
	}

	var record *DecisionRecord
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		switch d {
		case DecisionExtend:
			if err := uc.access.Touch(ctx, fileID, user, now); err != nil {
				return err
			}
		case DecisionExtend7Days:
			if err := uc.access.Touch(ctx, fileID, user, now.Add(-uc.policy.ExtendSevenDaysBackdate())); err != nil {
				return err
			}
		}

		var err error
		record, err = uc.decisions.Transition(ctx, fileID, user, pendingKind, d, filePath, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log := uc.logger.WithContext(ctx).With(
		zap.String("user", string(user)),
		zap.Int64("file_id", int64(fileID)),
		zap.String("decision", string(d)),
	)
	if err := uc.notifier.Dismiss(ctx, key); err != nil {
		log.Warn("dismiss notification failed", zap.Error(err))
	}

	if d == DecisionArchiveNow {
		if uc.trigger == nil || !uc.trigger.TriggerEviction(ctx, user) {
			log.Info("eviction already running or no scheduler, archive_now recorded only")
		}
	}

	log.Info("decision recorded")
	return record, nil
}

// Statistics 用户决策统计（不含 pending）
func (uc *NotificationUseCase) Statistics(ctx context.Context, user UserID) (*DecisionStatistics, error) {
	return uc.decisions.Statistics(ctx, user)
}
