package biz

import (
	"context"

	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"go.uber.org/zap"
)

// Eviction stop reasons.
const (
	StopBelowThreshold  = "below_threshold"
	StopNoCandidates    = "no_candidates"
	StopTooManyFailures = "too_many_failures"
	StopNoProgress      = "no_progress"
	StopMaxIterations   = "max_iterations"
	StopSkippedByUser   = "skip_archive"
	StopUnderThreshold  = "under_threshold"
	StopUnlimitedQuota  = "unlimited_quota"
)

// EvictionReport 单个账户的驱逐结果
type EvictionReport struct {
	User          UserID `json:"user"`
	Before        Usage  `json:"before"`
	After         Usage  `json:"after"`
	WarningSent   bool   `json:"warning_sent"`
	Iterations    int    `json:"iterations"`
	Archived      int    `json:"archived"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	ArchivedBytes int64  `json:"archived_bytes"`
	StopReason    string `json:"stop_reason"`
}

// EvictionSummary 一次全量配额检查的汇总
type EvictionSummary struct {
	AccountsChecked int               `json:"accounts_checked"`
	OverThreshold   int               `json:"over_threshold"`
	AccountsFailed  int               `json:"accounts_failed"`
	Archived        int               `json:"archived"`
	Reports         []*EvictionReport `json:"reports"`
}

// EvictionUseCase 配额驱逐业务逻辑
type EvictionUseCase struct {
	archiver  *ArchiveUseCase
	storage   Storage
	access    AccessRepo
	decisions DecisionRepo
	notices   *NotificationUseCase
	policy    Policy
	clock     Clock
	logger    *logger.Logger
}

func NewEvictionUseCase(archiver *ArchiveUseCase, storage Storage, access AccessRepo, decisions DecisionRepo,
	notices *NotificationUseCase, clock Clock, log *logger.Logger) *EvictionUseCase {
	return &EvictionUseCase{
		archiver:  archiver,
		storage:   storage,
		access:    access,
		decisions: decisions,
		notices:   notices,
		policy:    archiver.Policy(),
		clock:     clock,
		logger:    log.Named("eviction"),
	}
}

// Run checks every account once.
func (uc *EvictionUseCase) Run(ctx context.Context) (*EvictionSummary, error) {
	accounts, err := uc.storage.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	summary := &EvictionSummary{}
	for _, user := range accounts {
		summary.AccountsChecked++
		report, err := uc.CheckAccount(ctx, user)
		if err != nil {
			summary.AccountsFailed++
			uc.logger.WithContext(ctx).Error("quota check failed", zap.String("user", string(user)), zap.Error(err))
			continue
		}
		if report.Before.OverThreshold(uc.policy.QuotaThreshold) {
			summary.OverThreshold++
		}
		summary.Archived += report.Archived
		summary.Reports = append(summary.Reports, report)
	}

	uc.logger.WithContext(ctx).Info("quota check finished",
		zap.Int("accounts", summary.AccountsChecked),
		zap.Int("over_threshold", summary.OverThreshold),
		zap.Int("archived", summary.Archived),
	)
	return summary, nil
}

// CheckAccount 检查单个账户：超过阈值时发送警告，并在用户未选择 skip_archive 时开始驱逐
func (uc *EvictionUseCase) CheckAccount(ctx context.Context, user UserID) (*EvictionReport, error) {
	log := uc.logger.WithContext(ctx).With(zap.String("user", string(user)))

	usage, err := UsageOf(ctx, uc.storage, user)
	if err != nil {
		return nil, err
	}
	report := &EvictionReport{User: user, Before: usage, After: usage}

	if usage.Unlimited {
		report.StopReason = StopUnlimitedQuota
		return report, nil
	}
	if !usage.OverThreshold(uc.policy.QuotaThreshold) {
		report.StopReason = StopUnderThreshold
		return report, nil
	}

	log.Warn("storage usage over threshold",
		zap.Float64("usage_percent", usage.Percent()),
		zap.Int64("used", usage.Used),
		zap.Int64("quota", usage.Quota),
	)

	if uc.notices != nil {
		sent, err := uc.notices.WarnStorage(ctx, user, usage)
		if err != nil {
			log.Error("send storage warning failed", zap.Error(err))
		}
		report.WarningSent = sent
	}

	skip, err := uc.decisions.LatestDecided(ctx, AccountFileID, user, DecisionSkipArchive)
	if err != nil {
		return nil, err
	}
	if skip != nil && skip.DecidedAt.After(uc.clock.now().Add(-uc.policy.SkipArchiveTTL)) {
		log.Info("user chose skip_archive, leaving space to manual cleanup", zap.Time("decided_at", skip.DecidedAt))
		report.StopReason = StopSkippedByUser
		return report, nil
	}

	return report, uc.evict(ctx, report)
}

// ArchiveNow 手动触发驱逐，不发送警告也不检查 skip_archive
func (uc *EvictionUseCase) ArchiveNow(ctx context.Context, user UserID) (*EvictionReport, error) {
	usage, err := UsageOf(ctx, uc.storage, user)
	if err != nil {
		return nil, err
	}
	report := &EvictionReport{User: user, Before: usage, After: usage}
	return report, uc.evict(ctx, report)
}

// evict archives the oldest unpinned files of one account until usage drops
// below the threshold. It always ends within MaxIterations batches.
func (uc *EvictionUseCase) evict(ctx context.Context, report *EvictionReport) error {
	log := uc.logger.WithContext(ctx).With(zap.String("user", string(report.User)))
	processed := make(map[FileID]struct{})
	consecutiveFailures := 0

	report.StopReason = StopMaxIterations
	for report.Iterations < uc.policy.MaxIterations {
		usage, err := UsageOf(ctx, uc.storage, report.User)
		if err != nil {
			return err
		}
		report.After = usage
		if !usage.OverThreshold(uc.policy.QuotaThreshold) {
			report.StopReason = StopBelowThreshold
			break
		}

		exclude := make([]FileID, 0, len(processed))
		for id := range processed {
			exclude = append(exclude, id)
		}
		batch, err := uc.access.ListIdleUnpinned(ctx, IdleQuery{
			Owner:           report.User,
			Before:          uc.clock.now(),
			InclusiveBefore: true,
			Exclude:         exclude,
			Limit:           uc.policy.BatchSize,
		})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			report.StopReason = StopNoCandidates
			break
		}

		report.Iterations++
		var archived, skipped, failed int
		for _, rec := range batch {
			processed[rec.FileID] = struct{}{}

			res, err := uc.archiver.ArchiveOne(ctx, rec.FileID, ArchiveOptions{CheckHeadroom: true})
			if err != nil {
				failed++
				consecutiveFailures++
				log.Warn("evict file failed", zap.Int64("file_id", int64(rec.FileID)), zap.Error(err))
				continue
			}
			if res.Outcome != OutcomeArchived {
				skipped++
				continue
			}
			archived++
			consecutiveFailures = 0
			report.ArchivedBytes += res.OriginalSize

			// 本批次剩余文件不再归档，避免超额驱逐
			if usage, err := UsageOf(ctx, uc.storage, report.User); err == nil && !usage.OverThreshold(uc.policy.QuotaThreshold) {
				break
			}
		}
		report.Archived += archived
		report.Skipped += skipped
		report.Failed += failed

		log.Info("eviction iteration finished",
			zap.Int("iteration", report.Iterations),
			zap.Int("archived", archived),
			zap.Int("skipped", skipped),
			zap.Int("failed", failed),
		)

		if consecutiveFailures >= uc.policy.MaxConsecutiveFailures {
			report.StopReason = StopTooManyFailures
			break
		}
		if archived == 0 && skipped == 0 {
			report.StopReason = StopNoProgress
			break
		}
	}

	if report.StopReason == StopMaxIterations {
		if usage, err := UsageOf(ctx, uc.storage, report.User); err == nil {
			report.After = usage
		}
	}

	log.Info("eviction finished",
		zap.Int("archived", report.Archived),
		zap.Int("iterations", report.Iterations),
		zap.String("stop_reason", report.StopReason),
	)
	return nil
}
