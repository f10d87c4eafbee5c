// Package job runs the archiver's periodic tasks: the daily idle sweep, the
// hourly quota eviction pass and the hourly notification pass.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/metrics"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/pkg/runguard"
	"github.com/lk2023060901/auto-archiver/internal/pkg/workerpool"
	"go.uber.org/zap"
)

const (
	TaskSweep  = "idle_sweep"
	TaskEvict  = "quota_eviction"
	TaskNotify = "notification"

	// TaskArchiveNow 单账户驱逐，不属于周期任务
	TaskArchiveNow = "archive_now"
)

// Tasks 全部周期任务名
var Tasks = []string{TaskSweep, TaskEvict, TaskNotify}

// ErrUnknownTask is returned by RunNow for a name not in Tasks.
var ErrUnknownTask = errors.New("unknown task")

// Config 调度配置
type Config struct {
	Enabled        bool          `mapstructure:"enabled"`
	RunOnStart     bool          `mapstructure:"run_on_start"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	EvictInterval  time.Duration `mapstructure:"evict_interval"`
	NotifyInterval time.Duration `mapstructure:"notify_interval"`
	// 异步驱逐（archive_now 决策）的并发数
	TriggerWorkers int `mapstructure:"trigger_workers"`
}

// DefaultConfig 默认每天归档一次，每小时检查配额与通知
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		SweepInterval:  24 * time.Hour,
		EvictInterval:  time.Hour,
		NotifyInterval: time.Hour,
		TriggerWorkers: 4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.EvictInterval <= 0 {
		c.EvictInterval = d.EvictInterval
	}
	if c.NotifyInterval <= 0 {
		c.NotifyInterval = d.NotifyInterval
	}
	if c.TriggerWorkers <= 0 {
		c.TriggerWorkers = d.TriggerWorkers
	}
	return c
}

type Sweeper interface {
	Sweep(ctx context.Context) (*biz.SweepResult, error)
}

type Evictor interface {
	Run(ctx context.Context) (*biz.EvictionSummary, error)
	ArchiveNow(ctx context.Context, user biz.UserID) (*biz.EvictionReport, error)
}

type IdleNotifier interface {
	NotifyIdleFiles(ctx context.Context) (*biz.NotifyResult, error)
}

// Scheduler 周期任务调度器，同名任务通过 runguard 保证不重入
type Scheduler struct {
	cfg      Config
	sweeper  Sweeper
	evictor  Evictor
	notifier IdleNotifier
	guard    runguard.Guard
	pool     *workerpool.Pool
	metrics  *metrics.Collector
	logger   *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(cfg Config, sweeper Sweeper, evictor Evictor, notifier IdleNotifier,
	guard runguard.Guard, m *metrics.Collector, log *logger.Logger) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	pool, err := workerpool.New(&workerpool.Config{
		Workers:         cfg.TriggerWorkers,
		NonBlocking:     true,
		ShutdownTimeout: time.Minute,
	}, log.Named("trigger-pool").Logger)
	if err != nil {
		return nil, fmt.Errorf("create trigger pool: %w", err)
	}
	if m == nil {
		m = metrics.New()
	}

	return &Scheduler{
		cfg:      cfg,
		sweeper:  sweeper,
		evictor:  evictor,
		notifier: notifier,
		guard:    guard,
		pool:     pool,
		metrics:  m,
		logger:   log.Named("scheduler"),
	}, nil
}

// Start 启动所有周期任务，Enabled 为 false 时只提供手动触发
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || !s.cfg.Enabled {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	intervals := map[string]time.Duration{
		TaskSweep:  s.cfg.SweepInterval,
		TaskEvict:  s.cfg.EvictInterval,
		TaskNotify: s.cfg.NotifyInterval,
	}
	for _, task := range Tasks {
		s.wg.Add(1)
		go s.loop(ctx, task, intervals[task])
	}
	s.logger.Info("scheduler started",
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Duration("evict_interval", s.cfg.EvictInterval),
		zap.Duration("notify_interval", s.cfg.NotifyInterval),
	)
}

// Stop 停止周期任务并等待进行中的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.pool.Shutdown()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, task string, interval time.Duration) {
	defer s.wg.Done()

	if s.cfg.RunOnStart {
		s.runLogged(ctx, task)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLogged(ctx, task)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context, task string) {
	if _, err := s.RunNow(ctx, task); err != nil {
		if errors.Is(err, biz.ErrTaskBusy) {
			s.logger.Info("task still running, skipping this tick", zap.String("task", task))
			return
		}
		s.logger.Error("task failed", zap.String("task", task), zap.Error(err))
	}
}

// RunNow 立即执行一次任务，任务已在运行时返回 biz.ErrTaskBusy
func (s *Scheduler) RunNow(ctx context.Context, task string) (interface{}, error) {
	switch task {
	case TaskSweep:
		return s.Sweep(ctx)
	case TaskEvict:
		return s.Evict(ctx)
	case TaskNotify:
		return s.Notify(ctx)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task)
}

func (s *Scheduler) Sweep(ctx context.Context) (*biz.SweepResult, error) {
	res, err := guarded(ctx, s, TaskSweep, TaskSweep, s.sweeper.Sweep)
	if err == nil {
		s.metrics.ObserveSweep(res)
	}
	return res, err
}

func (s *Scheduler) Evict(ctx context.Context) (*biz.EvictionSummary, error) {
	res, err := guarded(ctx, s, TaskEvict, TaskEvict, s.evictor.Run)
	if err == nil {
		s.metrics.ObserveEviction(res)
	}
	return res, err
}

func (s *Scheduler) Notify(ctx context.Context) (*biz.NotifyResult, error) {
	res, err := guarded(ctx, s, TaskNotify, TaskNotify, s.notifier.NotifyIdleFiles)
	if err == nil {
		s.metrics.ObserveNotify(res)
	}
	return res, err
}

// TriggerEviction 在后台驱逐单个账户，同一账户已有驱逐在运行时返回 false
func (s *Scheduler) TriggerEviction(ctx context.Context, user biz.UserID) bool {
	log := s.logger.WithContext(ctx).With(zap.String("user", string(user)))

	release, ok, err := s.guard.TryAcquire(ctx, accountGuard(user))
	if err != nil {
		log.Error("acquire eviction guard failed", zap.Error(err))
		return false
	}
	if !ok {
		log.Info("eviction already running for account")
		return false
	}

	// 请求结束后驱逐仍需继续
	bg := context.WithoutCancel(ctx)
	err = s.pool.Submit(func() {
		defer release()
		start := time.Now()
		report, err := s.evictor.ArchiveNow(bg, user)
		if err != nil {
			s.metrics.ObserveTask(TaskArchiveNow, metrics.ResultError, time.Since(start))
			log.Error("triggered eviction failed", zap.Error(err))
			return
		}
		s.metrics.ObserveTask(TaskArchiveNow, metrics.ResultOK, time.Since(start))
		s.metrics.ObserveArchiveNow(report)
		log.Info("triggered eviction finished",
			zap.Int("archived", report.Archived),
			zap.String("stop_reason", report.StopReason),
		)
	})
	if err != nil {
		release()
		log.Warn("submit triggered eviction failed", zap.Error(err))
		return false
	}
	return true
}

// ArchiveNow 同步驱逐单个账户
func (s *Scheduler) ArchiveNow(ctx context.Context, user biz.UserID) (*biz.EvictionReport, error) {
	report, err := guarded(ctx, s, TaskArchiveNow, accountGuard(user), func(ctx context.Context) (*biz.EvictionReport, error) {
		return s.evictor.ArchiveNow(ctx, user)
	})
	if err == nil {
		s.metrics.ObserveArchiveNow(report)
	}
	return report, err
}

func accountGuard(user biz.UserID) string {
	return "evict:" + string(user)
}

// guarded runs fn while holding the guard name; task is the metrics label.
func guarded[T any](ctx context.Context, s *Scheduler, task, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	release, ok, err := s.guard.TryAcquire(ctx, name)
	if err != nil {
		return zero, fmt.Errorf("acquire guard %s: %w", name, err)
	}
	if !ok {
		s.metrics.ObserveTask(task, metrics.ResultBusy, 0)
		return zero, biz.ErrTaskBusy
	}
	defer release()

	log := s.logger.WithContext(ctx).With(zap.String("task", name))
	log.Info("task started")

	start := time.Now()
	res, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveTask(task, metrics.ResultError, elapsed)
		return zero, err
	}
	s.metrics.ObserveTask(task, metrics.ResultOK, elapsed)
	log.Info("task finished", zap.Duration("elapsed", elapsed))
	return res, nil
}
