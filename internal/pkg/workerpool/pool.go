package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// Config Worker Pool 配置
type Config struct {
	Workers int // 最大并发 worker 数
	// 非阻塞模式下 worker 全忙时 Submit 立即返回 ErrPoolFull
	NonBlocking bool
	// 阻塞模式下允许排队等待的任务数，0 表示不限制
	MaxBlocking int
	// Shutdown 等待运行中任务结束的最长时间
	ShutdownTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:         4,
		NonBlocking:     true,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64
	Rejected  int64
	Completed int64
	Panicked  int64
	Running   int64
}

// Pool 基于 ants 的有界 goroutine 池
type Pool struct {
	pool   *ants.Pool
	config *Config
	wg     sync.WaitGroup
	closed atomic.Bool

	submitted atomic.Int64
	rejected  atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	running   atomic.Int64

	logger *zap.Logger
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{config: config, logger: logger}

	opts := []ants.Option{ants.WithNonblocking(config.NonBlocking)}
	if config.MaxBlocking > 0 {
		opts = append(opts, ants.WithMaxBlockingTasks(config.MaxBlocking))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool
	return p, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	err := p.pool.Submit(func() {
		p.running.Add(1)
		defer func() {
			if v := recover(); v != nil {
				p.panicked.Add(1)
				p.logger.Error("worker panic", zap.Any("error", v))
			}
			p.running.Add(-1)
			p.completed.Add(1)
			p.wg.Done()
		}()
		task()
	})
	if err != nil {
		p.wg.Done()
		p.rejected.Add(1)
		switch {
		case errors.Is(err, ants.ErrPoolOverload):
			return ErrPoolFull
		case errors.Is(err, ants.ErrPoolClosed):
			return ErrPoolClosed
		}
		return err
	}
	p.submitted.Add(1)
	return nil
}

// Running 正在执行的任务数
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Rejected:  p.rejected.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Running:   p.running.Load(),
	}
}

// Shutdown 拒绝新任务并等待已提交任务完成
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out", zap.Int64("running", p.running.Load()))
	}
	p.pool.Release()
}
