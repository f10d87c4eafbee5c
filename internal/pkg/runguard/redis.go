package runguard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/pkg/redis"
	"go.uber.org/zap"
)

// RedisGuard holds a token lock in Redis and refreshes it while held, so a
// crashed holder frees the name after TTL.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisGuard(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGuard{client: client, ttl: ttl, log: log}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, name string) (func(), bool, error) {
	key := g.client.Key("guard", name)

	token, err := g.client.Lock(ctx, key, g.ttl)
	if errors.Is(err, redis.ErrLockHeld) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(g.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := g.client.Extend(context.Background(), key, token, g.ttl); err != nil {
					g.log.Warn("refresh run guard failed", zap.String("name", name), zap.Error(err))
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := g.client.Unlock(context.Background(), key, token); err != nil {
				g.log.Warn("release run guard failed", zap.String("name", name), zap.Error(err))
			}
		})
	}, true, nil
}
