package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrLockHeld 锁已被其他持有者占用
	ErrLockHeld = errors.New("redis: lock is held by another owner")
	// ErrLockLost 锁已过期或被其他持有者获取
	ErrLockLost = errors.New("redis: lock token mismatch")
)

// 只有当锁的值等于 token 时才删除
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 只有当锁的值等于 token 时才续期
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock 获取分布式锁，锁已被持有时返回 ErrLockHeld
func (c *Client) Lock(ctx context.Context, key string, expiration time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, key, token, expiration).Result()
	if err != nil {
		c.logger.Error("redis lock failed", zap.String("key", key), zap.Error(err))
		return "", err
	}
	if !ok {
		return "", ErrLockHeld
	}

	c.logger.Debug("redis lock acquired",
		zap.String("key", key),
		zap.Duration("expiration", expiration),
	)
	return token, nil
}

// Unlock 释放分布式锁（使用 Lua 脚本保证原子性）
func (c *Client) Unlock(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, c.rdb, []string{key}, token).Int64()
	if err != nil {
		c.logger.Error("redis unlock failed", zap.String("key", key), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Extend 续期分布式锁
func (c *Client) Extend(ctx context.Context, key, token string, expiration time.Duration) error {
	n, err := extendScript.Run(ctx, c.rdb, []string{key}, token, expiration.Milliseconds()).Int64()
	if err != nil {
		c.logger.Error("redis extend lock failed", zap.String("key", key), zap.Error(err))
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
