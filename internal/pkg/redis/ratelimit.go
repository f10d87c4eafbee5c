package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrInvalidResult 限流脚本返回值格式不符合预期
var ErrInvalidResult = errors.New("redis: unexpected script result")

// 滑动窗口：窗口内请求数达到 limit 时拒绝
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('EXPIRE', key, window)
	return {1, limit - current - 1, now + window}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
return {0, 0, tonumber(oldest) + window}
`)

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   int64 // unix 秒
}

// AllowRequest 记录一次请求并返回是否允许
func (c *Client) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	now := time.Now().Unix()
	res, err := slidingWindowScript.Run(ctx, c.rdb, []string{key},
		now, int64(window/time.Second), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		c.logger.Error("redis rate limit failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	if len(res) != 3 {
		return nil, ErrInvalidResult
	}
	return &RateLimitResult{Allowed: res[0] == 1, Remaining: int(res[1]), ResetAt: res[2]}, nil
}
