package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/auto-archiver/internal/pkg/errors"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/pkg/redis"
	"github.com/lk2023060901/auto-archiver/internal/pkg/response"
	"go.uber.org/zap"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	// 时间窗口内允许的最大请求数
	MaxRequests int `mapstructure:"max_requests"`
	// 时间窗口
	Window time.Duration `mapstructure:"window"`
	// 限流策略：user, endpoint, ip（默认）
	Strategy string `mapstructure:"strategy"`
}

// RateLimiter 基于 Redis 的滑动窗口限流中间件
func RateLimiter(redisClient *redis.Client, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Minute
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "ip"
	}

	return func(c *gin.Context) {
		key := redisClient.Key(buildRateLimitKey(c, cfg.Strategy)...)

		res, err := redisClient.AllowRequest(c.Request.Context(), key, cfg.MaxRequests, cfg.Window)
		if err != nil {
			log.WithContext(c.Request.Context()).Error("rate limiter error", zap.Error(err), zap.String("key", key))
			// 限流器故障时，降级允许请求通过
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", res.ResetAt))

		if !res.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(cfg.Window.Seconds())))
			response.ErrorWithCode(c, apperrors.ErrTooManyRequests,
				fmt.Sprintf("try again in %s", cfg.Window))
			c.Abort()
			return
		}

		c.Next()
	}
}

// buildRateLimitKey 构建限流 key
func buildRateLimitKey(c *gin.Context, strategy string) []string {
	switch strategy {
	case "user":
		// 未认证用户回退到 IP 限流
		if userID, ok := GetUserID(c); ok {
			return []string{"rate_limit", "user", userID}
		}
	case "endpoint":
		return []string{"rate_limit", "endpoint", c.FullPath(), c.ClientIP()}
	}
	return []string{"rate_limit", "ip", c.ClientIP()}
}
