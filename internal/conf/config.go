package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/lk2023060901/auto-archiver/internal/archiver/job"
	"github.com/lk2023060901/auto-archiver/internal/auth/middleware"
	"github.com/lk2023060901/auto-archiver/internal/email/types"
	"github.com/lk2023060901/auto-archiver/internal/pkg/database"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
	"github.com/lk2023060901/auto-archiver/internal/pkg/minio"
	"github.com/lk2023060901/auto-archiver/internal/pkg/redis"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 ARCHIVER_SERVER_PORT
const EnvPrefix = "ARCHIVER"

const (
	StorageLocal = "local"
	StorageMinIO = "minio"

	GuardLocal = "local"
	GuardFile  = "file"
	GuardRedis = "redis"
)

type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Database  database.Config   `mapstructure:"database"`
	Redis     RedisConfig       `mapstructure:"redis"`
	MinIO     minio.Config      `mapstructure:"minio"`
	Log       logger.Config     `mapstructure:"log"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Storage   StorageConfig     `mapstructure:"storage"`
	Archive   ArchiveConfig     `mapstructure:"archive"`
	Scheduler SchedulerConfig   `mapstructure:"scheduler"`
	Email     types.EmailConfig `mapstructure:"email"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig Redis 为可选依赖，仅在启用时用于分布式任务锁与限流
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit 需要启用 Redis
type RateLimit struct {
	Enabled                      bool `mapstructure:"enabled"`
	middleware.RateLimiterConfig `mapstructure:",squash"`
}

type StorageConfig struct {
	Backend       string        `mapstructure:"backend"` // local, minio
	Dir           string        `mapstructure:"dir"`     // local 后端的数据目录
	TempDir       string        `mapstructure:"temp_dir"`
	DefaultQuota  string        `mapstructure:"default_quota"`
	OwnerCacheLen int           `mapstructure:"owner_cache_len"`
	OwnerCacheTTL time.Duration `mapstructure:"owner_cache_ttl"`
}

// ArchiveConfig 归档策略，见 biz.Policy
type ArchiveConfig struct {
	IdleDays               int     `mapstructure:"idle_days"`
	NotifyLeadDays         int     `mapstructure:"notify_lead_days"`
	QuotaThreshold         float64 `mapstructure:"quota_threshold"`
	MaxIterations          int     `mapstructure:"max_iterations"`
	BatchSize              int     `mapstructure:"batch_size"`
	MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures"`
	RestoreBuffer          float64 `mapstructure:"restore_buffer"`
	SweepPageSize          int     `mapstructure:"sweep_page_size"`
	ArchiveFolder          string  `mapstructure:"archive_folder"`
}

// Policy 转换为业务策略，未配置的字段使用默认值
func (c ArchiveConfig) Policy() biz.Policy {
	p := biz.DefaultPolicy()
	if c.IdleDays > 0 {
		p.IdleThreshold = time.Duration(c.IdleDays) * 24 * time.Hour
	}
	if c.NotifyLeadDays > 0 {
		p.LeadTime = time.Duration(c.NotifyLeadDays) * 24 * time.Hour
	}
	if c.QuotaThreshold > 0 {
		p.QuotaThreshold = c.QuotaThreshold
	}
	if c.MaxIterations > 0 {
		p.MaxIterations = c.MaxIterations
	}
	if c.BatchSize > 0 {
		p.BatchSize = c.BatchSize
	}
	if c.MaxConsecutiveFailures > 0 {
		p.MaxConsecutiveFailures = c.MaxConsecutiveFailures
	}
	if c.RestoreBuffer > 0 {
		p.RestoreBuffer = c.RestoreBuffer
	}
	if c.SweepPageSize > 0 {
		p.SweepPageSize = c.SweepPageSize
	}
	if c.ArchiveFolder != "" {
		p.ArchiveFolder = c.ArchiveFolder
	}
	return p
}

type SchedulerConfig struct {
	job.Config `mapstructure:",squash"`
	Guard      string        `mapstructure:"guard"` // local, file, redis
	LockDir    string        `mapstructure:"lock_dir"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	db := database.DefaultConfig()
	v.SetDefault("database.driver", db.Driver)
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", db.DBName)
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.timezone", db.Timezone)
	v.SetDefault("database.path", "data/archiver.db")
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", db.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.preparestmt", db.PrepareStmt)
	v.SetDefault("database.automigrate", db.AutoMigrate)

	rd := redis.DefaultConfig()
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.mode", string(rd.Mode))
	v.SetDefault("redis.addr", rd.Addr)
	v.SetDefault("redis.pool_size", rd.PoolSize)
	v.SetDefault("redis.min_idle_conns", rd.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rd.DialTimeout)
	v.SetDefault("redis.read_timeout", rd.ReadTimeout)
	v.SetDefault("redis.write_timeout", rd.WriteTimeout)
	v.SetDefault("redis.max_retries", rd.MaxRetries)
	v.SetDefault("redis.key_prefix", rd.KeyPrefix)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	mc := minio.DefaultConfig()
	v.SetDefault("minio.endpoint", mc.Endpoint)
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", mc.Bucket)
	v.SetDefault("minio.bucket_lookup", string(mc.BucketLookup))
	v.SetDefault("minio.request_timeout", mc.RequestTimeout)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enablecaller", lc.EnableCaller)
	v.SetDefault("log.enablestacktrace", lc.EnableStacktrace)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.maxsize", lc.File.MaxSize)
	v.SetDefault("log.file.maxage", lc.File.MaxAge)
	v.SetDefault("log.file.maxbackups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)

	// 没有默认值的键也要注册，AutomaticEnv 才能在 Unmarshal 时覆盖
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_duration", time.Hour)
	v.SetDefault("auth.rate_limit.enabled", false)
	v.SetDefault("auth.rate_limit.max_requests", 120)
	v.SetDefault("auth.rate_limit.window", time.Minute)
	v.SetDefault("auth.rate_limit.strategy", "user")

	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.dir", "data/blobs")
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.default_quota", "10 GB")
	v.SetDefault("storage.owner_cache_len", 4096)
	v.SetDefault("storage.owner_cache_ttl", 10*time.Minute)

	jc := job.DefaultConfig()
	v.SetDefault("scheduler.enabled", jc.Enabled)
	v.SetDefault("scheduler.run_on_start", jc.RunOnStart)
	v.SetDefault("scheduler.sweep_interval", jc.SweepInterval)
	v.SetDefault("scheduler.evict_interval", jc.EvictInterval)
	v.SetDefault("scheduler.notify_interval", jc.NotifyInterval)
	v.SetDefault("scheduler.trigger_workers", jc.TriggerWorkers)
	v.SetDefault("scheduler.guard", GuardLocal)
	v.SetDefault("scheduler.lock_dir", "data/locks")
	v.SetDefault("scheduler.lock_ttl", time.Minute)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from_addr", "")
	v.SetDefault("email.from_name", "Auto Archiver")
	v.SetDefault("email.tls_policy", "mandatory")
	v.SetDefault("email.max_retries", 3)
	v.SetDefault("email.retry_interval", 2*time.Second)
	v.SetDefault("email.connect_timeout", 10*time.Second)
	v.SetDefault("email.send_timeout", 30*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// LoadConfig 加载配置：默认值 < 配置文件 < 环境变量
//
// path 为空时只使用默认值与环境变量。
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验跨模块的配置组合
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	switch c.Storage.Backend {
	case StorageLocal:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the local backend")
		}
	case StorageMinIO:
		if err := c.MinIO.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if q := c.Storage.DefaultQuota; q != "" && !isUnlimitedWord(q) {
		if _, unlimited := biz.ParseQuota(q); unlimited {
			return fmt.Errorf("invalid storage.default_quota %q", q)
		}
	}

	switch c.Scheduler.Guard {
	case GuardLocal, GuardFile:
	case GuardRedis:
		if !c.Redis.Enabled {
			return errors.New("scheduler.guard=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unknown scheduler.guard %q", c.Scheduler.Guard)
	}
	if c.Auth.RateLimit.Enabled && !c.Redis.Enabled {
		return errors.New("auth.rate_limit requires redis.enabled")
	}

	if q := c.Archive.QuotaThreshold; q < 0 || q > 1 {
		return fmt.Errorf("archive.quota_threshold must be within [0, 1], got %v", q)
	}
	return nil
}

func isUnlimitedWord(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "unlimited", "default":
		return true
	}
	return false
}
