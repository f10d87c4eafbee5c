package biz

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// UnlimitedQuota is the byte count that stands for "no quota".
const UnlimitedQuota int64 = math.MaxInt64

// Policy 归档策略参数
type Policy struct {
	IdleThreshold          time.Duration // 空闲多久后归档
	LeadTime               time.Duration // 归档前提前多久通知
	QuotaThreshold         float64       // 触发配额驱逐的使用率
	MaxIterations          int
	BatchSize              int
	MaxConsecutiveFailures int
	DedupWindow            time.Duration // 通知去重窗口
	SkipArchiveTTL         time.Duration // skip_archive 决策有效期
	RestoreBuffer          float64       // 恢复时的配额容差
	SweepPageSize          int
	ArchiveFolder          string
	PlaceholderExt         string
	ArtifactExt            string
}

// DefaultPolicy 默认策略
func DefaultPolicy() Policy {
	return Policy{
		IdleThreshold:          30 * day,
		LeadTime:               7 * day,
		QuotaThreshold:         0.80,
		MaxIterations:          20,
		BatchSize:              10,
		MaxConsecutiveFailures: 5,
		DedupWindow:            24 * time.Hour,
		SkipArchiveTTL:         24 * time.Hour,
		RestoreBuffer:          0.01,
		SweepPageSize:          100,
		ArchiveFolder:          "Archive",
		PlaceholderExt:         ".ncarchive",
		ArtifactExt:            ".zip",
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.IdleThreshold <= 0 {
		p.IdleThreshold = d.IdleThreshold
	}
	if p.LeadTime <= 0 {
		p.LeadTime = d.LeadTime
	}
	if p.QuotaThreshold <= 0 {
		p.QuotaThreshold = d.QuotaThreshold
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = d.MaxIterations
	}
	if p.BatchSize <= 0 {
		p.BatchSize = d.BatchSize
	}
	if p.MaxConsecutiveFailures <= 0 {
		p.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	if p.DedupWindow <= 0 {
		p.DedupWindow = d.DedupWindow
	}
	if p.SkipArchiveTTL <= 0 {
		p.SkipArchiveTTL = d.SkipArchiveTTL
	}
	if p.RestoreBuffer < 0 {
		p.RestoreBuffer = d.RestoreBuffer
	}
	if p.SweepPageSize <= 0 {
		p.SweepPageSize = d.SweepPageSize
	}
	if p.ArchiveFolder == "" {
		p.ArchiveFolder = d.ArchiveFolder
	}
	if p.PlaceholderExt == "" {
		p.PlaceholderExt = d.PlaceholderExt
	}
	if p.ArtifactExt == "" {
		p.ArtifactExt = d.ArtifactExt
	}
	return p
}

// ExtendSevenDaysBackdate is how far in the past extend_7days sets last
// access: the file leaves the warning window for one more lead time.
func (p Policy) ExtendSevenDaysBackdate() time.Duration {
	return p.IdleThreshold - 2*p.LeadTime
}

// NotifyAfter is the idle age at which the archival warning starts.
func (p Policy) NotifyAfter() time.Duration {
	return p.IdleThreshold - p.LeadTime
}

// LeadDays 提前通知的天数
func (p Policy) LeadDays() int {
	return int(p.LeadTime / day)
}

// InArchiveArea reports whether an owner-relative path lies in the archive folder.
func (p Policy) InArchiveArea(path string) bool {
	path = strings.Trim(path, "/")
	return path == p.ArchiveFolder || strings.HasPrefix(path, p.ArchiveFolder+"/")
}

// ArtifactPath 归档包路径：Archive/<name>.zip
func (p Policy) ArtifactPath(name string) string {
	return JoinPath(p.ArchiveFolder, name+p.ArtifactExt)
}

// PlaceholderPath 占位文件路径：与原文件同目录的 <name>.ncarchive
func (p Policy) PlaceholderPath(dir, name string) string {
	return JoinPath(dir, name+p.PlaceholderExt)
}

func (p Policy) IsPlaceholder(name string) bool {
	return strings.HasSuffix(name, p.PlaceholderExt)
}

var quotaUnits = map[string]float64{
	"B":  1,
	"K":  1 << 10,
	"KB": 1 << 10,
	"M":  1 << 20,
	"MB": 1 << 20,
	"G":  1 << 30,
	"GB": 1 << 30,
	"T":  1 << 40,
	"TB": 1 << 40,
}

// ParseQuota 解析配额字符串，返回字节数以及是否无限制
//
// 支持 "none"/"unlimited"/"default"/""（无限制）、纯数字字节数、
// 以及 "10 GB"、"1.5G" 这类带单位的写法（1024 进制）。无法解析的按无限制处理。
func ParseQuota(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "none", "unlimited", "default":
		return UnlimitedQuota, true
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return UnlimitedQuota, true
		}
		return n, false
	}

	upper := strings.ToUpper(s)
	idx := strings.IndexFunc(upper, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if idx <= 0 {
		return UnlimitedQuota, true
	}

	value, err := strconv.ParseFloat(upper[:idx], 64)
	if err != nil || value < 0 {
		return UnlimitedQuota, true
	}
	mult, ok := quotaUnits[strings.TrimSpace(upper[idx:])]
	if !ok {
		return UnlimitedQuota, true
	}

	bytes := value * mult
	if bytes >= float64(UnlimitedQuota) {
		return UnlimitedQuota, true
	}
	return int64(bytes), false
}

// Usage 账户存储使用情况
type Usage struct {
	Used      int64 `json:"used"`
	Quota     int64 `json:"quota"`
	Free      int64 `json:"free"`
	Unlimited bool  `json:"unlimited"`
}

// NewUsage builds a Usage; Free never goes below zero.
func NewUsage(used, quota int64, unlimited bool) Usage {
	u := Usage{Used: used, Quota: quota, Unlimited: unlimited}
	if unlimited {
		u.Quota = UnlimitedQuota
		u.Free = UnlimitedQuota - used
	} else if quota > used {
		u.Free = quota - used
	}
	return u
}

// Ratio 使用率；无限制或配额为 0 时为 0
func (u Usage) Ratio() float64 {
	if u.Unlimited || u.Quota <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Quota)
}

func (u Usage) OverThreshold(threshold float64) bool {
	if u.Unlimited || u.Quota <= 0 {
		return false
	}
	return u.Ratio() >= threshold
}

// Percent 使用率百分比，保留一位小数
func (u Usage) Percent() float64 {
	return math.Round(u.Ratio()*1000) / 10
}
