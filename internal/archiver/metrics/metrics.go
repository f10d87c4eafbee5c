// Package metrics exposes archiver task and HTTP metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/auto-archiver/internal/archiver/biz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "archiver"

// Task results
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultBusy  = "busy"
)

// Collector 归档相关指标
type Collector struct {
	registry *prometheus.Registry

	taskRuns      *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	taskLastRun   *prometheus.GaugeVec
	filesArchived *prometheus.CounterVec
	bytesArchived *prometheus.CounterVec
	archiveFailed *prometheus.CounterVec
	restores      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	accountsOver  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New 在独立 registry 上注册全部指标，包含 Go 运行时与进程指标
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		taskRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Background task invocations by result.",
		}, []string{"task", "result"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"task"}),
		taskLastRun: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run.",
		}, []string{"task"}),
		filesArchived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_archived_total",
			Help:      "Files moved to the archive area.",
		}, []string{"trigger"}),
		bytesArchived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_archived_total",
			Help:      "Original bytes moved to the archive area.",
		}, []string{"trigger"}),
		archiveFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_failures_total",
			Help:      "Files that could not be archived.",
		}, []string{"trigger"}),
		restores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restore requests by result code.",
		}, []string{"result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent by subject.",
		}, []string{"subject"}),
		accountsOver: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_over_threshold",
			Help:      "Accounts over the quota threshold at the last eviction pass.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveTask 记录一次任务执行
func (c *Collector) ObserveTask(task, result string, elapsed time.Duration) {
	c.taskRuns.WithLabelValues(task, result).Inc()
	if result == ResultBusy {
		return
	}
	c.taskDuration.WithLabelValues(task).Observe(elapsed.Seconds())
	c.taskLastRun.WithLabelValues(task).SetToCurrentTime()
}

func (c *Collector) ObserveSweep(res *biz.SweepResult) {
	if res == nil {
		return
	}
	c.filesArchived.WithLabelValues("sweep").Add(float64(res.Archived))
	c.bytesArchived.WithLabelValues("sweep").Add(float64(res.ArchivedBytes))
	c.archiveFailed.WithLabelValues("sweep").Add(float64(res.Failed))
}

func (c *Collector) ObserveEviction(summary *biz.EvictionSummary) {
	if summary == nil {
		return
	}
	for _, r := range summary.Reports {
		c.observeReport("eviction", r)
	}
	c.accountsOver.Set(float64(summary.OverThreshold))
}

// ObserveArchiveNow 记录用户主动触发的驱逐
func (c *Collector) ObserveArchiveNow(report *biz.EvictionReport) {
	c.observeReport("archive_now", report)
}

func (c *Collector) observeReport(trigger string, r *biz.EvictionReport) {
	if r == nil {
		return
	}
	c.filesArchived.WithLabelValues(trigger).Add(float64(r.Archived))
	c.bytesArchived.WithLabelValues(trigger).Add(float64(r.ArchivedBytes))
	c.archiveFailed.WithLabelValues(trigger).Add(float64(r.Failed))
	if r.WarningSent {
		c.notifications.WithLabelValues(biz.SubjectStorageWarning).Inc()
	}
}

func (c *Collector) ObserveNotify(res *biz.NotifyResult) {
	if res == nil {
		return
	}
	c.notifications.WithLabelValues(biz.SubjectFileWillArchive).Add(float64(res.Notified))
}

// ObserveRestore result 为 "ok" 或错误码名称
func (c *Collector) ObserveRestore(result string) {
	c.restores.WithLabelValues(result).Inc()
}

// GinMiddleware 按路由模板统计请求，避免路径参数造成高基数
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.httpRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
