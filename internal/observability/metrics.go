package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	domainjobs "github.com/aetherhq/aether-backend/internal/domain/jobs"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/utils"
)

const namespace = "aether"

// Metrics owns a private registry so tests can build independent instances.
// Every method is a no-op on a nil receiver.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	apiInflight  prometheus.Gauge
	stageRuns    *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	rowsIngested prometheus.Counter
	dataQuality  *prometheus.CounterVec
	snapshotsUp  *prometheus.CounterVec
	gapsWritten  prometheus.Counter
	kpiCache     *prometheus.CounterVec
	jobRuns      *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init returns the process-wide metrics, or nil unless METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !utils.GetEnvAsBool("METRICS_ENABLED", false, log) {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		instance.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		log.Info("metrics initialized")
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api", Name: "request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "api", Name: "inflight_requests",
			Help: "In-flight API requests.",
		}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_total",
			Help: "Pipeline stage runs by stage/status.",
		}, []string{"stage", "status"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds by stage/status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage", "status"}),
		rowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rows_ingested_total",
			Help: "Data rows persisted from uploads.",
		}),
		dataQuality: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "data_quality_total",
			Help: "Rows skipped or degraded by stage/issue.",
		}, []string{"stage", "issue"}),
		snapshotsUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshots_written_total",
			Help: "Snapshot rows written or removed by period/op.",
		}, []string{"period", "op"}),
		gapsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "performance_gaps_written_total",
			Help: "Performance gap rows upserted.",
		}),
		kpiCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "kpi_cache_total",
			Help: "KPI cache lookups by result.",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "job_runs_total",
			Help: "Job runs by type/status.",
		}, []string{"job_type", "status"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_queue_depth",
			Help: "Job runs by status.",
		}, []string{"status"}),
	}
	m.reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.stageRuns, m.stageLatency,
		m.rowsIngested, m.dataQuality, m.snapshotsUp, m.gapsWritten,
		m.kpiCache, m.jobRuns, m.queueDepth,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	labels := []string{orUnknown(method), orUnknown(route), orUnknown(status)}
	m.apiRequests.WithLabelValues(labels...).Inc()
	m.apiLatency.WithLabelValues(labels...).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// ObserveStage records one pipeline stage outcome ("ok", "error" or "skipped").
func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(orUnknown(stage), orUnknown(status)).Inc()
	m.stageLatency.WithLabelValues(orUnknown(stage), orUnknown(status)).Observe(dur.Seconds())
}

func (m *Metrics) AddRowsIngested(n int) {
	if m != nil && n > 0 {
		m.rowsIngested.Add(float64(n))
	}
}

func (m *Metrics) AddDataQuality(stage, issue string, n int) {
	if m != nil && n > 0 {
		m.dataQuality.WithLabelValues(orUnknown(stage), orUnknown(issue)).Add(float64(n))
	}
}

func (m *Metrics) AddSnapshots(period, op string, n int) {
	if m != nil && n > 0 {
		m.snapshotsUp.WithLabelValues(orUnknown(period), orUnknown(op)).Add(float64(n))
	}
}

func (m *Metrics) AddGaps(n int) {
	if m != nil && n > 0 {
		m.gapsWritten.Add(float64(n))
	}
}

func (m *Metrics) IncKPICache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.kpiCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncJobRun(jobType, status string) {
	if m != nil {
		m.jobRuns.WithLabelValues(orUnknown(jobType), orUnknown(status)).Inc()
	}
}

var queueStatuses = []string{
	domainjobs.StatusQueued,
	domainjobs.StatusRunning,
	domainjobs.StatusSucceeded,
	domainjobs.StatusFailed,
	domainjobs.StatusCanceled,
}

// StartJobQueueCollector refreshes job_queue_depth every
// METRICS_SCRAPE_INTERVAL (default 10s) until ctx is done.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := utils.GetEnvAsDuration("METRICS_SCRAPE_INTERVAL", 10*time.Second, log)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.refreshQueueDepth(ctx, db); err != nil && ctx.Err() == nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
				}
			}
		}
	}()
}

func (m *Metrics) refreshQueueDepth(ctx context.Context, db *gorm.DB) error {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&domainjobs.JobRun{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range queueStatuses {
		m.queueDepth.WithLabelValues(s).Set(0)
	}
	for _, row := range rows {
		m.queueDepth.WithLabelValues(orUnknown(row.Status)).Set(float64(row.Count))
	}
	return nil
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
