package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "energy_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	siteRunTotal   *prometheus.CounterVec
	siteRunLatency *prometheus.HistogramVec

	aggregationTotal   *prometheus.CounterVec
	aggregationLatency *prometheus.HistogramVec
	aggregationDays    *prometheus.HistogramVec

	meterSkipped       *prometheus.CounterVec
	tariffDiagnostics  *prometheus.CounterVec
	costExportTotal    *prometheus.CounterVec
	costExportLatency  *prometheus.HistogramVec
	seriesSinkTotal    *prometheus.CounterVec
	seriesSinkPoints   prometheus.Counter
	batchQueueDepth    prometheus.Gauge
	batchWorkersActive prometheus.Gauge
)

// Init registers engine metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		siteRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "site_run_total",
				Help: "Total site runs by result",
			},
			[]string{"result"},
		)
		siteRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "site_run_latency_seconds",
				Help:    "Site run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		aggregationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "aggregation_total",
				Help: "Total aggregations by meter kind and result",
			},
			[]string{"kind", "result"},
		)
		aggregationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_latency_seconds",
				Help:    "Aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		aggregationDays = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "aggregation_window_days",
				Help:    "Days in the negotiated aggregation window",
				Buckets: []float64{7, 31, 92, 366, 731, 1827, 3653},
			},
			[]string{"kind"},
		)

		meterSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "meter_skipped_total",
				Help: "Meters skipped during site runs by reason",
			},
			[]string{"reason"},
		)
		tariffDiagnostics = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tariff_diagnostics_total",
				Help: "Soft tariff validation issues by code",
			},
			[]string{"code"},
		)

		costExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cost_export_total",
				Help: "Total cost exports by format and result",
			},
			[]string{"format", "result"},
		)
		costExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cost_export_latency_seconds",
				Help:    "Cost export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		seriesSinkTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "series_sink_writes_total",
				Help: "Consolidated series writes by result",
			},
			[]string{"result"},
		)
		seriesSinkPoints = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "series_sink_points_total",
				Help: "Half-hourly points written to the series sink",
			},
		)

		batchQueueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "batch_queue_depth",
				Help: "Sites waiting for a worker",
			},
		)
		batchWorkersActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "batch_workers_active",
				Help: "Workers currently running a site",
			},
		)

		prometheus.MustRegister(
			siteRunTotal,
			siteRunLatency,
			aggregationTotal,
			aggregationLatency,
			aggregationDays,
			meterSkipped,
			tariffDiagnostics,
			costExportTotal,
			costExportLatency,
			seriesSinkTotal,
			seriesSinkPoints,
			batchQueueDepth,
			batchWorkersActive,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSiteRun records a site run's duration and result.
func ObserveSiteRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if siteRunTotal != nil {
		siteRunTotal.WithLabelValues(result).Inc()
	}
	if siteRunLatency != nil {
		siteRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveAggregation records one aggregation.
func ObserveAggregation(kind, result string, days int, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if aggregationTotal != nil {
		aggregationTotal.WithLabelValues(kind, result).Inc()
	}
	if aggregationLatency != nil {
		aggregationLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
	if aggregationDays != nil && days > 0 {
		aggregationDays.WithLabelValues(kind).Observe(float64(days))
	}
}

// IncMeterSkipped counts a meter left out of a site run.
func IncMeterSkipped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if meterSkipped != nil {
		meterSkipped.WithLabelValues(reason).Inc()
	}
}

// AddTariffDiagnostics counts soft tariff issues.
func AddTariffDiagnostics(code string, count int) {
	if count <= 0 {
		return
	}
	if tariffDiagnostics != nil {
		tariffDiagnostics.WithLabelValues(code).Add(float64(count))
	}
}

// ObserveCostExport records export latency and result.
func ObserveCostExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if costExportTotal != nil {
		costExportTotal.WithLabelValues(format, result).Inc()
	}
	if costExportLatency != nil {
		costExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveSeriesSink records a sink write and the points it carried.
func ObserveSeriesSink(result string, points int) {
	if result == "" {
		result = resultSuccess
	}
	if seriesSinkTotal != nil {
		seriesSinkTotal.WithLabelValues(result).Inc()
	}
	if seriesSinkPoints != nil && points > 0 && result == resultSuccess {
		seriesSinkPoints.Add(float64(points))
	}
}

// SetBatchQueueDepth sets the number of queued sites.
func SetBatchQueueDepth(depth int) {
	if depth < 0 {
		depth = 0
	}
	if batchQueueDepth != nil {
		batchQueueDepth.Set(float64(depth))
	}
}

// AddBatchWorkersActive moves the active worker gauge by delta.
func AddBatchWorkersActive(delta int) {
	if batchWorkersActive != nil {
		batchWorkersActive.Add(float64(delta))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
