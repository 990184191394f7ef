package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	upstreamRequests    *prometheus.CounterVec
	upstreamLatency     *prometheus.HistogramVec
	cacheLookups        *prometheus.CounterVec
	cacheWrites         *prometheus.CounterVec
	assessments         *prometheus.CounterVec
	degradedBranches    *prometheus.CounterVec
	analysisRequests    *prometheus.CounterVec
	analysisLatency     prometheus.Histogram
	apiLatency          *prometheus.HistogramVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
	maintenanceRemoved  *prometheus.CounterVec
}

func newCollectors(namespace string) *collectors {
	buckets := prometheus.DefBuckets
	// Upstream feeds range from sub-second EPSS lookups to multi-second NVD pages.
	upstreamBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	analysisBuckets := []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60}

	return &collectors{
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests issued to intelligence providers grouped by outcome",
			},
			[]string{"provider", "result"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Latency of intelligence provider requests",
				Buckets:   upstreamBuckets,
			},
			[]string{"provider"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Intel cache lookups by source and hit/miss",
			},
			[]string{"source", "result"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Intel cache writes by source and outcome",
			},
			[]string{"source", "result"},
		),
		assessments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "composite_assessments_total",
				Help:      "Composite assessments built, split by whether any provider degraded",
			},
			[]string{"result"},
		),
		degradedBranches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_branches_total",
				Help:      "Aggregation branches that fell back to their default value",
			},
			[]string{"source"},
		),
		analysisRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_requests_total",
				Help:      "Analysis requests by outcome (generated, cached, failure)",
			},
			[]string{"result"},
		),
		analysisLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_generation_seconds",
				Help:      "Time spent generating analysis text",
				Buckets:   analysisBuckets,
			},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Maintenance job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Timestamp of the last successful maintenance run (seconds since epoch)",
			},
			[]string{"job"},
		),
		maintenanceRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_rows_removed_total",
				Help:      "Rows deleted by maintenance jobs",
			},
			[]string{"job"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.upstreamRequests,
		c.upstreamLatency,
		c.cacheLookups,
		c.cacheWrites,
		c.assessments,
		c.degradedBranches,
		c.analysisRequests,
		c.analysisLatency,
		c.apiLatency,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
		c.maintenanceRemoved,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
