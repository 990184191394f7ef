package monitoring

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// Namespace configures the Prometheus namespace. Defaults to "cveintel".
	Namespace string
	// DisableGoCollector skips registration of the Go runtime collector when true.
	DisableGoCollector bool
	// DisableProcessCollector skips registration of the process collector when true.
	DisableProcessCollector bool
}

// Module owns the Prometheus registry, the health checks and the in-process counters behind
// the operations summary.
type Module struct {
	registry *prometheus.Registry
	metrics  *collectors
	stats    *statStore
	health   *HealthManager
}

// NewModule constructs a monitoring module with its own Prometheus registry.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "cveintel"
	}

	registry := prometheus.NewRegistry()
	if !opts.DisableGoCollector {
		if err := registry.Register(prometheus.NewGoCollector()); err != nil {
			return nil, err
		}
	}
	if !opts.DisableProcessCollector {
		if err := registry.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}

	metrics := newCollectors(namespace)
	for _, collector := range metrics.all() {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	module := &Module{
		registry: registry,
		metrics:  metrics,
		stats:    newStatStore(),
		health:   NewHealthManager(),
	}
	return module, nil
}

// Registry exposes the underlying Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an http.Handler serving Prometheus metrics for this module.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Summary returns the runtime statistics gathered by this module.
func (m *Module) Summary() Summary {
	if m == nil || m.stats == nil {
		return Summary{GeneratedAt: time.Now()}
	}
	return m.stats.summary()
}

// Health exposes the health manager responsible for liveness and readiness checks.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

var globalModule atomic.Pointer[Module]

// SetModule configures the process-wide monitoring module used by instrumentation helpers.
func SetModule(module *Module) {
	if module == nil {
		return
	}
	globalModule.Store(module)
}

// CurrentModule returns the process-wide monitoring module, or nil when unset.
func CurrentModule() *Module {
	return globalModule.Load()
}

// ensureModule returns the current module or nil when unset.
func ensureModule() *Module {
	return globalModule.Load()
}
