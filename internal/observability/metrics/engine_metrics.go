package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RuleCacheHit    = "hit"
	RuleCacheMiss   = "miss"
	RuleCacheStale  = "stale"
	RuleCacheRemote = "remote"
)

// EngineMetrics are scraped from /metrics. They cover the latency of the
// evaluation path and the behaviour of the rule-set cache.
type EngineMetrics struct {
	evaluationDuration *prometheus.HistogramVec
	ruleCacheLookups   *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the process-wide engine metrics.
func Engine() *EngineMetrics {
	return EngineWithConfig(Config{})
}

func EngineWithConfig(cfg Config) *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = NewEngineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return engineMetrics
}

// NewEngineMetrics registers a fresh set of collectors on registerer.
func NewEngineMetrics(registerer prometheus.Registerer, cfg Config) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pricing"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	evaluationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "pricing_evaluation_duration_seconds",
		Help:        "Time to compute a price breakdown.",
		Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	ruleCacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pricing_rule_cache_lookups_total",
		Help:        "Rule-set cache lookups by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "pricing_http_request_duration_seconds",
		Help:        "HTTP request latency by route and status class.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"method", "route", "status_class"})

	registerer.MustRegister(evaluationDuration, ruleCacheLookups, httpDuration)

	return &EngineMetrics{
		evaluationDuration: evaluationDuration,
		ruleCacheLookups:   ruleCacheLookups,
		httpDuration:       httpDuration,
	}
}

func (m *EngineMetrics) ObserveEvaluation(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.evaluationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *EngineMetrics) RecordRuleCacheLookup(result string) {
	if m == nil {
		return
	}
	m.ruleCacheLookups.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
