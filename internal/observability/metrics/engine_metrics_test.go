package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEngineMetrics_RuleCacheLookups(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg, Config{ServiceName: "pricing", Environment: "test"})

	m.RecordRuleCacheLookup(RuleCacheHit)
	m.RecordRuleCacheLookup(RuleCacheHit)
	m.RecordRuleCacheLookup(RuleCacheStale)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ruleCacheLookups.WithLabelValues(RuleCacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleCacheLookups.WithLabelValues(RuleCacheStale)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ruleCacheLookups.WithLabelValues(RuleCacheMiss)))
}

func TestEngineMetrics_HTTPStatusClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg, Config{})

	m.ObserveHTTP("POST", "/v1/pricing/compute", 422, 5*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(m.httpDuration))
	assert.Equal(t, "4xx", statusClass(422))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "2xx", statusClass(201))
}
