package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_RegistersAllMetrics(t *testing.T) {
	c := NewCollector("testns")
	assert.NotNil(t, c.Registry())
}

func TestObserveFlush_IncrementsCountAndHistogram(t *testing.T) {
	c := NewCollector("testns")
	c.ObserveFlush(50 * time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.FlushCount))
}

func TestObserveVacuum_AccumulatesFreedCount(t *testing.T) {
	c := NewCollector("testns")
	c.ObserveVacuum(3)
	c.ObserveVacuum(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.VacuumCount))
	assert.Equal(t, float64(5), testutil.ToFloat64(c.VacuumFreed))
}

func TestTwoCollectors_DoNotCollideOnMetricNames(t *testing.T) {
	c1 := NewCollector("ns1")
	c2 := NewCollector("ns2")

	c1.CacheHits.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(c1.CacheHits))
	assert.Equal(t, float64(0), testutil.ToFloat64(c2.CacheHits))
}
