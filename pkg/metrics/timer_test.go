package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/hcluster/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewTimer tests timer creation
func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

// TestTimerDuration tests duration measurement
func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	assert.GreaterOrEqual(t, timer.Duration(), 20*time.Millisecond)
}

// TestTimerObserveDuration tests histogram observation
func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	timer.ObserveDuration(histogram)

	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
}

// TestTimerObserveDurationVec tests histogram vec observation
func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_duration_vec_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)

	timer := NewTimer()
	timer.ObserveDurationVec(histogramVec, "worker")
	timer.ObserveDurationVec(histogramVec, "quorum")

	assert.Equal(t, 2, testutil.CollectAndCount(histogramVec))
}

// TestMultipleTimers tests that multiple timers work independently
func TestMultipleTimers(t *testing.T) {
	timer1 := NewTimer()
	time.Sleep(20 * time.Millisecond)
	timer2 := NewTimer()

	assert.Greater(t, timer1.Duration(), timer2.Duration())
}

func TestRecordStateSetsExactlyOne(t *testing.T) {
	RecordState("metrics-test", types.ClusterStateRunning)

	assert.Equal(t, 1.0, testutil.ToFloat64(ClusterState.WithLabelValues("metrics-test", "running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ClusterState.WithLabelValues("metrics-test", "launching")))

	RecordState("metrics-test", types.ClusterStateTerminated)
	assert.Equal(t, 0.0, testutil.ToFloat64(ClusterState.WithLabelValues("metrics-test", "running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ClusterState.WithLabelValues("metrics-test", "terminated")))
}

func TestRecordNodes(t *testing.T) {
	RecordNodes("metrics-test", map[types.Role]int{types.RoleWorker: 3, types.RoleQuorum: 1})

	assert.Equal(t, 3.0, testutil.ToFloat64(NodesTotal.WithLabelValues("metrics-test", "worker")))
	assert.Equal(t, 0.0, testutil.ToFloat64(NodesTotal.WithLabelValues("metrics-test", "aux")))
}

func TestRecordProviderCall(t *testing.T) {
	before := testutil.ToFloat64(ProviderCallsTotal.WithLabelValues("test_op", "error"))
	RecordProviderCall("test_op", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(ProviderCallsTotal.WithLabelValues("test_op", "error")))
}
