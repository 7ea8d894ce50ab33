package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveBatch(t *testing.T) {
	table := "metrics_test_batches"
	before := testutil.ToFloat64(RecordsWritten.WithLabelValues(table, "4"))

	ObserveBatch(table, 4, 10, 5*time.Millisecond, nil)
	ObserveBatch(table, 4, 10, 5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, before+10, testutil.ToFloat64(RecordsWritten.WithLabelValues(table, "4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(BatchesFlushed.WithLabelValues(table, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(BatchesFlushed.WithLabelValues(table, "failure")))
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("test")
	tracker.Increment(100)
	time.Sleep(10 * time.Millisecond)

	rate := tracker.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, testutil.ToFloat64(Throughput.WithLabelValues("test")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "op", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
