package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/trace-collector/pkg/trace/metrics"
)

func TestNoopClientNeverPanics(t *testing.T) {
	c, err := metrics.New("")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		c.Count("events.processed", 1)
		c.Timing("flush.duration", 10*time.Millisecond)
		c.Gauge("queue.depth", 3)
		require.NoError(t, c.Close())
	})
}

func TestNilClientNeverPanics(t *testing.T) {
	var c *metrics.Client
	assert.NotPanics(t, func() {
		c.Count("events.processed", 1)
		c.Timing("flush.duration", time.Millisecond)
	})
}
