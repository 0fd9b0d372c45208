package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreConcurrencySafe(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter(TripsStarted)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Counter(TripsStarted))
	assert.Equal(t, int64(0), m.Counter("unknown"))
}

func TestTimersAndErrorRates(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer("fetch", 10)
	m.RecordTimer("fetch", 30)
	m.Observe("write", time.Now(), nil)
	m.Observe("write", time.Now(), errors.New("boom"))

	timers := m.GetTimers()
	require.Contains(t, timers, "fetch")
	assert.Equal(t, int64(2), timers["fetch"].Count)
	assert.Equal(t, int64(10), timers["fetch"].MinTimeMs)
	assert.Equal(t, int64(30), timers["fetch"].MaxTimeMs)
	assert.Equal(t, 20.0, timers["fetch"].AverageTimeMs)

	rates := m.GetErrorRates()
	assert.Equal(t, int64(2), rates["write"].Total)
	assert.Equal(t, 50.0, rates["write"].ErrorRate)
}

func TestHealthAndNilCollector(t *testing.T) {
	m := NewMetrics()
	m.SetHealth("backend", true)
	m.SetHealth("redis", false)
	assert.Equal(t, map[string]bool{"backend": true, "redis": false}, m.GetHealthChecks())

	var none *Metrics
	assert.NotPanics(t, func() {
		none.IncrementCounter(TripsStarted)
		none.Observe("x", time.Now(), nil)
		none.SetGauge(OpenTrips, 1)
	})
}
