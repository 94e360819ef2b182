package kthread

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaitMetrics_Sample(t *testing.T) {
	var m WaitMetrics
	require.Zero(t, m.Sample())

	for i := int64(1); i <= 100; i++ {
		m.Record(i)
	}
	require.Equal(t, 100, m.Sample())
	require.Equal(t, int64(51), m.P50)
	require.Equal(t, int64(91), m.P90)
	require.Equal(t, int64(100), m.P99)
	require.Equal(t, int64(100), m.Max)
	require.InDelta(t, 50.5, m.Mean, 0.001)
}

func TestWaitMetrics_rollingWindow(t *testing.T) {
	var m WaitMetrics
	for range sampleSize {
		m.Record(1000)
	}
	for range sampleSize {
		m.Record(1)
	}
	require.Equal(t, sampleSize, m.Sample())
	require.Equal(t, int64(1), m.Max)
	require.Equal(t, int64(sampleSize), m.Sum)
}

func TestWaitMetrics_concurrentRecord(t *testing.T) {
	var (
		m  WaitMetrics
		wg sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 250 {
				m.Record(int64(i % 10))
				if i%50 == 0 {
					m.Sample()
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, sampleSize, m.Sample())
	require.Equal(t, int64(4*25*45), m.Sum)
	require.Equal(t, int64(9), m.Max)
}

func TestPercentileIndex(t *testing.T) {
	require.Equal(t, 0, percentileIndex(1, 99))
	require.Equal(t, 9, percentileIndex(10, 100))
	require.Equal(t, int64(5), percentileIndex[int64](10, 50))
}

func TestScheduler_readyWaitMetrics(t *testing.T) {
	s := newScheduler(t, WithMetrics(true))
	require.NotNil(t, s.Metrics())

	s.Create("peer", PriDefault, func(any) {}, nil)
	for range 3 {
		interrupt(s)
	}
	// the peer waited three ticks, main none
	s.Yield()

	m := &s.Metrics().ReadyWait
	require.Positive(t, m.Sample())
	require.Equal(t, int64(3), m.Max)
}

func TestScheduler_metricsDisabled(t *testing.T) {
	s := newScheduler(t)
	require.Nil(t, s.Metrics())
}
