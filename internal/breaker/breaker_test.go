// Copyright 2025 James Ross
package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	cb := New("test-threshold", time.Minute, 50*time.Millisecond, 0.5, 4)
	require.True(t, cb.Allow())
	cb.Record(false)
	cb.Record(false)
	cb.Record(false)
	cb.Record(false)
	require.Equal(t, Open, cb.State())
	require.False(t, cb.Allow())
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	cb := New("test-halfopen", time.Minute, 10*time.Millisecond, 0.5, 2)
	cb.Record(false)
	cb.Record(false)
	require.Equal(t, Open, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.True(t, cb.Allow())
	require.False(t, cb.Allow(), "a second probe must not be admitted while one is in flight")

	cb.Record(true)
	require.Equal(t, Closed, cb.State())
}

func TestBreakerStaysClosedBelowMinSamples(t *testing.T) {
	cb := New("test-minsamples", time.Minute, time.Second, 0.1, 10)
	for i := 0; i < 5; i++ {
		cb.Record(false)
	}
	require.Equal(t, Closed, cb.State())
}
