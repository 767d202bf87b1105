// Copyright 2025 James Ross
package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dclexplorer/consumer-processor/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	cfg := config.Fetch{
		MaxRetries:        3,
		InitialDelay:      1 * time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		Timeout:           time.Second,
		BackoffMultiplier: 2,
	}
	cbCfg := config.CircuitBreaker{FailureThreshold: 0.99, Window: time.Minute, CooldownPeriod: time.Minute, MinSamples: 1000}
	return New(cfg, cbCfg, zap.NewNop())
}

func TestBackoffDelayCapsAtMaxDelay(t *testing.T) {
	f := testFetcher(t)
	for attempt := 1; attempt <= 10; attempt++ {
		d := f.backoffDelay(attempt)
		require.LessOrEqual(t, d, time.Duration(float64(f.cfg.MaxDelay)*1.25)+time.Millisecond)
	}
}

func TestClassifyErrDetectsNetworkErrors(t *testing.T) {
	require.Equal(t, KindNetwork, classifyErr(errors.New("dial tcp: connection refused")))
	require.Equal(t, KindNetwork, classifyErr(errors.New("read: connection reset by peer")))
	require.Equal(t, KindUnknown, classifyErr(errors.New("something else entirely")))
}

func TestFetchRetriesOnRetryableStatusThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := testFetcher(t)
	resp, err := f.Fetch(context.Background(), srv.URL, Options{Method: "GET"})
	require.NoError(t, err)
	require.True(t, resp.IsSuccess())
	require.Equal(t, 3, attempts)
}

func TestFetchSurfacesNonRetryableStatusImmediately(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := testFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL, Options{Method: "GET"})
	require.Error(t, err)
	require.Equal(t, 1, attempts)

	var ferr *FetchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, 404, ferr.StatusCode)
}
