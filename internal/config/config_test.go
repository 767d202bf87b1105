// Copyright 2025 James Ross
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsUnknownProcessMethod(t *testing.T) {
	cfg := defaultConfig()
	cfg.ProcessMethod = "not_a_method"
	require.Error(t, Validate(cfg))
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsZeroConcurrentBundles(t *testing.T) {
	cfg := defaultConfig()
	cfg.Engine.ConcurrentBundles = 0
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeMetricsPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Observability.MetricsPort = 0
	require.Error(t, Validate(cfg))
	cfg.Observability.MetricsPort = 70000
	require.Error(t, Validate(cfg))
}

func TestUsesInMemoryQueueWhenTaskQueueUnset(t *testing.T) {
	cfg := defaultConfig()
	require.True(t, cfg.UsesInMemoryQueue())
	cfg.Queues.Task = "https://sqs.example/task"
	require.False(t, cfg.UsesInMemoryQueue())
}

func TestUsesMonitoringRequiresBothURLAndSecret(t *testing.T) {
	cfg := defaultConfig()
	require.False(t, cfg.UsesMonitoring())
	cfg.Monitoring.URL = "https://monitor.example"
	require.False(t, cfg.UsesMonitoring())
	cfg.Monitoring.Secret = "s3cr3t"
	require.True(t, cfg.UsesMonitoring())
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	t.Setenv("PROCESS_METHOD", "log")
	t.Setenv("BUCKET", "my-bucket")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, MethodLog, cfg.ProcessMethod)
	require.Equal(t, "my-bucket", cfg.Storage.Bucket)
	require.False(t, cfg.UsesLocalStorage())
}

func TestLoadParsesBareMillisecondDurations(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT_MS", "1500")
	t.Setenv("FETCH_INITIAL_DELAY_MS", "250")
	t.Setenv("FETCH_MAX_DELAY_MS", "5000")
	t.Setenv("ASSET_SERVER_TIMEOUT_MS", "9000")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, cfg.Fetch.Timeout)
	require.Equal(t, 250*time.Millisecond, cfg.Fetch.InitialDelay)
	require.Equal(t, 5000*time.Millisecond, cfg.Fetch.MaxDelay)
	require.Equal(t, 9000*time.Millisecond, cfg.Engine.Timeout)
}
