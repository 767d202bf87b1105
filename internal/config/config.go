// Copyright 2025 James Ross
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ProcessMethod selects the active pipeline.
type ProcessMethod string

const (
	MethodLog              ProcessMethod = "log"
	MethodGodotMinimap     ProcessMethod = "godot_minimap"
	MethodGodotOptimizer   ProcessMethod = "godot_optimizer"
	MethodGenerateCRDT     ProcessMethod = "generate_crdt"
	MethodGenerateImposter ProcessMethod = "generate_imposters"
)

type Queues struct {
	Task     string `mapstructure:"task_queue"`
	Priority string `mapstructure:"priority_task_queue"`
	Wearable string `mapstructure:"wearable_task_queue"`
	Emote    string `mapstructure:"emote_task_queue"`
}

type AWS struct {
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
}

type Storage struct {
	Bucket          string `mapstructure:"bucket"`
	S3Endpoint      string `mapstructure:"s3_endpoint"`
	S3Prefix        string `mapstructure:"s3_prefix"`
	AccessKeyID     string `mapstructure:"s3_access_key_id"`
	SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	LocalDir        string `mapstructure:"local_dir"`
}

type Notification struct {
	SNSArn      string `mapstructure:"sns_arn"`
	SNSEndpoint string `mapstructure:"sns_endpoint"`
}

type Engine struct {
	URL                 string        `mapstructure:"asset_server_url"`
	Port                int           `mapstructure:"asset_server_port"`
	Timeout             time.Duration `mapstructure:"asset_server_timeout"`
	ConcurrentBundles   int           `mapstructure:"concurrent_bundles"`
	ProfileConcurrency  int           `mapstructure:"profile_concurrent_limit"`
	ProcessName         string        `mapstructure:"process_name"`
	MaxGLTFCount        int           `mapstructure:"max_gltf_count"`
	MaxContentSizeBytes int64         `mapstructure:"max_content_size_bytes"`
}

type Fetch struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

type Monitoring struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

type Tracing struct {
	Enabled      bool    `mapstructure:"enabled"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type Observability struct {
	MetricsPort int     `mapstructure:"metrics_port"`
	LogLevel    string  `mapstructure:"log_level"`
	Tracing     Tracing `mapstructure:"tracing"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type Config struct {
	ProcessMethod  ProcessMethod  `mapstructure:"process_method"`
	Queues         Queues         `mapstructure:"queues"`
	AWS            AWS            `mapstructure:"aws"`
	Storage        Storage        `mapstructure:"storage"`
	Notification   Notification   `mapstructure:"notification"`
	Engine         Engine         `mapstructure:"engine"`
	Fetch          Fetch          `mapstructure:"fetch"`
	Monitoring     Monitoring     `mapstructure:"monitoring"`
	Observability  Observability  `mapstructure:"observability"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
}

func defaultConfig() *Config {
	return &Config{
		ProcessMethod: MethodGodotOptimizer,
		Storage: Storage{
			LocalDir: "./storage",
		},
		Engine: Engine{
			URL:                 "http://localhost:8080",
			Port:                8080,
			Timeout:             600 * time.Second,
			ConcurrentBundles:   4,
			ProfileConcurrency:  16,
			ProcessName:         "godot",
			MaxGLTFCount:        200,
			MaxContentSizeBytes: 1 << 30,
		},
		Fetch: Fetch{
			MaxRetries:        3,
			InitialDelay:      1 * time.Second,
			MaxDelay:          30 * time.Second,
			Timeout:           60 * time.Second,
			BackoffMultiplier: 2,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     Tracing{Enabled: false, SamplingRate: 0.1},
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       10,
		},
	}
}

// Load reads configuration from environment variables (the process
// configuration table in the spec), with an optional YAML file at path
// layered underneath for local development.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("process_method", string(def.ProcessMethod))
	v.SetDefault("storage.local_dir", def.Storage.LocalDir)
	v.SetDefault("engine.asset_server_url", def.Engine.URL)
	v.SetDefault("engine.asset_server_port", def.Engine.Port)
	v.SetDefault("engine.asset_server_timeout", def.Engine.Timeout)
	v.SetDefault("engine.concurrent_bundles", def.Engine.ConcurrentBundles)
	v.SetDefault("engine.profile_concurrent_limit", def.Engine.ProfileConcurrency)
	v.SetDefault("engine.process_name", def.Engine.ProcessName)
	v.SetDefault("engine.max_gltf_count", def.Engine.MaxGLTFCount)
	v.SetDefault("engine.max_content_size_bytes", def.Engine.MaxContentSizeBytes)
	v.SetDefault("fetch.max_retries", def.Fetch.MaxRetries)
	v.SetDefault("fetch.initial_delay", def.Fetch.InitialDelay)
	v.SetDefault("fetch.max_delay", def.Fetch.MaxDelay)
	v.SetDefault("fetch.timeout", def.Fetch.Timeout)
	v.SetDefault("fetch.backoff_multiplier", def.Fetch.BackoffMultiplier)
	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.sampling_rate", def.Observability.Tracing.SamplingRate)
	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	bindEnv(v)

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		millisecondDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.ProcessMethod == "" {
		cfg.ProcessMethod = def.ProcessMethod
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// millisecondDurationHookFunc decodes a time.Duration from a bare millisecond
// integer string (e.g. FETCH_TIMEOUT_MS="1000"), as documented in spec.md 6,
// falling back to Go's usual unit-suffixed duration syntax ("1s") so config
// files can still spell durations either way.
func millisecondDurationHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != durationType || from.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return data, fmt.Errorf("invalid duration %q: not a Go duration or a millisecond integer", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
}

// bindEnv wires the spec's literal environment variable names onto the
// nested config keys viper otherwise expects as FOO_BAR_BAZ.
func bindEnv(v *viper.Viper) {
	binds := map[string]string{
		"process_method":                  "PROCESS_METHOD",
		"queues.task_queue":               "TASK_QUEUE",
		"queues.priority_task_queue":      "PRIORITY_TASK_QUEUE",
		"queues.wearable_task_queue":      "WEARABLE_TASK_QUEUE",
		"queues.emote_task_queue":         "EMOTE_TASK_QUEUE",
		"aws.endpoint":                    "AWS_ENDPOINT",
		"aws.region":                      "AWS_REGION",
		"storage.bucket":                  "BUCKET",
		"storage.s3_endpoint":             "S3_ENDPOINT",
		"storage.s3_prefix":               "S3_PREFIX",
		"storage.s3_access_key_id":        "S3_ACCESS_KEY_ID",
		"storage.s3_secret_access_key":    "S3_SECRET_ACCESS_KEY",
		"notification.sns_arn":           "SNS_ARN",
		"notification.sns_endpoint":       "SNS_ENDPOINT",
		"engine.asset_server_url":         "ASSET_SERVER_URL",
		"engine.asset_server_port":        "ASSET_SERVER_PORT",
		"engine.asset_server_timeout":     "ASSET_SERVER_TIMEOUT_MS",
		"engine.concurrent_bundles":       "ASSET_SERVER_CONCURRENT_BUNDLES",
		"fetch.max_retries":               "FETCH_MAX_RETRIES",
		"fetch.initial_delay":             "FETCH_INITIAL_DELAY_MS",
		"fetch.max_delay":                 "FETCH_MAX_DELAY_MS",
		"fetch.timeout":                   "FETCH_TIMEOUT_MS",
		"fetch.backoff_multiplier":        "FETCH_BACKOFF_MULTIPLIER",
		"monitoring.url":                  "MONITORING_URL",
		"monitoring.secret":               "MONITORING_SECRET",
		"observability.metrics_port":      "METRICS_PORT",
		"observability.log_level":         "LOG_LEVEL",
		"observability.tracing.enabled":   "TRACING_ENABLED",
		"observability.tracing.sampling_rate": "TRACING_SAMPLING_RATE",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	switch cfg.ProcessMethod {
	case MethodLog, MethodGodotMinimap, MethodGodotOptimizer, MethodGenerateCRDT, MethodGenerateImposter:
	default:
		return fmt.Errorf("unknown PROCESS_METHOD %q", cfg.ProcessMethod)
	}
	if cfg.Engine.ConcurrentBundles < 1 {
		return fmt.Errorf("engine.concurrent_bundles must be >= 1")
	}
	if cfg.Engine.ProfileConcurrency < 1 {
		return fmt.Errorf("engine.profile_concurrent_limit must be >= 1")
	}
	if cfg.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}

// UsesInMemoryQueue reports whether the cloud queue backend is unconfigured.
func (c *Config) UsesInMemoryQueue() bool { return c.Queues.Task == "" }

// UsesLocalStorage reports whether the object-store backend is unconfigured.
func (c *Config) UsesLocalStorage() bool { return c.Storage.Bucket == "" }

// UsesMockNotification reports whether the SNS publisher is unconfigured.
func (c *Config) UsesMockNotification() bool { return c.Notification.SNSArn == "" }

// UsesMonitoring reports whether the monitoring reporter should be active.
func (c *Config) UsesMonitoring() bool {
	return c.Monitoring.URL != "" && c.Monitoring.Secret != ""
}
