// Package config loads AIPerf's configuration surfaces:
// github.com/caarlos0/env struct tags
// for environment binding, github.com/joho/godotenv for an optional.env
// file in dev, one Validate() pass before the value is trusted.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// EndpointConfig describes the inference server under test.
type EndpointConfig struct {
	BaseURL          string            `env:"AIPERF_ENDPOINT_BASE_URL" envDefault:"http://localhost:8000"`
	CustomEndpoint   string            `env:"AIPERF_ENDPOINT_CUSTOM_PATH"`
	Type             string            `env:"AIPERF_ENDPOINT_TYPE" envDefault:"chat"` // chat|completions|embeddings|rankings
	Streaming        bool              `env:"AIPERF_ENDPOINT_STREAMING" envDefault:"false"`
	PrimaryModelName string            `env:"AIPERF_ENDPOINT_MODEL"`
	APIKey           string            `env:"AIPERF_ENDPOINT_API_KEY"`
	URLParams        map[string]string `env:"-"`
	ExtraParams      map[string]any    `env:"-"`
	Headers          map[string]string `env:"-"`
}

// LoadGenerationConfig is the request-rate / concurrency side of UserConfig.
type LoadGenerationConfig struct {
	Mode              string  `env:"AIPERF_LOAD_MODE" envDefault:"concurrency_burst"` // constant|poisson|concurrency_burst|fixed_schedule
	RequestRate       float64 `env:"AIPERF_REQUEST_RATE" envDefault:"10"`
	MaxConcurrency    int     `env:"AIPERF_MAX_CONCURRENCY" envDefault:"8"`
	RandomSeed        *int64  `env:"AIPERF_RANDOM_SEED"`
	WarmupRequests    int     `env:"AIPERF_WARMUP_REQUESTS" envDefault:"0"`
	WarmupDurationSec float64 `env:"AIPERF_WARMUP_DURATION_SEC" envDefault:"0"`
	TotalRequests     int     `env:"AIPERF_TOTAL_REQUESTS" envDefault:"10"`
	DurationSec       float64 `env:"AIPERF_DURATION_SEC" envDefault:"0"`
	BenchmarkGraceSec float64 `env:"AIPERF_BENCHMARK_GRACE_PERIOD_SEC" envDefault:"0"`
	CancelAfterSec    float64 `env:"AIPERF_CANCEL_AFTER_SEC" envDefault:"0"`
	CancelDrainSec    float64 `env:"AIPERF_CANCEL_DRAIN_TIMEOUT_SEC" envDefault:"30"`
}

// UserConfig is the structured configuration the core consumes
// CLI parsing and dataset composition live outside the core's boundary; this
// struct is what they are expected to hand in.
type UserConfig struct {
	Endpoint EndpointConfig
	Load     LoadGenerationConfig

	NumWorkers         int    `env:"AIPERF_NUM_WORKERS" envDefault:"4"`
	NumRecordProcessors int   `env:"AIPERF_NUM_RECORD_PROCESSORS" envDefault:"2"`
	OutputDir          string `env:"AIPERF_OUTPUT_DIR" envDefault:"./artifacts"`

	// DatasetPath points at a JSON conversations file produced by the
	// dataset-composition collaborator; empty means a minimal built-in
	// dataset.
	DatasetPath string `env:"AIPERF_DATASET_PATH"`

	DCGMURLs []string `env:"-"` // populated by the CLI collaborator; see TelemetryConfig.DCGMURLs
}

// ServiceConfig carries bus addresses and progress intervals: everything a
// service needs to find the broker and how chatty to be
type ServiceConfig struct {
	Transport string `env:"AIPERF_BUS_TRANSPORT" envDefault:"ipc"` // ipc|tcp|inproc
	Host      string `env:"AIPERF_BUS_HOST" envDefault:"127.0.0.1"`
	IPCDir    string `env:"AIPERF_BUS_IPC_DIR" envDefault:"/tmp/aiperf"`

	PubSubFrontendPort int `env:"AIPERF_BUS_PUBSUB_FRONTEND_PORT" envDefault:"25551"`
	PubSubBackendPort  int `env:"AIPERF_BUS_PUBSUB_BACKEND_PORT" envDefault:"25552"`
	DealerFrontendPort int `env:"AIPERF_BUS_DEALER_FRONTEND_PORT" envDefault:"25553"`
	DealerBackendPort  int `env:"AIPERF_BUS_DEALER_BACKEND_PORT" envDefault:"25554"`
	PushFrontendPort   int `env:"AIPERF_BUS_PUSH_FRONTEND_PORT" envDefault:"25555"`
	PushBackendPort    int `env:"AIPERF_BUS_PUSH_BACKEND_PORT" envDefault:"25556"`

	HeartbeatIntervalSec   float64 `env:"AIPERF_HEARTBEAT_INTERVAL_SEC" envDefault:"5"`
	HeartbeatStaleAfterN   int     `env:"AIPERF_HEARTBEAT_STALE_AFTER_N" envDefault:"3"`
	RegistrationTimeoutSec float64 `env:"AIPERF_REGISTRATION_TIMEOUT_SEC" envDefault:"30"`
	ProgressIntervalSec    float64 `env:"AIPERF_PROGRESS_INTERVAL_SEC" envDefault:"2"`

	// WorkerConcurrentRequests is AIPERF_WORKER_CONCURRENT_REQUESTS:
	// caps the pull-worker's concurrent credit-handling goroutines.
	WorkerConcurrentRequests int `env:"AIPERF_WORKER_CONCURRENT_REQUESTS" envDefault:"500"`

	RequestTimeoutSec float64 `env:"AIPERF_REQUEST_TIMEOUT_SEC" envDefault:"300"` // 5 min, matches the fabric socket timeouts
	DealerTimeoutSec  float64 `env:"AIPERF_DEALER_TIMEOUT_SEC" envDefault:"5"`

	LogLevel  string `env:"AIPERF_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"AIPERF_LOG_FORMAT" envDefault:"json"`
}

// TelemetryConfig configures the Telemetry Manager's DCGM probing.
type TelemetryConfig struct {
	Enabled        bool          `env:"AIPERF_TELEMETRY_ENABLED" envDefault:"true"`
	URLs           []string      `env:"AIPERF_TELEMETRY_DCGM_URLS" envSeparator:","`
	DefaultURL     string        `env:"AIPERF_TELEMETRY_DEFAULT_URL" envDefault:"http://localhost:9401/metrics"`
	PollInterval   time.Duration `env:"AIPERF_TELEMETRY_POLL_INTERVAL" envDefault:"330ms"`
	ProbeTimeout   time.Duration `env:"AIPERF_TELEMETRY_PROBE_TIMEOUT" envDefault:"2s"`
}

// Load reads both UserConfig and ServiceConfig from a shared.env file and
// the process environment, validating each. Priority is env vars >.env
// file > struct defaults.
func Load(logger *zerolog.Logger) (*UserConfig, *ServiceConfig, *TelemetryConfig, error) {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Info().Msg("no.env file found, using process environment only")
	}

	uc := &UserConfig{}
	if err := env.Parse(uc); err != nil {
		return nil, nil, nil, fmt.Errorf("parsing user config: %w", err)
	}
	if err := uc.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("validating user config: %w", err)
	}

	sc := &ServiceConfig{}
	if err := env.Parse(sc); err != nil {
		return nil, nil, nil, fmt.Errorf("parsing service config: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("validating service config: %w", err)
	}

	tc := &TelemetryConfig{}
	if err := env.Parse(tc); err != nil {
		return nil, nil, nil, fmt.Errorf("parsing telemetry config: %w", err)
	}

	return uc, sc, tc, nil
}

// Validate enforces the credit-phase invariant at the config boundary:
// exactly one of total-requests / duration may drive each phase.
func (c *UserConfig) Validate() error {
	if c.Load.TotalRequests > 0 && c.Load.DurationSec > 0 {
		return fmt.Errorf("exactly one of AIPERF_TOTAL_REQUESTS / AIPERF_DURATION_SEC may be set, got both")
	}
	if c.Load.TotalRequests == 0 && c.Load.DurationSec == 0 {
		return fmt.Errorf("exactly one of AIPERF_TOTAL_REQUESTS / AIPERF_DURATION_SEC must be set")
	}
	if c.Load.WarmupRequests > 0 && c.Load.WarmupDurationSec > 0 {
		return fmt.Errorf("exactly one of warmup request count / warmup duration may be set, got both")
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("AIPERF_NUM_WORKERS must be > 0, got %d", c.NumWorkers)
	}
	if c.Load.MaxConcurrency < 1 {
		return fmt.Errorf("AIPERF_MAX_CONCURRENCY must be > 0, got %d", c.Load.MaxConcurrency)
	}
	switch c.Endpoint.Type {
	case "chat", "completions", "embeddings", "rankings":
	default:
		return fmt.Errorf("unknown AIPERF_ENDPOINT_TYPE %q", c.Endpoint.Type)
	}
	return nil
}

// BusTransport, BusHost, BusIPCDir, and BusPorts satisfy comms.ServiceAddressing
// structurally (no import of internal/comms needed here, avoiding a cycle).
func (c *ServiceConfig) BusTransport() string { return c.Transport }
func (c *ServiceConfig) BusHost() string      { return c.Host }
func (c *ServiceConfig) BusIPCDir() string    { return c.IPCDir }

func (c *ServiceConfig) BusPorts() (pubSubFrontend, pubSubBackend, dealerFrontend, dealerBackend, pushFrontend, pushBackend int) {
	return c.PubSubFrontendPort, c.PubSubBackendPort, c.DealerFrontendPort, c.DealerBackendPort, c.PushFrontendPort, c.PushBackendPort
}

// Validate checks ServiceConfig for internally consistent bus addressing.
func (c *ServiceConfig) Validate() error {
	switch c.Transport {
	case "ipc", "tcp", "inproc":
	default:
		return fmt.Errorf("AIPERF_BUS_TRANSPORT must be one of ipc|tcp|inproc, got %q", c.Transport)
	}
	if c.WorkerConcurrentRequests < 1 {
		return fmt.Errorf("AIPERF_WORKER_CONCURRENT_REQUESTS must be > 0, got %d", c.WorkerConcurrentRequests)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("AIPERF_LOG_LEVEL must be one of debug|info|warn|error|fatal, got %q", c.LogLevel)
	}
	return nil
}

// LogConfig logs both configs using structured logging.
func LogConfig(logger zerolog.Logger, uc *UserConfig, sc *ServiceConfig) {
	logger.Info().
		Str("endpoint_base_url", uc.Endpoint.BaseURL).
		Str("endpoint_type", uc.Endpoint.Type).
		Bool("streaming", uc.Endpoint.Streaming).
		Str("load_mode", uc.Load.Mode).
		Float64("request_rate", uc.Load.RequestRate).
		Int("max_concurrency", uc.Load.MaxConcurrency).
		Int("num_workers", uc.NumWorkers).
		Str("bus_transport", sc.Transport).
		Msg("configuration loaded")
}
