package config

import "time"

// Processing modes accepted in orchestrator.mode.
const (
	ModeSmart  = "smart"
	ModeRemote = "remote"
	ModeLocal  = "local"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Routing      RoutingConfig      `yaml:"routing"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Pagination   PaginationConfig   `yaml:"pagination"`
	Fallback     FallbackConfig     `yaml:"fallback"`
	Guard        GuardConfig        `yaml:"guard"`
	Cache        CacheConfig        `yaml:"cache"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	IngestRPM        int           `yaml:"ingest_rpm"`
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPath string `yaml:"metrics_path"`
}

type RoutingConfig struct {
	DefaultTimeout     time.Duration        `yaml:"default_timeout"`
	Temperature        float64              `yaml:"temperature"`
	CircuitBreaker     CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimitWindow    time.Duration        `yaml:"rate_limit_window"`
	DefaultProviderRPM int                  `yaml:"default_provider_rpm"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

// OrchestratorConfig carries the environment-level inputs of the pipeline.
type OrchestratorConfig struct {
	Mode           string `yaml:"mode"`
	RemoteProvider string `yaml:"remote_provider"`
	RemoteModel    string `yaml:"remote_model"`
	Budget         string `yaml:"budget"`
	Offline        bool   `yaml:"offline"`
	DocType        string `yaml:"doc_type"`
	MaxConcurrency int    `yaml:"max_concurrency"`
}

type PaginationConfig struct {
	Pdfinfo  string `yaml:"pdfinfo"`
	Pdftoppm string `yaml:"pdftoppm"`
	DPI      int    `yaml:"dpi"`
	MaxPages int    `yaml:"max_pages"`
}

type FallbackConfig struct {
	Tesseract     string `yaml:"tesseract"`
	TesseractLang string `yaml:"tesseract_lang"`
	Enabled       bool   `yaml:"enabled"`
}

type GuardConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8001,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     300 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			MaxUploadBytes:   32 << 20,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPath: "/metrics",
		},
		Routing: RoutingConfig{
			DefaultTimeout: 120 * time.Second,
			Temperature:    0.1,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 30 * time.Second,
			},
			RateLimitWindow:    time.Minute,
			DefaultProviderRPM: 60,
		},
		Orchestrator: OrchestratorConfig{
			Mode:           ModeSmart,
			RemoteProvider: "openrouter",
			Budget:         "medium",
			DocType:        "invoice",
			MaxConcurrency: 4,
		},
		Pagination: PaginationConfig{
			Pdfinfo:  "pdfinfo",
			Pdftoppm: "pdftoppm",
			DPI:      200,
		},
		Fallback: FallbackConfig{
			Tesseract:     "tesseract",
			TesseractLang: "eng",
			Enabled:       true,
		},
		Guard: GuardConfig{
			Enabled:           false,
			BundlePath:        "configs/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     24 * time.Hour,
		},
	}
}
