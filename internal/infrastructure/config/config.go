package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Pipeline  PipelineConfig
	Hub       HubConfig
	Media     MediaConfig
	Storage   StorageConfig
	Catalog   CatalogConfig
	Notify    NotifyConfig
	System    SystemConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8443"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	TLSCert         string        `envconfig:"TLS_CERT"`
	TLSKey          string        `envconfig:"TLS_KEY"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds the dashboard origin allowed to call the API.
type CORSConfig struct {
	Origins []string `envconfig:"FRONTEND_ORIGIN" default:"*"`
}

// PipelineConfig holds media/capture pipeline process configuration.
type PipelineConfig struct {
	Binary            string        `envconfig:"PIPELINE_BINARY" default:"ffmpeg"`
	GracePeriod       time.Duration `envconfig:"PIPELINE_GRACE" default:"5s"`
	ReplaceWait       time.Duration `envconfig:"PIPELINE_REPLACE_WAIT" default:"0s"`
	DefaultStreamPath string        `envconfig:"PIPELINE_STREAM_PATH" default:"/video"`
	UsePTY            bool          `envconfig:"PIPELINE_PTY" default:"false"`
	CrashThreshold    uint32        `envconfig:"PIPELINE_CRASH_THRESHOLD" default:"5"`
	QuarantinePeriod  time.Duration `envconfig:"PIPELINE_QUARANTINE" default:"30s"`
}

// HubConfig holds state synchronization hub configuration.
type HubConfig struct {
	QueueSize int `envconfig:"HUB_QUEUE_SIZE" default:"64"`
}

// MediaConfig holds media relay configuration.
type MediaConfig struct {
	QueueSize int `envconfig:"MEDIA_QUEUE_SIZE" default:"256"`
}

// StorageConfig holds state persistence configuration. Persistence is
// disabled when RedisAddr is empty.
type StorageConfig struct {
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	Key           string        `envconfig:"REDIS_STATE_KEY" default:"nexus:state"`
	FlushInterval time.Duration `envconfig:"STATE_FLUSH_INTERVAL" default:"2s"`
}

// CatalogConfig holds node inventory and capture directory locations.
type CatalogConfig struct {
	NodesFile  string `envconfig:"NODES_FILE"`
	CaptureDir string `envconfig:"CAPTURE_DIR"`
}

// NotifyConfig holds the lifecycle webhook configuration.
type NotifyConfig struct {
	WebhookURL string        `envconfig:"WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"5s"`
	MaxRetries int           `envconfig:"WEBHOOK_RETRIES" default:"3"`
}

// SystemConfig holds host statistics sampling configuration.
type SystemConfig struct {
	SampleInterval time.Duration `envconfig:"SYSTEM_SAMPLE_INTERVAL" default:"5s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads variables from a dotenv file without overriding the
// real environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8443",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			Origins: []string{"*"},
		},
		Pipeline: PipelineConfig{
			Binary:            "ffmpeg",
			GracePeriod:       5 * time.Second,
			DefaultStreamPath: "/video",
			CrashThreshold:    5,
			QuarantinePeriod:  30 * time.Second,
		},
		Hub: HubConfig{
			QueueSize: 64,
		},
		Media: MediaConfig{
			QueueSize: 256,
		},
		Storage: StorageConfig{
			Key:           "nexus:state",
			FlushInterval: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout:    5 * time.Second,
			MaxRetries: 3,
		},
		System: SystemConfig{
			SampleInterval: 5 * time.Second,
		},
	}
}
