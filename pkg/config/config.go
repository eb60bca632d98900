// Package config loads process configuration with the precedence
// defaults -> optional YAML file -> environment variables, then validates
// the result.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"todostream/internal/core/errs"
)

// Storage backend names accepted by Config.Storage.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
	BackendJSONFile = "jsonfile"
)

type StorageConfig struct {
	Backend        string `yaml:"backend"`
	DBPath         string `yaml:"dbPath"`
	MigrationsPath string `yaml:"migrationsPath"`
	DataFile       string `yaml:"dataFile"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"serviceName"`
	ServiceVersion string `yaml:"serviceVersion"`
	OTLPEndpoint   string `yaml:"otlpEndpoint"`
	MetricsAddr    string `yaml:"metricsAddr"`
}

type StreamConfig struct {
	BufferSize    int `yaml:"bufferSize"`
	FanoutWorkers int `yaml:"fanoutWorkers"`
}

type Config struct {
	Environment string          `yaml:"environment"`
	Storage     StorageConfig   `yaml:"storage"`
	Log         LogConfig       `yaml:"log"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Stream      StreamConfig    `yaml:"stream"`
}

// Default returns the configuration used when nothing else is provided:
// the in-memory backend, console logging, telemetry off.
func Default() Config {
	return Config{
		Environment: "development",
		Storage: StorageConfig{
			Backend:        BackendMemory,
			DBPath:         "db/todos.db",
			MigrationsPath: "db/migrations",
			DataFile:       "todos.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			ServiceName:    "todostream",
			ServiceVersion: "dev",
			OTLPEndpoint:   "localhost:4317",
			MetricsAddr:    ":9090",
		},
		Stream: StreamConfig{
			BufferSize:    8,
			FanoutWorkers: 4,
		},
	}
}

// Load builds the effective configuration. An empty path falls back to the
// TODOS_CONFIG environment variable; when neither names a file the YAML
// step is skipped entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := cfg.loadYAML(path); err != nil {
		return Config{}, err
	}
	cfg.loadEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TODOS_CONFIG"))
	}
	if path == "" {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return errs.New("config.Load", errs.CodeConfig,
			errs.WithMessage("opening config file"),
			errs.WithField("path", path),
			errs.WithCause(err))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return errs.New("config.Load", errs.CodeConfig,
			errs.WithMessage("reading config file"),
			errs.WithField("path", path),
			errs.WithCause(err))
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errs.New("config.Load", errs.CodeConfig,
			errs.WithMessage("parsing config file"),
			errs.WithField("path", path),
			errs.WithCause(err))
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := strings.TrimSpace(os.Getenv("TODOS_STORAGE")); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_DB_PATH")); v != "" {
		c.Storage.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_MIGRATIONS")); v != "" {
		c.Storage.MigrationsPath = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_DATA_FILE")); v != "" {
		c.Storage.DataFile = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_LOG_LEVEL")); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_LOG_FORMAT")); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_TELEMETRY")); v != "" {
		c.Telemetry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_OTLP_ENDPOINT")); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("TODOS_METRICS_ADDR")); v != "" {
		c.Telemetry.MetricsAddr = v
	}
}

// Validate rejects configurations the container cannot act on. Backend
// requirements are checked per backend: sqlite needs a database path and
// migrations, jsonfile needs a data file.
func (c *Config) Validate() error {
	switch c.Environment {
	case "development", "test", "production":
	default:
		return errs.New("config.Validate", errs.CodeConfig,
			errs.WithMessage("unknown environment"),
			errs.WithField("environment", c.Environment))
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.DBPath) == "" {
			return errs.New("config.Validate", errs.CodeConfig,
				errs.WithMessage("sqlite backend requires storage.dbPath"))
		}
		if strings.TrimSpace(c.Storage.MigrationsPath) == "" {
			return errs.New("config.Validate", errs.CodeConfig,
				errs.WithMessage("sqlite backend requires storage.migrationsPath"))
		}
	case BackendMemory:
	case BackendJSONFile:
		if strings.TrimSpace(c.Storage.DataFile) == "" {
			return errs.New("config.Validate", errs.CodeConfig,
				errs.WithMessage("jsonfile backend requires storage.dataFile"))
		}
	default:
		return errs.New("config.Validate", errs.CodeConfig,
			errs.WithMessage("unknown storage backend"),
			errs.WithField("backend", c.Storage.Backend))
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errs.New("config.Validate", errs.CodeConfig,
			errs.WithMessage("unknown log level"),
			errs.WithField("level", c.Log.Level),
			errs.WithCause(err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errs.New("config.Validate", errs.CodeConfig,
			errs.WithMessage("unknown log format"),
			errs.WithField("format", c.Log.Format))
	}

	if c.Stream.BufferSize <= 0 {
		return errs.New("config.Validate", errs.CodeConfig,
			errs.WithMessage("stream.bufferSize must be positive"),
			errs.WithField("bufferSize", fmt.Sprintf("%d", c.Stream.BufferSize)))
	}
	if c.Stream.FanoutWorkers <= 0 {
		return errs.New("config.Validate", errs.CodeConfig,
			errs.WithMessage("stream.fanoutWorkers must be positive"),
			errs.WithField("fanoutWorkers", fmt.Sprintf("%d", c.Stream.FanoutWorkers)))
	}

	if c.Telemetry.Enabled {
		if strings.TrimSpace(c.Telemetry.OTLPEndpoint) == "" {
			return errs.New("config.Validate", errs.CodeConfig,
				errs.WithMessage("telemetry requires otlpEndpoint"))
		}
		if strings.TrimSpace(c.Telemetry.MetricsAddr) == "" {
			return errs.New("config.Validate", errs.CodeConfig,
				errs.WithMessage("telemetry requires metricsAddr"))
		}
	}
	return nil
}

// NewLogger builds the root logger from the log section. Level must have
// passed Validate; an unparseable level falls back to info rather than
// failing this late.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
