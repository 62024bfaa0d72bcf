package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/autoscan/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Capture     CaptureConfig     `yaml:"capture"`
	Location    string            `yaml:"location"` // IANA zone used for calendar days, default Local
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr           string        `yaml:"address"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	MaxUploadSize  ByteSize      `yaml:"maxUploadSize"`
	WorkerCount    int           `yaml:"workerCount"`
	QueueCapacity  int           `yaml:"queueCapacity"`
	StorageDir     string        `yaml:"storageDir"`
	APIKey         string        `yaml:"apiKey"`         // optional static API key header (X-API-Key)
	AllowedOrigins []string      `yaml:"allowedOrigins"` // CORS origins of the web front end
	ShutdownGrace  time.Duration `yaml:"shutdownGrace"`  // time to wait for workers before forced stop
	LogLevel       string        `yaml:"logLevel"`       // debug|info|warn|error
}

// StorageConfig selects where the work log and mechanic documents live.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "file"
	Path    string `yaml:"path"`    // database file or blob directory; defaults under storageDir
}

// RecognitionConfig selects the plate recognition provider and its options.
type RecognitionConfig struct {
	Provider string          `yaml:"provider"` // "mock", "aiproxy" or "openai"
	Mock     MockSettings    `yaml:"mock"`
	AIProxy  AIProxySettings `yaml:"aiproxy"`
	OpenAI   OpenAISettings  `yaml:"openai"`
}

// MockSettings config for the mock recognizer.
type MockSettings struct {
	Delay time.Duration `yaml:"delay"`
	Plate string        `yaml:"plate"` // empty means "no plate found"
}

// AIProxySettings config for the AI Proxy (OpenAI-compatible) recognizer.
type AIProxySettings struct {
	BaseURL      string  `yaml:"baseUrl"`      // e.g. http://localhost:8900
	APIKey       string  `yaml:"apiKey"`       // optional
	Model        string  `yaml:"model"`        // e.g. gpt-4o-mini
	Instructions string  `yaml:"instructions"` // optional prompt override
	Temperature  float32 `yaml:"temperature"`  // optional
	MaxTokens    int     `yaml:"maxTokens"`    // optional
}

// OpenAISettings config for the OpenAI SDK recognizer.
type OpenAISettings struct {
	APIKey       string        `yaml:"apiKey"`
	BaseURL      string        `yaml:"baseUrl"` // optional, for compatible gateways
	Model        string        `yaml:"model"`
	Instructions string        `yaml:"instructions"`
	Temperature  float64       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CaptureConfig tunes the automatic capture loop.
type CaptureConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"maxAttempts"` // 0 means until cancelled
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt AUTOSCAN_CONFIG, then "config.yaml"; a missing
// default file yields the built-in defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		if env := os.Getenv(common.ConfigEnvVar); env != "" {
			path = env
			explicit = true
		} else {
			path = common.DefaultCfgFile
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Server.StorageDir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storageDir: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = ByteSize(10 * 1024 * 1024) // 10 MiB default
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = common.DefaultWorkerCount
	}
	if cfg.Server.QueueCapacity <= 0 {
		cfg.Server.QueueCapacity = common.DefaultQueueCapacity
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = "data"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	// Storage defaults
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Backend {
		case "file":
			cfg.Storage.Path = filepath.Join(cfg.Server.StorageDir, common.BlobsDirName)
		default:
			cfg.Storage.Path = filepath.Join(cfg.Server.StorageDir, common.DatabaseName)
		}
	}

	// Recognition defaults
	cfg.Recognition.Provider = strings.ToLower(strings.TrimSpace(cfg.Recognition.Provider))
	if cfg.Recognition.Provider == "" {
		cfg.Recognition.Provider = "mock"
	}
	if strings.TrimSpace(cfg.Recognition.AIProxy.BaseURL) == "" {
		cfg.Recognition.AIProxy.BaseURL = "http://localhost:8900"
	}
	if strings.TrimSpace(cfg.Recognition.AIProxy.Model) == "" {
		cfg.Recognition.AIProxy.Model = "gpt-4o-mini"
	}
	if cfg.Recognition.AIProxy.Temperature == 0 {
		cfg.Recognition.AIProxy.Temperature = 0.1
	}
	if strings.TrimSpace(cfg.Recognition.OpenAI.Model) == "" {
		cfg.Recognition.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Recognition.OpenAI.Temperature == 0 {
		cfg.Recognition.OpenAI.Temperature = 0.1
	}
	if cfg.Recognition.OpenAI.Timeout == 0 {
		cfg.Recognition.OpenAI.Timeout = 30 * time.Second
	}

	// Capture defaults
	if cfg.Capture.Interval == 0 {
		cfg.Capture.Interval = common.DefaultCaptureInterval
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("storage.backend %q not supported", cfg.Storage.Backend)
	}

	switch cfg.Recognition.Provider {
	case "mock", "aiproxy":
	case "openai":
		if strings.TrimSpace(cfg.Recognition.OpenAI.APIKey) == "" {
			return fmt.Errorf("recognition.openai.apiKey is required")
		}
	default:
		return fmt.Errorf("recognition.provider %q not supported", cfg.Recognition.Provider)
	}

	if cfg.Capture.Interval < 0 {
		return fmt.Errorf("capture.interval must be positive")
	}
	if cfg.Capture.MaxAttempts < 0 {
		return fmt.Errorf("capture.maxAttempts must not be negative")
	}
	if _, err := parseLevel(cfg.Server.LogLevel); err != nil {
		return err
	}
	if _, err := cfg.TimeLocation(); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	lvl, err := parseLevel(c.Server.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("server.logLevel %q not supported", s)
}

// TimeLocation resolves the configured zone for calendar-day grouping.
func (c *Config) TimeLocation() (*time.Location, error) {
	if strings.TrimSpace(c.Location) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", c.Location, err)
	}
	return loc, nil
}
