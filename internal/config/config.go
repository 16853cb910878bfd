// Package config loads and validates application configuration from YAML files,
// an optional .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/13879107157/wyclient/model"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Session       SessionConfig       `yaml:"session"`
	Templates     TemplatesConfig     `yaml:"templates"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Lookup        LookupCacheConfig   `yaml:"lookup"`
	Menu          []model.MenuNode    `yaml:"menu"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// BackendConfig describes the REST backend the console fronts.
type BackendConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	ProbePath      string               `yaml:"probe_path"`
	// MaxResponseBytes caps how much of a backend response body is read.
	MaxResponseBytes int64              `yaml:"max_response_bytes"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Matching       MatchingConfig       `yaml:"matching"`
}

// CircuitBreakerConfig describes the backend circuit breaker. A zero
// FailureThreshold disables it.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MatchingConfig describes the Excel matching endpoint.
type MatchingConfig struct {
	Path             string `yaml:"path"`
	DefaultURLColumn string `yaml:"default_url_column"`
}

// SessionConfig describes console sessions.
type SessionConfig struct {
	CookieName   string        `yaml:"cookie_name"`
	SecretEnv    string        `yaml:"secret_env"`
	Secret       string        `yaml:"-"`
	TTL          time.Duration `yaml:"ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
	Store        StoreConfig   `yaml:"store"`
}

// StoreConfig selects a session store driver.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	AddrEnv string `yaml:"addr_env"`
	DB      int    `yaml:"db"`
	Path    string `yaml:"path"`
}

// TemplatesConfig describes information-entry template persistence.
type TemplatesConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AnalysisConfig describes the analysis workspaces.
type AnalysisConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	PageSize      int           `yaml:"page_size"`
	ExportName    string        `yaml:"export_name"`
}

// LookupCacheConfig describes the group/type name cache.
type LookupCacheConfig struct {
	Cache CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			HandlerTimeout:  55 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  32 << 20,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Backend: BackendConfig{
			Timeout:   10 * time.Second,
			ProbePath: "/api/platform-types/1",
			// match results echo every matched row, so this stays above the upload limit
			MaxResponseBytes: 64 << 20,
			Matching: MatchingConfig{
				Path:             "/api/excelMatching",
				DefaultURLColumn: "关键字URL",
			},
		},
		Session: SessionConfig{
			CookieName: "wy_session",
			SecretEnv:  "WYCLIENT_SESSION_SECRET",
			TTL:        12 * time.Hour,
			Store: StoreConfig{
				Driver: "memory",
			},
		},
		Templates: TemplatesConfig{
			Driver:          "memory",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analysis: AnalysisConfig{
			IdleTTL:       2 * time.Hour,
			SweepSchedule: "@every 10m",
			PageSize:      10,
			ExportName:    "exported_data.xlsx",
		},
		Lookup: LookupCacheConfig{
			Cache: CacheConfig{
				TTL:        time.Minute,
				MaxEntries: 1000,
			},
		},
		Menu: DefaultMenu(),
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// DefaultMenu is the console navigation used when the config file has none.
func DefaultMenu() []model.MenuNode {
	return []model.MenuNode{
		{Key: "sub1", Label: "平台类型管理", Icon: "user", Children: []model.MenuNode{
			{Key: "1", Label: "列表", Path: "/PlatFormType/list"},
			{Key: "2", Label: "新增", Path: "/PlatFormType/add"},
		}},
		{Key: "sub2", Label: "平台组", Icon: "user", Children: []model.MenuNode{
			{Key: "3", Label: "平台组列表", Path: "/PlatformGroup/list"},
			{Key: "4", Label: "新增平台组", Path: "/PlatformGroup/add"},
		}},
		{Key: "sub3", Label: "平台管理", Icon: "laptop", Children: []model.MenuNode{
			{Key: "5", Label: "平台列表", Path: "/Platform/list"},
			{Key: "6", Label: "新增平台", Path: "/Platform/add"},
		}},
		{Key: "sub4", Label: "数据分析", Icon: "notification", Children: []model.MenuNode{
			{Key: "7", Label: "信息匹配", Path: "/DataAnalysis/3++"},
			{Key: "8", Label: "信息录入", Path: "/DataAnalysis/input"},
		}},
	}
}

// Load reads a YAML config file, applies .env and environment variable
// overrides, and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads environment variables from a .env file without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: loading %s: %w", path, err)
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	} else if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		errs = append(errs, "backend.base_url must be an http(s) URL")
	}
	if c.Backend.MaxResponseBytes < c.Server.MaxUploadBytes {
		errs = append(errs, "backend.max_response_bytes must not be below server.max_upload_bytes")
	}
	if c.Backend.Matching.Path == "" {
		errs = append(errs, "backend.matching.path is required")
	}
	if c.Session.Secret == "" {
		errs = append(errs, fmt.Sprintf("session secret is required (set %s)", c.Session.SecretEnv))
	}
	switch c.Session.Store.Driver {
	case "memory", "redis", "file":
	default:
		errs = append(errs, fmt.Sprintf("session.store.driver %q is not supported (memory, redis, file)", c.Session.Store.Driver))
	}
	switch c.Templates.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("templates.driver %q is not supported (memory, postgres)", c.Templates.Driver))
	}
	if c.Analysis.PageSize < 1 {
		errs = append(errs, "analysis.page_size must be positive")
	}
	if len(c.Menu) == 0 {
		errs = append(errs, "menu must have at least one entry")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads WYCLIENT_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WYCLIENT_SERVER_PORT"); v != "" {
		if port, err := cast.ToIntE(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WYCLIENT_BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("WYCLIENT_BACKEND_MAX_RESPONSE_BYTES"); v != "" {
		if n, err := cast.ToInt64E(v); err == nil {
			cfg.Backend.MaxResponseBytes = n
		}
	}
	if v := os.Getenv("WYCLIENT_BACKEND_TIMEOUT"); v != "" {
		if d, err := cast.ToDurationE(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("WYCLIENT_SESSION_STORE"); v != "" {
		cfg.Session.Store.Driver = v
	}
	if v := os.Getenv("WYCLIENT_TEMPLATES_DRIVER"); v != "" {
		cfg.Templates.Driver = v
	}
	if v := os.Getenv("WYCLIENT_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if cfg.Session.SecretEnv != "" {
		cfg.Session.Secret = os.Getenv(cfg.Session.SecretEnv)
	}
}
