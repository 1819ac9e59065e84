package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all askdesk configuration.
type Config struct {
	Listen    string           `yaml:"listen"`
	Log       LogConfig        `yaml:"log"`
	API       APIConfig        `yaml:"api"`
	Database  DatabaseConfig   `yaml:"database"`
	Providers []ProviderConfig `yaml:"providers"`
	Models    []ModelTarget    `yaml:"models"`
	Resolver  ResolverConfig   `yaml:"resolver"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Tracker   TrackerConfig    `yaml:"tracker"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	CORS      CORSConfig       `yaml:"cors"`
}

// LogConfig controls the application logger. File is optional; when set,
// JSON lines are also written there with rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "console" or "json"
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// APIConfig is the client's view of the backend.
type APIConfig struct {
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout"`
	HealthTimeout  time.Duration `yaml:"health_timeout"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// DatabaseConfig controls the persistent answer cache used by the client.
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Path            string        `yaml:"path"`
	MaxAgeDays      int           `yaml:"max_age_days"`
	MaxEntries      int           `yaml:"max_entries"`
	CleanupDelay    time.Duration `yaml:"cleanup_delay"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ProviderConfig defines an upstream generation API.
// Type is "gemini" (default) or "openai".
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelTarget is one entry of the ordered model fallback chain.
type ModelTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// ResolverConfig controls retries, the in-memory answer cache and outbound pacing.
type ResolverConfig struct {
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries   int           `yaml:"cache_max_entries"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	ErrorRetryDelay   time.Duration `yaml:"error_retry_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// RateLimitConfig controls the per-client request window.
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
	MaxClients  int           `yaml:"max_clients"`
	TrustProxy  bool          `yaml:"trust_proxy"`
}

// TrackerConfig controls per-query record keeping on the server.
type TrackerConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultGeminiURL is the Gemini REST base.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":5000",
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		API: APIConfig{
			URL:            "http://127.0.0.1:5000",
			Timeout:        30 * time.Second,
			HealthTimeout:  3 * time.Second,
			HealthInterval: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         true,
			Path:            "qa_database.db",
			MaxAgeDays:      30,
			MaxEntries:      1000,
			CleanupDelay:    time.Hour,
			CleanupInterval: 24 * time.Hour,
		},
		Providers: []ProviderConfig{
			{Name: "gemini", Type: "gemini", URL: DefaultGeminiURL, Timeout: 60 * time.Second},
		},
		Models: []ModelTarget{
			{Provider: "gemini", Model: "gemini-1.5-pro"},
			{Provider: "gemini", Model: "gemini-pro"},
		},
		Resolver: ResolverConfig{
			CacheTTL:        time.Hour,
			CacheMaxEntries: 10000,
			SweepInterval:   10 * time.Minute,
			MaxRetries:      2,
			RetryDelay:      time.Second,
			ErrorRetryDelay: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      time.Minute,
			MaxRequests: 10,
			MaxClients:  10000,
		},
		Tracker: TrackerConfig{
			Enabled: true,
			DBPath:  "askdesk.db",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load reads a YAML config file, expands environment variables and applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns defaults (with environment
// overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return cfg, err
}

// ApplyEnv applies PORT, GEMINI_API_KEY and ASKDESK_API_URL overrides.
// The Gemini key only fills providers that have no key configured.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Listen = ":" + port
	}
	if url := os.Getenv("ASKDESK_API_URL"); url != "" {
		c.API.URL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		for i := range c.Providers {
			if c.Providers[i].APIKey == "" && providerType(c.Providers[i]) == "gemini" {
				c.Providers[i].APIKey = key
			}
		}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required when database.enabled"))
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
		}
		switch providerType(p) {
		case "gemini", "openai":
		default:
			errs = append(errs, fmt.Errorf("providers[%d]: unknown type %q", i, p.Type))
		}
		names[p.Name] = true
	}
	if len(c.Models) == 0 {
		errs = append(errs, errors.New("at least one model is required"))
	}
	for i, m := range c.Models {
		if m.Model == "" {
			errs = append(errs, fmt.Errorf("models[%d]: model is required", i))
		}
		if m.Provider != "" && !names[m.Provider] {
			errs = append(errs, fmt.Errorf("models[%d]: unknown provider %q", i, m.Provider))
		}
	}

	if c.Resolver.MaxRetries < 0 {
		errs = append(errs, errors.New("resolver.max_retries must not be negative"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0) {
		errs = append(errs, errors.New("rate_limit.window and rate_limit.max_requests must be positive"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

func providerType(p ProviderConfig) string {
	if p.Type == "" {
		return "gemini"
	}
	return p.Type
}
