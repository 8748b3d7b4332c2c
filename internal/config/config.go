// Package config loads the server configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Limit describes one fixed-window rate limit.
type Limit struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Webhook struct {
	AllowedHosts   []string `yaml:"allowed_hosts"`
	AllowedSchemes []string `yaml:"allowed_schemes"`
	// SecretPassphrase encrypts registered hook secrets at rest.
	SecretPassphrase string `yaml:"secret_passphrase"`
}

type Sweeps struct {
	RateLimit time.Duration `yaml:"rate_limit"`
	Anomaly   time.Duration `yaml:"anomaly"`
	LogRotate time.Duration `yaml:"log_rotate"`
	Resources time.Duration `yaml:"resources"`
}

type Config struct {
	ListenAddr       string   `yaml:"listen_addr"`
	TLSCertFile      string   `yaml:"tls_cert"`
	TLSKeyFile       string   `yaml:"tls_key"`
	TrustProxy       bool     `yaml:"trust_proxy"`
	Environment      string   `yaml:"environment"`
	LogLevel         string   `yaml:"log_level"`
	LogDir           string   `yaml:"log_dir"`
	JWTSecret        string   `yaml:"jwt_secret"`
	PublicBaseURL    string   `yaml:"public_base_url"`
	RateLimit        Limit    `yaml:"rate_limit"`
	HealthRateLimit  Limit    `yaml:"health_rate_limit"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes"`
	CORS             CORS     `yaml:"cors"`
	Webhook          Webhook  `yaml:"webhook"`
	CriticalFiles    []string `yaml:"critical_files"`
	MemoryAlertBytes uint64   `yaml:"memory_alert_bytes"`
	Sweeps           Sweeps   `yaml:"sweeps"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:      ":3000",
		Environment:     EnvDevelopment,
		LogLevel:        "info",
		LogDir:          "logs",
		PublicBaseURL:   "https://ejemplo.com",
		RateLimit:       Limit{Window: 15 * time.Minute, Max: 100},
		HealthRateLimit: Limit{Window: time.Minute, Max: 10},
		MaxBodyBytes:    1 << 20,
		CORS: CORS{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Webhook: Webhook{
			AllowedHosts:   []string{"api.ejemplo.com", "hooks.ejemplo.com"},
			AllowedSchemes: []string{"https"},
		},
		MemoryAlertBytes: 100 << 20,
		Sweeps: Sweeps{
			RateLimit: 5 * time.Minute,
			Anomaly:   time.Hour,
			LogRotate: 24 * time.Hour,
			Resources: 5 * time.Minute,
		},
	}
}

// Load reads path on top of the defaults and applies CATALOG_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("file", path).Msg("config file not found, using defaults")
	default:
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CATALOG_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CATALOG_ENV"); v != "" {
		cfg.Environment = strings.ToLower(v)
	}
	if v := os.Getenv("CATALOG_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("CATALOG_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("CATALOG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret must be configured (or CATALOG_JWT_SECRET env var)")
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		return errors.New("rate_limit window and max must be positive")
	}
	if c.HealthRateLimit.Window <= 0 || c.HealthRateLimit.Max <= 0 {
		return errors.New("health_rate_limit window and max must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	sw := c.Sweeps
	if sw.RateLimit <= 0 || sw.Anomaly <= 0 || sw.LogRotate <= 0 || sw.Resources <= 0 {
		return errors.New("sweep intervals must be positive")
	}
	return nil
}

func (c Config) Production() bool { return c.Environment == EnvProduction }
