package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level host configuration.
type Config struct {
	Host      HostConfig      `yaml:"host"`
	Model     ModelConfig     `yaml:"model"`
	Gate      GateConfig      `yaml:"gate"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Client    ClientConfig    `yaml:"client"`
	Auth      AuthConfig      `yaml:"auth"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
}

// HostConfig holds the inbound HTTP entry point settings.
type HostConfig struct {
	Addr        string `yaml:"addr"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// RateLimitPerMin and RateLimitBurst bound inbound requests per client
	// IP before they reach the router.
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
	RateLimitBurst  int `yaml:"rate_limit_burst"`
}

// ModelConfig selects the backing reasoning model.
type ModelConfig struct {
	ID            string `yaml:"id"`
	Region        string `yaml:"region"`
	MaxTokens     int    `yaml:"max_tokens"`
	MaxIterations int    `yaml:"max_iterations"`
}

// GateConfig bounds calls into the reasoning engine.
type GateConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MinSpacing    time.Duration `yaml:"min_spacing"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
}

// DiscoveryConfig lists remote specialist addresses and retry bounds.
type DiscoveryConfig struct {
	Addresses   []string      `yaml:"addresses"`
	Attempts    int           `yaml:"attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	HealthProbe bool          `yaml:"health_probe"`
	// Rediscover is an optional cron spec (e.g. "@every 10m") for periodic
	// re-discovery passes rebuilding the registry. Empty disables it.
	Rediscover string `yaml:"rediscover"`
	MDNS       bool   `yaml:"mdns"`
}

// ClientConfig holds per-phase HTTP timeouts and pool sizing for the
// outbound A2A client.
type ClientConfig struct {
	ConnTimeout  time.Duration `yaml:"conn_timeout"`
	RespTimeout  time.Duration `yaml:"resp_timeout"`
	TotalTimeout time.Duration `yaml:"total_timeout"`
	Pool         PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// AuthConfig holds the outbound bearer credential. The token may be stored
// encrypted with an "enc:" prefix (see DecryptValue) and decrypted at load
// time with the passphrase from NETAIOPS_CONFIG_KEY.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() *Config {
	return &Config{
		Host: HostConfig{
			Addr:            ":8080",
			Name:            "NetAIOps_Collaborator",
			Description:     "Lead NetOps orchestrator routing requests to specialist agents",
			RateLimitPerMin: 100,
			RateLimitBurst:  20,
		},
		Model: ModelConfig{
			ID:            "anthropic.claude-sonnet-4-20250514-v1:0",
			Region:        "us-east-1",
			MaxTokens:     4096,
			MaxIterations: 10,
		},
		Gate: GateConfig{
			MaxConcurrent: 2,
			MinSpacing:    time.Second,
			MaxRetries:    3,
			BaseDelay:     2 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Attempts:    3,
			BaseDelay:   2 * time.Second,
			HealthProbe: true,
		},
		Client: ClientConfig{
			ConnTimeout:  30 * time.Second,
			RespTimeout:  120 * time.Second,
			TotalTimeout: 15 * time.Minute,
			Pool: PoolConfig{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				MaxConnsPerHost:     10,
				IdleConnTimeout:     120 * time.Second,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file is not an error: defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults plus env overrides.
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := decryptSecrets(cfg, os.Getenv("NETAIOPS_CONFIG_KEY")); err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps NETAIOPS_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NETAIOPS_HOST_ADDR"); v != "" {
		cfg.Host.Addr = v
	}
	if v := os.Getenv("NETAIOPS_MODEL_ID"); v != "" {
		cfg.Model.ID = v
	}
	if v := os.Getenv("NETAIOPS_MODEL_REGION"); v != "" {
		cfg.Model.Region = v
	}
	if v := os.Getenv("NETAIOPS_BEARER_TOKEN"); v != "" {
		cfg.Auth.BearerToken = v
	}
	if v := os.Getenv("NETAIOPS_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("NETAIOPS_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("NETAIOPS_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("NETAIOPS_GATE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Gate.MaxConcurrent = n
		}
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func Validate(cfg *Config) error {
	if cfg.Gate.MaxConcurrent < 1 {
		return fmt.Errorf("gate.max_concurrent must be >= 1, got %d", cfg.Gate.MaxConcurrent)
	}
	if cfg.Gate.MaxRetries < 0 {
		return fmt.Errorf("gate.max_retries must be >= 0, got %d", cfg.Gate.MaxRetries)
	}
	if cfg.Discovery.Attempts < 1 {
		return fmt.Errorf("discovery.attempts must be >= 1, got %d", cfg.Discovery.Attempts)
	}
	if cfg.Model.MaxIterations < 1 {
		return fmt.Errorf("model.max_iterations must be >= 1, got %d", cfg.Model.MaxIterations)
	}
	return nil
}

func decryptSecrets(cfg *Config, passphrase string) error {
	tok := cfg.Auth.BearerToken
	if len(tok) <= 4 || tok[:4] != "enc:" {
		return nil
	}
	if passphrase == "" {
		return fmt.Errorf("auth bearer_token: encrypted value present but NETAIOPS_CONFIG_KEY is not set")
	}
	decrypted, err := DecryptValue(tok[4:], passphrase)
	if err != nil {
		return fmt.Errorf("auth bearer_token: %w", err)
	}
	cfg.Auth.BearerToken = decrypted
	return nil
}
