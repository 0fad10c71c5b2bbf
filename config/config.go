// Package config loads the process configuration from a YAML file with
// environment variable overrides. Missing required settings are fatal at
// startup: the process must refuse to begin accepting deliveries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Checkpoint backend selectors.
const (
	CheckpointPostgres = "postgres"
	CheckpointFile     = "file"
	CheckpointMemory   = "memory"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// such as "30s" or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// FlowControlConfig caps in-flight messages and bytes
type FlowControlConfig struct {
	MaxInFlight      int `yaml:"max_in_flight"`
	MaxBytesInFlight int `yaml:"max_bytes_in_flight"`
}

// BudgetConfig sets spend limits and the lockdown cooldown
type BudgetConfig struct {
	DailyLimit  float64  `yaml:"daily_limit"`
	HourlyLimit float64  `yaml:"hourly_limit"`
	Cooldown    Duration `yaml:"cooldown"`
	CostPerCall float64  `yaml:"cost_per_call"`
}

// PoolConfig sizes the shared database connection pool
type PoolConfig struct {
	MinConns int `yaml:"min_conns"`
	MaxConns int `yaml:"max_conns"`
}

// Config is the full process configuration
type Config struct {
	DatabaseURL   string            `yaml:"database_url"`
	Checkpoint    string            `yaml:"checkpoint"`
	CheckpointDir string            `yaml:"checkpoint_dir"`
	AdminSecret   string            `yaml:"admin_secret"`
	AdminAddr     string            `yaml:"admin_addr"`
	Topic         string            `yaml:"topic"`
	ProjectID     string            `yaml:"project_id"`
	ServiceName   string            `yaml:"service_name"`
	FlowControl   FlowControlConfig `yaml:"flow_control"`
	Budget        BudgetConfig      `yaml:"budget"`
	Pool          PoolConfig        `yaml:"pool"`
	DrainTimeout  Duration          `yaml:"drain_timeout"`
	NodeTimeout   Duration          `yaml:"node_timeout"`
	NodeLogDir    string            `yaml:"node_log_dir"`
	Telemetry     bool              `yaml:"telemetry"`
	Verbose       bool              `yaml:"verbose"`
}

// Default returns a config with the nominal defaults applied
func Default() *Config {
	return &Config{
		Checkpoint: CheckpointPostgres,
		AdminAddr:  ":8080",
		Topic:      "aegis.requests",
		FlowControl: FlowControlConfig{
			MaxInFlight:      10,
			MaxBytesInFlight: 10 * 1024 * 1024,
		},
		Budget: BudgetConfig{
			DailyLimit:  10.00,
			HourlyLimit: 2.00,
			Cooldown:    Duration(24 * time.Hour),
			CostPerCall: 0.01,
		},
		Pool: PoolConfig{
			MinConns: 1,
			MaxConns: 5,
		},
		DrainTimeout: Duration(30 * time.Second),
		NodeTimeout:  Duration(60 * time.Second),
	}
}

// Load reads the config file (when path is non-empty), applies environment
// overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("AEGIS_DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("AEGIS_ADMIN_SECRET"); v != "" {
		c.AdminSecret = v
	}
	if v := os.Getenv("AEGIS_ADMIN_ADDR"); v != "" {
		c.AdminAddr = v
	}
	if v := os.Getenv("AEGIS_CHECKPOINT"); v != "" {
		c.Checkpoint = v
	}
	if v := os.Getenv("AEGIS_PROJECT_ID"); v != "" {
		c.ProjectID = v
	}
	if v := os.Getenv("AEGIS_MAX_IN_FLIGHT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FlowControl.MaxInFlight = n
		}
	}
	if v := os.Getenv("AEGIS_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Telemetry = b
		}
	}
}

// Validate checks required settings
func (c *Config) Validate() error {
	switch c.Checkpoint {
	case CheckpointPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: database_url is required for the postgres checkpoint backend")
		}
	case CheckpointFile, CheckpointMemory:
	default:
		return fmt.Errorf("config: unknown checkpoint backend %q", c.Checkpoint)
	}
	if c.AdminSecret == "" {
		return fmt.Errorf("config: admin_secret is required")
	}
	if c.FlowControl.MaxInFlight <= 0 || c.FlowControl.MaxBytesInFlight <= 0 {
		return fmt.Errorf("config: flow control caps must be positive")
	}
	if c.Pool.MaxConns <= 0 || c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("config: invalid pool sizing min=%d max=%d", c.Pool.MinConns, c.Pool.MaxConns)
	}
	return nil
}
