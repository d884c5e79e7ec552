package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML). Every field can be
// overridden from LEDGER_* environment variables.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Master seed; per-component seeds are derived from it.
	Seed int64 `yaml:"seed"`

	Interest   InterestConfig   `yaml:"interest"`
	Simulation SimulationConfig `yaml:"simulation"`

	NATSURL string `yaml:"nats_url"`

	// Empty DSN means the participant directory and tariff catalog come from
	// the static lists below.
	PostgresURL   string `yaml:"postgres_dsn"`
	MigrationsDir string `yaml:"migrations_dir"`

	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Participants []ParticipantConfig `yaml:"participants"`
	Tariffs      []TariffConfig      `yaml:"tariffs"`
}

type InterestConfig struct {
	MinRate      float64  `yaml:"min_rate"`
	MaxRate      float64  `yaml:"max_rate"`
	OverrideRate *float64 `yaml:"override_rate"`
	AccrualHour  int      `yaml:"accrual_hour"`
}

type SimulationConfig struct {
	Start             time.Time     `yaml:"start"`
	TimeslotLength    time.Duration `yaml:"timeslot_length"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	PositionRetention int           `yaml:"position_retention"` // Timeslots kept behind the current one
}

type ParticipantConfig struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
}

type TariffConfig struct {
	ID        int64  `yaml:"id"`
	BrokerID  string `yaml:"broker_id"`
	PowerType string `yaml:"power_type"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Seed:     1,
		Interest: InterestConfig{
			MinRate:     0.04,
			MaxRate:     0.12,
			AccrualHour: 0,
		},
		Simulation: SimulationConfig{
			Start:             time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			TimeslotLength:    time.Hour,
			TickInterval:      5 * time.Second,
			PositionRetention: 48,
		},
		NATSURL:       "nats://localhost:4222",
		MigrationsDir: "migrations",
		HTTPAddr:      ":8080",
		GRPCAddr:      ":9090",
		MetricsAddr:   ":9091",
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = envOrDefault("LEDGER_LOG_LEVEL", c.LogLevel)
	c.NATSURL = envOrDefault("LEDGER_NATS_URL", c.NATSURL)
	c.PostgresURL = envOrDefault("LEDGER_POSTGRES_DSN", c.PostgresURL)
	c.MigrationsDir = envOrDefault("LEDGER_MIGRATIONS_DIR", c.MigrationsDir)
	c.HTTPAddr = envOrDefault("LEDGER_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = envOrDefault("LEDGER_GRPC_ADDR", c.GRPCAddr)
	c.MetricsAddr = envOrDefault("LEDGER_METRICS_ADDR", c.MetricsAddr)

	if v := os.Getenv("LEDGER_SEED"); v != "" {
		s, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("LEDGER_SEED: %w", err)
		}
		c.Seed = s
	}
	if v := os.Getenv("LEDGER_BANK_INTEREST"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("LEDGER_BANK_INTEREST: %w", err)
		}
		c.Interest.OverrideRate = &rate
	}
	if v := os.Getenv("LEDGER_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LEDGER_TICK_INTERVAL: %w", err)
		}
		c.Simulation.TickInterval = d
	}
	return nil
}

// Validate checks interest and simulation parameters.
func (c *Config) Validate() error {
	if c.Interest.MinRate < 0 || c.Interest.MaxRate < 0 {
		return errors.New("interest rates must be non-negative")
	}
	if c.Interest.MinRate > c.Interest.MaxRate {
		return fmt.Errorf("interest min_rate %v exceeds max_rate %v", c.Interest.MinRate, c.Interest.MaxRate)
	}
	if c.Interest.OverrideRate != nil && *c.Interest.OverrideRate < 0 {
		return errors.New("interest override_rate must be non-negative")
	}
	if c.Interest.AccrualHour < 0 || c.Interest.AccrualHour > 23 {
		return fmt.Errorf("interest accrual_hour %d outside 0..23", c.Interest.AccrualHour)
	}
	if c.Simulation.TimeslotLength <= 0 {
		return errors.New("simulation timeslot_length must be positive")
	}
	if c.Simulation.TickInterval <= 0 {
		return errors.New("simulation tick_interval must be positive")
	}
	if c.Simulation.PositionRetention < 0 {
		return errors.New("simulation position_retention must be non-negative")
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
