// Package config loads service configuration from an optional YAML file and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"itinerary/internal/schedule"
)

type Config struct {
	Env            string           `yaml:"env"`
	Port           string           `yaml:"port"`
	DatabaseURL    string           `yaml:"databaseUrl"`
	DBMigrate      bool             `yaml:"dbMigrate"`
	RedisURL       string           `yaml:"redisUrl"`
	LogLevel       string           `yaml:"logLevel"`
	RateRPS        float64          `yaml:"rateRps"`
	RateBurst      int              `yaml:"rateBurst"`
	SessionIdleTTL time.Duration    `yaml:"sessionIdleTtl"`
	Schedule       schedule.Options `yaml:"schedule"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Env:            "prod",
		Port:           "8080",
		DBMigrate:      true,
		LogLevel:       "info",
		SessionIdleTTL: 30 * time.Minute,
		Schedule:       schedule.DefaultOptions,
	}
}

// Load reads the YAML file named by CONFIG_FILE (if any) over the defaults,
// then applies environment overrides.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()
	if path := getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("ENV", &cfg.Env)
	str("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDIS_URL", &cfg.RedisURL)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("DAY_START", &cfg.Schedule.DayStart)
	str("DAY_END", &cfg.Schedule.DayEnd)

	if v := getenv("DB_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DB_MIGRATE: %w", err)
		}
		cfg.DBMigrate = b
	}
	if v := getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		cfg.RateRPS = f
	}
	if v := getenv("RATE_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_BURST: %w", err)
		}
		cfg.RateBurst = n
	}
	if v := getenv("SESSION_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_IDLE_TTL: %w", err)
		}
		cfg.SessionIdleTTL = d
	}
	if v := getenv("SPEED_KPH"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SPEED_KPH: %w", err)
		}
		cfg.Schedule.SpeedKph = f
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("port must be numeric, got %q", c.Port)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.RateRPS < 0 {
		return fmt.Errorf("rateRps must be >= 0")
	}
	if c.RateRPS > 0 && c.RateBurst < 1 {
		return fmt.Errorf("rateBurst must be >= 1 when rateRps is set")
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("sessionIdleTtl must be > 0")
	}
	if _, err := schedule.ParseClock(c.Schedule.DayStart); err != nil {
		return fmt.Errorf("schedule.dayStart: %w", err)
	}
	if _, err := schedule.ParseClock(c.Schedule.DayEnd); err != nil {
		return fmt.Errorf("schedule.dayEnd: %w", err)
	}
	if c.Schedule.SpeedKph <= 0 {
		return fmt.Errorf("schedule.speedKph must be > 0")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Port }

// Public returns the settings safe to expose on a debug endpoint.
func (c Config) Public() map[string]any {
	return map[string]any{
		"env":            c.Env,
		"port":           c.Port,
		"logLevel":       c.LogLevel,
		"rateRps":        c.RateRPS,
		"rateBurst":      c.RateBurst,
		"sessionIdleTtl": c.SessionIdleTTL.String(),
		"schedule":       c.Schedule,
		"hasDatabaseUrl": c.DatabaseURL != "",
		"hasRedisUrl":    c.RedisURL != "",
	}
}
