// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendScript = "script"
	BackendSQLite = "sqlite"

	maxChartDays = 366
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ScriptURL       string        `env:"SCRIPT_URL"`
	Backend         string        `env:"BACKEND" envDefault:"script"`
	DBPath          string        `env:"DB_PATH" envDefault:"practice-tracker.db"`
	Timezone        string        `env:"TIMEZONE" envDefault:"Asia/Ho_Chi_Minh"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"15s"`
	ChartDays       int           `env:"CHART_DAYS" envDefault:"21"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads .env files (when present) and then the environment.
func Load(files ...string) (Config, error) {
	// a missing .env is normal
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendScript:
		if c.ScriptURL == "" {
			errs = append(errs, errors.New("SCRIPT_URL is required for the script backend"))
		}
	case BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendScript, BackendSQLite))
	}
	if c.ScriptURL != "" {
		u, err := url.Parse(c.ScriptURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("SCRIPT_URL %q is not an http(s) url", c.ScriptURL))
		}
	}
	if c.ChartDays < 1 || c.ChartDays > maxChartDays {
		errs = append(errs, fmt.Errorf("CHART_DAYS must be between 1 and %d", maxChartDays))
	}
	if c.UpstreamTimeout < 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone; empty means the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// MaxChartDays bounds the days query parameter.
func MaxChartDays() int { return maxChartDays }
