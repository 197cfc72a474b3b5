package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rishansujesh/jobrun/internal/db"
	"github.com/rishansujesh/jobrun/internal/schedule"
	"github.com/rishansujesh/jobrun/internal/scheduler"
)

const (
	DefaultPath      = "jobrun.yaml"
	DefaultStorePath = "jobrun.db"
	DefaultDLQStream = "jobs:dlq"
)

type Config struct {
	Store StoreConfig `yaml:"store"`
	// Durations use the interval grammar: "30s", "7d" or plain seconds.
	Retention      string           `yaml:"retention" validate:"interval"`
	Retry          RetryConfig      `yaml:"retry"`
	AttemptTimeout string           `yaml:"attempt_timeout" validate:"omitempty,interval"`
	StaleAfter     string           `yaml:"stale_after" validate:"omitempty,interval"`
	Log            LogConfig        `yaml:"log"`
	Redis          RedisConfig      `yaml:"redis"`
	DeadLetter     DeadLetterConfig `yaml:"deadletter"`
	Jobs           []JobDef         `yaml:"jobs" validate:"dive"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=sqlite postgres"`
	Path        string `yaml:"path" validate:"required_if=Driver sqlite"`
	DSN         string `yaml:"dsn" validate:"required_if=Driver postgres"`
	BusyTimeout string `yaml:"busy_timeout" validate:"omitempty,interval"`
}

type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts" validate:"gte=1,lte=100"`
	Backoff     string `yaml:"backoff" validate:"omitempty,interval"`
	MaxBackoff  string `yaml:"max_backoff" validate:"omitempty,interval"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type DeadLetterConfig struct {
	Enabled bool   `yaml:"enabled"`
	Stream  string `yaml:"stream" validate:"required_if=Enabled true"`
}

// JobDef declares a job in the config file. Schedule accepts everything
// schedule.Parse does; Timezone only applies to cron expressions.
type JobDef struct {
	ID       string         `yaml:"id" validate:"required"`
	Schedule string         `yaml:"schedule" validate:"required,schedule"`
	Timezone string         `yaml:"timezone" validate:"omitempty,timezone"`
	Handler  string         `yaml:"handler" validate:"oneof=shell http"`
	Args     map[string]any `yaml:"args"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Store:      StoreConfig{Driver: "sqlite", Path: DefaultStorePath, BusyTimeout: "5s"},
		Retention:  "7d",
		Retry:      RetryConfig{MaxAttempts: scheduler.DefaultMaxAttempts},
		Log:        LogConfig{Level: "info", Format: "text"},
		Redis:      RedisConfig{Addr: "localhost:6379"},
		DeadLetter: DeadLetterConfig{Stream: DefaultDLQStream},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. A missing file is not an error unless required.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Store.Driver = strings.ToLower(getenv("JOBRUN_DB_DRIVER", c.Store.Driver))
	c.Store.Path = getenv("JOBRUN_DB_PATH", c.Store.Path)
	c.Store.DSN = getenv("JOBRUN_DB_DSN", c.Store.DSN)
	c.Retention = getenv("JOBRUN_RETENTION", c.Retention)
	c.Log.Level = strings.ToLower(getenv("JOBRUN_LOG_LEVEL", c.Log.Level))
	c.Redis.Addr = getenv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenv("REDIS_PASSWORD", c.Redis.Password)
	c.DeadLetter.Stream = getenv("REDIS_STREAM_DLQ", c.DeadLetter.Stream)
}

// Validate checks field constraints and that job ids are unique.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Jobs))
	for _, j := range c.Jobs {
		if _, dup := seen[j.ID]; dup {
			return fmt.Errorf("invalid config: duplicate job id %q", j.ID)
		}
		seen[j.ID] = struct{}{}
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("interval", func(fl validator.FieldLevel) bool {
		_, err := schedule.ParseInterval(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		_, err := schedule.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// DB returns the store location for db.Open.
func (c *Config) DB() db.Config {
	return db.Config{
		Driver:      c.Store.Driver,
		Path:        c.Store.Path,
		DSN:         c.Store.DSN,
		BusyTimeout: duration(c.Store.BusyTimeout),
	}
}

// SchedulerOptions converts the retry and housekeeping settings.
func (c *Config) SchedulerOptions() scheduler.Options {
	return scheduler.Options{
		Retention:      duration(c.Retention),
		MaxAttempts:    c.Retry.MaxAttempts,
		Backoff:        duration(c.Retry.Backoff),
		MaxBackoff:     duration(c.Retry.MaxBackoff),
		AttemptTimeout: duration(c.AttemptTimeout),
		StaleAfter:     duration(c.StaleAfter),
	}
}

// duration is only called on validated fields.
func duration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, _ := schedule.ParseInterval(s)
	return d
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
