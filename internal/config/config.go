package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
	"github.com/usmle-prep/quizengine/internal/retry"
)

var ErrMissingEnvironmentVariables = errors.New("missing required environment variables")

// Config holds application configuration loaded from files and environment variables.
type Config struct {
	Env      string   `mapstructure:"env"`       // current application environment (local, dev, production)
	LogLevel string   `mapstructure:"log_level"` // debug, info, warn or error; empty uses the environment default
	DB       DB       `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	Retry    Retry    `mapstructure:"retry"`
	Quiz     Quiz     `mapstructure:"quiz"`
	Recovery Recovery `mapstructure:"recovery"`
}

// DB contains database-related configuration parameters.
type DB struct {
	URL             string        `mapstructure:"-"` // user connection string, DATABASE_URL
	ServiceURL      string        `mapstructure:"-"` // privileged connection string, SERVICE_DATABASE_URL
	MaxConnections  int32         `mapstructure:"max_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// DSN returns the database connection string if it is configured.
func (db DB) DSN() (string, error) {
	if db.URL == "" {
		return "", fmt.Errorf("%w: DATABASE_URL", ErrMissingEnvironmentVariables)
	}
	return db.URL, nil
}

// ServiceDSN returns the privileged connection string used for seeding.
func (db DB) ServiceDSN() (string, error) {
	if db.ServiceURL == "" {
		return "", fmt.Errorf("%w: SERVICE_DATABASE_URL", ErrMissingEnvironmentVariables)
	}
	return db.ServiceURL, nil
}

// Redis configures the draft store. An empty URL keeps drafts in memory.
type Redis struct {
	URL      string        `mapstructure:"-"` // REDIS_URL
	DraftTTL time.Duration `mapstructure:"draft_ttl"`
}

// Enabled reports whether a Redis server is configured.
func (r Redis) Enabled() bool {
	return r.URL != ""
}

// RetryClass is the retry budget of one error class.
type RetryClass struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

// Retry holds the budgets of the retryable error classes.
type Retry struct {
	Network   RetryClass `mapstructure:"network"`
	Timeout   RetryClass `mapstructure:"timeout"`
	RateLimit RetryClass `mapstructure:"rate_limit"`
}

// Options converts the budgets into retry policy options.
func (r Retry) Options() []retry.Option {
	return []retry.Option{
		retry.WithConfig(retry.ClassNetwork, retry.Config(r.Network)),
		retry.WithConfig(retry.ClassTimeout, retry.Config(r.Timeout)),
		retry.WithConfig(retry.ClassRateLimit, retry.Config(r.RateLimit)),
	}
}

// Quiz holds quiz rules.
type Quiz struct {
	Scoring map[string]string `mapstructure:"scoring"` // session type -> points | accuracy
}

// Recovery configures the draft recovery job.
type Recovery struct {
	Schedule string `mapstructure:"schedule"` // cron expression, UTC
}

// Load reads configuration from .env, config files and environment variables.
func Load() (*Config, error) {
	return load("./config")
}

func load(paths ...string) (*Config, error) {
	// Values already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets are only read from the environment.
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("service_database_url", "SERVICE_DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("env", "APP_ENV")

	if err := v.ReadInConfig(); err != nil {
		var fileLookupErr viper.ConfigFileNotFoundError
		if !errors.As(err, &fileLookupErr) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	cfg.DB.URL = v.GetString("database_url")
	cfg.DB.ServiceURL = v.GetString("service_database_url")
	cfg.Redis.URL = v.GetString("redis_url")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "")

	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "10s")

	v.SetDefault("redis.draft_ttl", "168h")

	defaults := retry.DefaultConfigs()
	for key, class := range map[string]retry.Class{
		"network":    retry.ClassNetwork,
		"timeout":    retry.ClassTimeout,
		"rate_limit": retry.ClassRateLimit,
	} {
		v.SetDefault("retry."+key+".max_retries", defaults[class].MaxRetries)
		v.SetDefault("retry."+key+".base_delay", defaults[class].BaseDelay)
	}

	v.SetDefault("recovery.schedule", "*/5 * * * *")
}

func (c *Config) validate() error {
	for name, rc := range map[string]RetryClass{
		"network":    c.Retry.Network,
		"timeout":    c.Retry.Timeout,
		"rate_limit": c.Retry.RateLimit,
	} {
		if rc.MaxRetries < 0 || rc.BaseDelay < 0 {
			return fmt.Errorf("retry.%s: budget must not be negative", name)
		}
	}

	for t, mode := range c.Quiz.Scoring {
		switch entities.SessionType(t) {
		case entities.SessionQuick, entities.SessionCustom, entities.SessionTimed, entities.SessionSelfPaced:
		default:
			return fmt.Errorf("quiz.scoring: unknown session type %q", t)
		}
		if mode != "points" && mode != "accuracy" {
			return fmt.Errorf("quiz.scoring.%s: unknown mode %q", t, mode)
		}
	}

	return nil
}
