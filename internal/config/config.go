package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database

	Midtrans   Midtrans   `envPrefix:"MIDTRANS_"`
	Auth       Auth       `envPrefix:"AUTH_"`
	Membership Membership `envPrefix:"MEMBERSHIP_"`
	Reconcile  Reconcile  `envPrefix:"RECONCILE_"`
}

type Midtrans struct {
	IsProduction bool          `env:"IS_PRODUCTION" envDefault:"false"`
	ServerKey    string        `env:"SERVER_KEY"`
	ClientKey    string        `env:"CLIENT_KEY"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"15s"`
	// overrides for tests and proxies, empty means the public endpoints
	SnapBaseURL string `env:"SNAP_BASE_URL"`
	CoreBaseURL string `env:"CORE_BASE_URL"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Membership struct {
	Price      int64  `env:"PRICE" envDefault:"1500000"`
	PeriodDays int    `env:"PERIOD_DAYS" envDefault:"365"`
	ItemName   string `env:"ITEM_NAME" envDefault:"Annual Membership"`
}

type Reconcile struct {
	Schedule     string        `env:"SCHEDULE" envDefault:"0 */10 * * * *"`
	StaleAfter   time.Duration `env:"STALE_AFTER" envDefault:"15m"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
	// Snap tokens are valid for 24h, after that a missing transaction is abandoned
	AbandonAfter time.Duration `env:"ABANDON_AFTER" envDefault:"24h"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver string `env:"DATABASE_DRIVER" envDefault:"mysql"` // mysql, sqlite
	URL    string `env:"DATABASE_URL"`
}

// Load reads .env (when present) into the environment and parses it.
func Load() (*Config, error) {
	// missing .env is fine in prod
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Database.Driver != "mysql" && c.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be mysql or sqlite, got %q", c.Database.Driver))
	}
	if c.Midtrans.ServerKey == "" {
		errs = append(errs, errors.New("MIDTRANS_SERVER_KEY is required"))
	}
	if c.Midtrans.Timeout <= 0 {
		errs = append(errs, errors.New("MIDTRANS_TIMEOUT must be positive"))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 characters"))
	}
	if c.Membership.PeriodDays <= 0 {
		errs = append(errs, errors.New("MEMBERSHIP_PERIOD_DAYS must be positive"))
	}
	if c.Membership.Price < 0 {
		errs = append(errs, errors.New("MEMBERSHIP_PRICE cannot be negative"))
	}
	return errors.Join(errs...)
}

func (m Membership) Period() time.Duration {
	return time.Duration(m.PeriodDays) * 24 * time.Hour
}
