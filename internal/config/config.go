package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration, loaded once at startup and
// treated as immutable thereafter.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        string `env:"PORT" envDefault:"8080"`
	DevMode     bool   `env:"DEV_MODE"`

	Session   SessionConfig   `envPrefix:"SESSION_"`
	TwoFactor TwoFactorConfig `envPrefix:"TWO_FACTOR_"`
	Routes    RoutesConfig    ``
	SMTP      SMTPConfig      `envPrefix:"SMTP_"`
}

// SessionConfig configures session cookie issuance.
type SessionConfig struct {
	Secret string        `env:"SECRET,required"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
	Cookie string        `env:"COOKIE" envDefault:"session"`
}

// TwoFactorConfig configures second-factor challenge lifecycle.
type TwoFactorConfig struct {
	TTL         time.Duration `env:"TTL" envDefault:"5m"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
}

// RoutesConfig configures the request gate's redirect destinations.
type RoutesConfig struct {
	LoginPage     string `env:"LOGIN_PAGE" envDefault:"/auth/login"`
	LoginRedirect string `env:"LOGIN_REDIRECT" envDefault:"/dashboard"`
}

// SMTPConfig configures outbound mail. Addr empty means mail is logged
// instead of sent (dev mode).
type SMTPConfig struct {
	Addr     string `env:"ADDR"`
	From     string `env:"FROM" envDefault:"no-reply@localhost"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.TwoFactor.MaxAttempts < 1 {
		return nil, fmt.Errorf("TWO_FACTOR_MAX_ATTEMPTS must be at least 1, got %d", cfg.TwoFactor.MaxAttempts)
	}
	return cfg, nil
}
