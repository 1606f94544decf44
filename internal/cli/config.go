package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	pkgconfig "github.com/riteshshukladev/wrapper/pkg/config"
)

// EnvPrefix prefixes every authctl environment variable.
const EnvPrefix = "AUTHCTL_"

// Config holds authctl settings.
type Config struct {
	ServerURL   string        `env:"SERVER_URL" envDefault:"http://localhost:5000"`
	SessionDB   string        `env:"SESSION_DB"`
	RenewBefore time.Duration `env:"RENEW_BEFORE" envDefault:"60s"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"10s"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"warn"`
}

// LoadConfig reads AUTHCTL_* variables. An unset session db resolves to
// ~/.authctl/session.db.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithPrefix(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load authctl config: %w", err)
	}
	if cfg.SessionDB == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve session db path: %w", err)
		}
		cfg.SessionDB = filepath.Join(home, ".authctl", "session.db")
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New(EnvPrefix + "SERVER_URL must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%sTIMEOUT must be positive, got %s", EnvPrefix, c.Timeout)
	}
	if c.RenewBefore < 0 {
		return fmt.Errorf("%sRENEW_BEFORE must not be negative, got %s", EnvPrefix, c.RenewBefore)
	}
	return nil
}
