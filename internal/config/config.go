// Package config loads hub settings from the environment, an optional .env
// file and the YAML category catalog.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
)

// Config is the process configuration. Login settings are not validated
// here: the session gateway checks them on every login so a partially
// configured server still starts and reports the problem per request.
type Config struct {
	LoginEmail        string `env:"LOGIN_EMAIL"`
	LoginUsername     string `env:"LOGIN_USERNAME"`
	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`

	Addr        string `env:"HUB_ADDR,default=:8080"`
	Store       string `env:"HUB_STORE,default=supabase"`
	DatabaseURL string `env:"DATABASE_URL"`

	// MaxColumns overrides the catalog file when non-zero.
	MaxColumns     int      `env:"HUB_MAX_COLUMNS"`
	CategoriesFile string   `env:"HUB_CATEGORIES_FILE,default=config/categories.yaml"`
	LoginPath      string   `env:"HUB_LOGIN_PATH,default=/login"`
	AllowedOrigins []string `env:"HUB_ALLOWED_ORIGINS"`

	LoginRate   float64       `env:"HUB_LOGIN_RATE,default=1"`
	LoginBurst  int           `env:"HUB_LOGIN_BURST,default=5"`
	HTTPTimeout time.Duration `env:"HUB_HTTP_TIMEOUT,default=30s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load reads envFile when it exists, then decodes the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.LoginEmail = strings.TrimSpace(c.LoginEmail)
	c.LoginUsername = strings.TrimSpace(c.LoginUsername)
	c.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.SupabaseURL), "/")
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreSupabase
	}

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}

// Validate checks settings the server cannot start without.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSupabase:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when HUB_STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown HUB_STORE %q", c.Store)
	}
	if c.MaxColumns < 0 {
		return fmt.Errorf("HUB_MAX_COLUMNS must not be negative")
	}
	if c.LoginRate <= 0 || c.LoginBurst <= 0 {
		return fmt.Errorf("HUB_LOGIN_RATE and HUB_LOGIN_BURST must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HUB_HTTP_TIMEOUT must be positive")
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("HUB_LOGIN_PATH must be an absolute path")
	}
	return nil
}
