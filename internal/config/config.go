package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for campusctl.
type Config struct {
	// Base URL of the backend API, e.g. https://school.example.com.
	APIURL string `env:"CAMPUS_API_URL"`

	// Path of the renewal endpoint, relative to APIURL.
	RefreshPath string `env:"CAMPUS_REFRESH_PATH" envDefault:"/api/user/refresh-token"`

	// Upper bound on a single renewal call. A renewal that does not finish
	// in time is treated as failed and ends the session.
	RefreshTimeout time.Duration `env:"CAMPUS_REFRESH_TIMEOUT" envDefault:"10s"`

	// Timeout for ordinary API calls.
	HTTPTimeout time.Duration `env:"CAMPUS_HTTP_TIMEOUT" envDefault:"30s"`

	// Optional login credentials. The login command prompts for whatever
	// is missing.
	Email    string `env:"CAMPUS_EMAIL"`
	Password string `env:"CAMPUS_PASSWORD"`

	// Location of the credential database. Defaults to
	// ~/.campusctl/state.db.
	StatePath string `env:"CAMPUS_STATE_PATH"`

	// When set, the stored credential pair is sealed with a key derived
	// from this passphrase.
	StatePassphrase string `env:"CAMPUS_STATE_PASSPHRASE"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = path
	}

	absPath, err := filepath.Abs(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
	}

	cfg.StatePath = absPath

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("CAMPUS_API_URL is required")
	}

	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("CAMPUS_API_URL is not a valid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CAMPUS_API_URL must use http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("CAMPUS_API_URL must include a host")
	}

	if !strings.HasPrefix(c.RefreshPath, "/") {
		return fmt.Errorf("CAMPUS_REFRESH_PATH must start with '/'")
	}

	// An unbounded renewal would leave every queued request waiting forever.
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("CAMPUS_REFRESH_TIMEOUT must be positive")
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("CAMPUS_HTTP_TIMEOUT must be positive")
	}

	return nil
}

// DefaultStatePath returns ~/.campusctl/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".campusctl", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
