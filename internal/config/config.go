// Package config provides centralized configuration for the login form
// service. It loads configuration from CLI flags and environment variables,
// validates required fields, and provides sensible defaults.
//
// CLI flags control which services are mocked (--no-identity, --test).
// Environment variables provide service endpoints and tuning knobs.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/loginform/internal/ratelimit"
	"github.com/kuitang/loginform/internal/urlutil"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr   string
	BaseURL      string
	TemplatesDir string

	// Identity fetch collaborator
	IdentityURL     string        // Endpoint of the identity fetch service
	IdentityTimeout time.Duration // Per-fetch request timeout

	// Form lifecycle
	FormIdleTTL time.Duration // Idle time before a form controller is discarded

	// Submission throttling
	RateLimitConfig ratelimit.Config

	// Mock service flags (controlled by CLI flags, not env vars)
	NoIdentity bool // If true, use the fake identity fetcher (--no-identity)
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags and returns them. Call before LoadConfig.
// This registers and parses --no-identity, --test, and --addr.
func ParseFlags() (noIdentity bool, addr string) {
	var testMode bool
	flag.BoolVar(&noIdentity, "no-identity", false, "Use the fake identity fetch service")
	flag.BoolVar(&testMode, "test", false, "Shorthand for --no-identity")
	flag.StringVar(&addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	flag.Parse()

	if testMode {
		noIdentity = true
	}

	return noIdentity, addr
}

// LoadConfig loads configuration from environment variables and CLI flag
// values. The noIdentity flag selects the fake identity fetcher; the addr
// flag overrides the LISTEN_ADDR env var if non-empty.
func LoadConfig(noIdentity bool, addr string) (*Config, error) {
	cfg := &Config{}

	cfg.NoIdentity = noIdentity

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BaseURL = urlutil.Normalize(os.Getenv("BASE_URL"))
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.TemplatesDir = getEnvOrDefault("TEMPLATES_DIR", "./web/templates")

	// Identity fetch collaborator
	cfg.IdentityURL = urlutil.Normalize(os.Getenv("IDENTITY_URL"))
	cfg.IdentityTimeout = parseDurationOrDefault("IDENTITY_TIMEOUT", 10*time.Second)

	// Form lifecycle
	cfg.FormIdleTTL = parseDurationOrDefault("FORM_IDLE_TTL", 30*time.Minute)

	// Submission throttling
	cfg.RateLimitConfig = ratelimit.Config{
		AttemptsPerSecond: parseFloat64OrDefault("RATE_LIMIT_ATTEMPTS_PER_SEC", 1),
		Burst:             parseIntOrDefault("RATE_LIMIT_BURST", 5),
		CleanupInterval:   parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When the identity fetcher is not mocked, its endpoint is required.
func (c *Config) Validate() error {
	var errs []string

	if !c.NoIdentity {
		if c.IdentityURL == "" {
			errs = append(errs, "IDENTITY_URL is required (set env var or use --no-identity)")
		} else if !strings.HasPrefix(c.IdentityURL, "http://") && !strings.HasPrefix(c.IdentityURL, "https://") {
			errs = append(errs, "IDENTITY_URL must be an http(s) URL")
		}
	}

	if c.IdentityTimeout <= 0 {
		errs = append(errs, "IDENTITY_TIMEOUT must be positive")
	}
	if c.FormIdleTTL <= 0 {
		errs = append(errs, "FORM_IDLE_TTL must be positive")
	}

	if c.RateLimitConfig.AttemptsPerSecond <= 0 {
		errs = append(errs, "RATE_LIMIT_ATTEMPTS_PER_SEC must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// LoginURL returns the absolute URL of the login page.
func (c *Config) LoginURL() string {
	return urlutil.BuildAbsolute(c.BaseURL, "/login")
}

// RequireSecureCookies returns true if the form cookie should be Secure.
// Returns false for localhost development URLs.
func (c *Config) RequireSecureCookies() bool {
	return !strings.HasPrefix(c.BaseURL, "http://localhost") &&
		!strings.HasPrefix(c.BaseURL, "http://127.0.0.1")
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "loginform server starting...")

	if c.NoIdentity {
		fmt.Fprintln(os.Stderr, "  Identity: Fake fetcher (--no-identity)")
	} else {
		fmt.Fprintf(os.Stderr, "  Identity: %s (timeout %s)\n", c.IdentityURL, c.IdentityTimeout)
	}

	fmt.Fprintf(os.Stderr, "  Forms:    idle TTL %s\n", c.FormIdleTTL)
	fmt.Fprintf(os.Stderr, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Login:    %s\n", c.LoginURL())
	fmt.Fprintln(os.Stderr, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
// Use this in main() when the application should fail fast on bad config.
func MustLoadConfig(noIdentity bool, addr string) *Config {
	cfg, err := LoadConfig(noIdentity, addr)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
