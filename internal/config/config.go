// Package config loads and validates environment-based configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	DBDSN string
	Port  int

	// JWT authentication settings.
	JWTSecret       string // Required for auth endpoints; signing key for HS256.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Routing engine settings. The engine installed at startup can always be
	// swapped later through PUT /api/v1/admin/engine; these just give the
	// dispatcher something live to dispatch to from the first request.
	DefaultRouterName string
	MapsAPIKey        string
	MapsAPIURL        string
	AbsentFetcherURL  string // empty disables the absent-regions fetcher.
	RouteTimeout      time.Duration

	// ShowRouteDebugMarks turns on the point-check path of each request's
	// DelegateProxy. Dispatcher.CalculateRoute installs no point-check
	// callback, so no point-check event reaches a client through it.
	ShowRouteDebugMarks bool

	// Structured logging.
	LogLevel  string // zerolog level name: debug, info, warn, error.
	LogFormat string // "json" (default) or "console" for local development.
}

// Load reads and validates required environment variables.
// Returns a ConfigError for any missing or invalid value.
func Load() (*Config, error) {
	cfg := &Config{}

	dbDSN := os.Getenv("DB_DSN")
	if dbDSN == "" {
		return nil, &ConfigError{Field: "DB_DSN", Message: "required but not set"}
	}
	cfg.DBDSN = dbDSN

	cfg.DefaultRouterName = envOrDefault("DEFAULT_ROUTER_NAME", "maps")
	cfg.MapsAPIKey = os.Getenv("MAPS_API_KEY")
	// Not strictly required for bootstrap; the engine falls back to
	// straight-line routing when calls to the backend fail, and the engine
	// itself can be swapped later via the admin control plane.
	cfg.MapsAPIURL = os.Getenv("MAPS_API_URL")
	cfg.AbsentFetcherURL = os.Getenv("ABSENT_FETCHER_URL")

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	// Not required at startup; auth endpoints will fail gracefully if unset.

	cfg.AccessTokenTTL = parseDurationEnv("ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.RefreshTokenTTL = parseDurationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	cfg.RouteTimeout = parseDurationEnv("ROUTE_TIMEOUT", 10*time.Second)

	cfg.ShowRouteDebugMarks = parseBoolEnv("SHOW_ROUTE_DEBUG_MARKS", false)

	cfg.LogLevel = envOrDefault("LOG_LEVEL", "info")
	cfg.LogFormat = envOrDefault("LOG_FORMAT", "json")

	portStr := os.Getenv("PORT")
	if portStr == "" {
		cfg.Port = 8080
	} else {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, &ConfigError{Field: "PORT", Message: "must be a valid integer"}
		}
		if port < 1 || port > 65535 {
			return nil, &ConfigError{Field: "PORT", Message: "must be between 1 and 65535"}
		}
		cfg.Port = port
	}

	return cfg, nil
}

// Validate re-checks required fields on an already-constructed Config.
func (c *Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, &ConfigError{Field: "DB_DSN", Message: "cannot be empty"})
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "PORT", Message: "must be between 1 and 65535"})
	}
	if c.RouteTimeout <= 0 {
		errs = append(errs, &ConfigError{Field: "ROUTE_TIMEOUT", Message: "must be positive"})
	}
	return errors.Join(errs...)
}

// NewLogger builds the zerolog.Logger every component in this module shares,
// configured from LogLevel/LogFormat. An unrecognized LogLevel falls back to
// info rather than failing startup.
func (c *Config) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer = os.Stdout
	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	if c.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: writer}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

// parseDurationEnv reads a duration from an environment variable.
// Falls back to defaultVal if the variable is unset or unparseable.
// Accepts Go duration strings like "15m", "24h", "168h".
func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultVal
	}
	return d
}

// parseBoolEnv reads a boolean from an environment variable, falling back to
// defaultVal if unset or unparseable.
func parseBoolEnv(key string, defaultVal bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultVal
	}
	return v
}

func envOrDefault(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}
