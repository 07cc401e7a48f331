package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort          = "8080"
	defaultTokenExpiry   = time.Hour
	defaultMaxFavourites = 50
)

type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	AppEnv      string
	SentryDSN   string

	// TokenExpiry of zero disables the exp claim.
	TokenExpiry             time.Duration
	VerifyTokenAgainstStore bool
	// MaxFavourites of zero disables the per-user cap.
	MaxFavourites int

	RateLimitMax    int
	RateLimitWindow time.Duration

	CORSAllowedOrigin string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RunMigrations bool

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the process environment. runMigrationsDefault
// applies when RUN_MIGRATIONS_ON_STARTUP is unset.
func Load(runMigrationsDefault bool) (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	tokenExpiry, err := envExpiryOrDefault("TOKEN_EXPIRY", defaultTokenExpiry)
	if err != nil {
		return Config{}, err
	}

	return Config{
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
		Port:        envOrDefault("PORT", defaultPort),
		AppEnv:      envOrDefault("APP_ENV", "development"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		TokenExpiry:             tokenExpiry,
		VerifyTokenAgainstStore: EnvBoolOrDefault("AUTH_VERIFY_AGAINST_STORE", false),
		MaxFavourites:           envCountOrDefault("MAX_FAVOURITES", defaultMaxFavourites),

		RateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		RateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),

		CORSAllowedOrigin: envOrDefault("CORS_ALLOWED_ORIGIN", "*"),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),

		RunMigrations: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", runMigrationsDefault),

		LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
	}, nil
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// ConfigurationError reports a missing or unusable setting. It is fatal at startup.
type ConfigurationError struct {
	Name   string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Name, e.Reason)
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", ConfigurationError{Name: name, Reason: "missing required env"}
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// envCountOrDefault is envIntOrDefault that also accepts 0.
func envCountOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

// envExpiryOrDefault accepts a Go duration ("90m", "1h") or "none"/"0" for no expiry.
func envExpiryOrDefault(name string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "":
		return fallback, nil
	case "none", "0":
		return 0, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return 0, ConfigurationError{Name: name, Reason: "expected a positive duration or none"}
	}
	return parsed, nil
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
