package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/taskpadhq/taskpad/pkg/jwtx"
)

// Config is the full runtime configuration, sourced from the
// environment (optionally seeded from a .env file in development).
type Config struct {
	Env       string
	LogLevel  string
	LogFormat string

	Port                int
	ShutdownGracePeriod time.Duration

	DatabaseDriver string
	DatabaseDSN    string

	// JWTSecret signs access tokens; must be at least 32 bytes.
	JWTSecret string

	// JWTAuthEnabled gates the stateless verification path. Off means
	// every request authenticates against the session store.
	JWTAuthEnabled bool

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// RefreshRotationEnabled controls single-use refresh tokens.
	RefreshRotationEnabled bool

	HousekeepingInterval time.Duration
}

// LoadConfig reads configuration from the environment. A missing or
// short JWT_SECRET is a startup error, not a runtime one.
func LoadConfig() (Config, error) {
	// Best effort; production sets real environment variables.
	_ = godotenv.Load()

	cfg := Config{
		Env:       getEnvOrDefault("ENV", "development"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnvOrDefault("DATABASE_DSN", "file:taskpad-auth.db"),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTAuthEnabled: getEnvBoolOrDefault("JWT_AUTH_ENABLED", true),

		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", jwtx.DefaultRefreshTokenTTL),

		RefreshRotationEnabled: getEnvBoolOrDefault("REFRESH_ROTATION_ENABLED", true),

		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}

	if len(cfg.JWTSecret) < jwtx.MinSecretLength {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", jwtx.MinSecretLength)
	}
	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return Config{}, fmt.Errorf("token TTLs must be positive")
	}

	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDurationOrDefault(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
