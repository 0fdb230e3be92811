// Package config reads Verity's configuration from environment variables,
// failing fast with clear errors for missing or malformed values.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
}

// IdentityConfig holds identity provider verification configuration.
type IdentityConfig struct {
	Secret []byte // shared HS256 secret
	Issuer string // expected token issuer
}

// StorageConfig holds object storage connection configuration.
type StorageConfig struct {
	Endpoint  string // optional custom endpoint (MinIO etc.)
	Region    string
	AccessKey string
	SecretKey string
}

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Identity    IdentityConfig
	Storage     StorageConfig

	// EngineBaseURL is where the link resolver redirects participants;
	// the access token is attached as a query parameter.
	EngineBaseURL string

	// InterviewTTL is the abandoned-session reclamation window for
	// pending interviews.
	InterviewTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var missing []string

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}
	if env != "development" && env != "staging" && env != "production" {
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", env)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	identitySecret := os.Getenv("IDENTITY_SECRET")
	if identitySecret == "" {
		missing = append(missing, "IDENTITY_SECRET")
	}

	identityIssuer := os.Getenv("IDENTITY_ISSUER")
	if identityIssuer == "" {
		missing = append(missing, "IDENTITY_ISSUER")
	}

	engineBaseURL := os.Getenv("ENGINE_BASE_URL")
	if engineBaseURL == "" {
		missing = append(missing, "ENGINE_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := validateDatabaseURL(databaseURL); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if err := validateHTTPURL(engineBaseURL); err != nil {
		return nil, fmt.Errorf("invalid ENGINE_BASE_URL: %w", err)
	}

	ttlHours := getEnvInt("INTERVIEW_TTL_HOURS", 168)
	if ttlHours <= 0 {
		return nil, fmt.Errorf("INTERVIEW_TTL_HOURS must be positive, got %d", ttlHours)
	}

	return &Config{
		Port:        port,
		Environment: env,
		Database: DatabaseConfig{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		},
		Identity: IdentityConfig{
			Secret: []byte(identitySecret),
			Issuer: identityIssuer,
		},
		Storage: StorageConfig{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    os.Getenv("S3_REGION"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
		},
		EngineBaseURL: engineBaseURL,
		InterviewTTL:  time.Duration(ttlHours) * time.Hour,
	}, nil
}

// validateDatabaseURL ensures the database URL is a valid PostgreSQL
// connection string.
func validateDatabaseURL(dbURL string) error {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("URL must use postgres or postgresql scheme, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}

// validateHTTPURL ensures the URL is absolute http or https.
func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}

// getEnvInt reads an environment variable as an integer with a default
// fallback.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}
