package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	StoreGorm = "gorm"
	StorePgx  = "pgx"

	LogLevelDebug = "debug"
	LogLevelInfo  = "info"

	defaultDatabaseURL    = "sqlite:///tmp/vetpay.db"
	defaultHTTPListenAddr = ":8080"
	defaultGRPCListenAddr = ":7000"
	defaultAllowedOrigin  = "http://localhost:3000"
	defaultRequestTimeout = 5 * time.Second
)

// Config aggregates runtime settings for the payments daemon.
type Config struct {
	DatabaseURL       string
	Store             string
	HTTPListenAddr    string
	GRPCListenAddr    string
	AllowedOrigins    []string
	RequestTimeout    time.Duration
	StrictTransitions bool
	LogLevel          string
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.Store = strings.ToLower(defaultIfEmpty(cfg.Store, StoreGorm))
	cfg.HTTPListenAddr = defaultIfEmpty(cfg.HTTPListenAddr, defaultHTTPListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.LogLevel = strings.ToLower(defaultIfEmpty(cfg.LogLevel, LogLevelInfo))
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if !slices.Contains([]string{StoreGorm, StorePgx}, cfg.Store) {
		return fmt.Errorf("store must be %q or %q, got %q", StoreGorm, StorePgx, cfg.Store)
	}
	if cfg.Store == StorePgx && !IsPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("store %q requires a postgres database url", StorePgx)
	}
	if !slices.Contains([]string{LogLevelDebug, LogLevelInfo}, cfg.LogLevel) {
		return fmt.Errorf("log level must be %q or %q, got %q", LogLevelDebug, LogLevelInfo, cfg.LogLevel)
	}
	return nil
}

// IsPostgresURL reports whether dsn names a PostgreSQL database.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
