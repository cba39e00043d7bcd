package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config captures environment driven configuration values for the sync service.
type Config struct {
	ConfigFile  string
	SQLiteDSN   string
	HTTPAddr    string
	LogLevel    slog.Level
	ServerName  string
	// StatusToken guards the status API. Empty leaves it open.
	StatusToken string
}

const (
	defaultConfigFile = "attendance-sync.yaml"
	defaultSQLiteDSN  = "file:attendance.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	defaultHTTPAddr   = ":8080"
)

// Load parses configuration values from the current process environment.
//
// Every variable is optional. Invalid values are collected and reported
// together rather than one at a time.
func Load() (Config, error) {
	cfg := Config{
		ConfigFile: defaultConfigFile,
		SQLiteDSN:  defaultSQLiteDSN,
		HTTPAddr:   defaultHTTPAddr,
		LogLevel:   slog.LevelInfo,
	}

	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv("ATTSYNC_CONFIG_FILE")); path != "" {
		cfg.ConfigFile = path
	}

	if dsn := strings.TrimSpace(os.Getenv("ATTSYNC_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if addr := strings.TrimSpace(os.Getenv("ATTSYNC_HTTP_ADDR")); addr != "" {
		if !strings.Contains(addr, ":") {
			invalid = append(invalid, "ATTSYNC_HTTP_ADDR")
		} else {
			cfg.HTTPAddr = addr
		}
	}

	if levelValue := strings.TrimSpace(os.Getenv("ATTSYNC_LOG_LEVEL")); levelValue != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "ATTSYNC_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	cfg.StatusToken = strings.TrimSpace(os.Getenv("ATTSYNC_STATUS_TOKEN"))

	cfg.ServerName = strings.TrimSpace(os.Getenv("ATTSYNC_SERVER_NAME"))
	if cfg.ServerName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.ServerName = host
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
