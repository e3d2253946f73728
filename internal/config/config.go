// Package config loads the vango configuration from the environment, with an
// optional YAML file underneath. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// DBPath is the main vimango database file.
	DBPath string
	// FTSPath is the separately maintained fts5 database, opened read-only.
	FTSPath string
	// BusyTimeout bounds sqlite's own wait for the external writer's lock.
	BusyTimeout time.Duration
	// LockTimeout bounds the retry budget layered on top of BusyTimeout.
	LockTimeout time.Duration
	// SearchLimit is the default result count for relevance queries.
	SearchLimit int
	LogLevel    string
}

// fileConfig is the YAML shape; durations are strings like "500ms".
type fileConfig struct {
	DB          string `yaml:"db"`
	FTSDB       string `yaml:"fts_db"`
	BusyTimeout string `yaml:"busy_timeout"`
	LockTimeout string `yaml:"lock_timeout"`
	SearchLimit int    `yaml:"search_limit"`
	LogLevel    string `yaml:"log_level"`
}

const defaultConfigFile = "vango.yaml"

// Load reads vango.yaml (or $VANGO_CONFIG) when present, then overlays the
// environment. A missing vango.yaml is fine; a missing $VANGO_CONFIG or a
// malformed file is not.
func Load() (Config, error) {
	initEnvFile()

	cfg := Config{
		BusyTimeout: 2 * time.Second,
		LockTimeout: 2 * time.Second,
		SearchLimit: 5,
		LogLevel:    "info",
	}

	path := os.Getenv("VANGO_CONFIG")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if fc.DB != "" {
			cfg.DBPath = fc.DB
		}
		if fc.FTSDB != "" {
			cfg.FTSPath = fc.FTSDB
		}
		if fc.BusyTimeout != "" {
			d, err := time.ParseDuration(fc.BusyTimeout)
			if err != nil {
				return Config{}, fmt.Errorf("parse %s: busy_timeout: %w", path, err)
			}
			cfg.BusyTimeout = d
		}
		if fc.LockTimeout != "" {
			d, err := time.ParseDuration(fc.LockTimeout)
			if err != nil {
				return Config{}, fmt.Errorf("parse %s: lock_timeout: %w", path, err)
			}
			cfg.LockTimeout = d
		}
		if fc.SearchLimit > 0 {
			cfg.SearchLimit = fc.SearchLimit
		}
		if fc.LogLevel != "" {
			cfg.LogLevel = fc.LogLevel
		}
	case os.IsNotExist(err):
		// The implicit default file is optional; a path the operator
		// named must exist.
		if explicit {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if v := os.Getenv("VANGO_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("VANGO_FTS_DB"); v != "" {
		cfg.FTSPath = v
	}
	cfg.BusyTimeout = parseDurationOr("VANGO_DB_BUSY_TIMEOUT", cfg.BusyTimeout)
	cfg.LockTimeout = parseDurationOr("VANGO_DB_LOCK_TIMEOUT", cfg.LockTimeout)
	cfg.SearchLimit = parseIntOr("VANGO_SEARCH_LIMIT", cfg.SearchLimit)
	if v := os.Getenv("VANGO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func parseDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}
