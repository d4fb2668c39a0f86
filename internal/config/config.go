// Package config loads wardrosterd settings from WARDROSTER_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wardroster/internal/localstore"
	"wardroster/internal/remote"
	"wardroster/internal/syncengine"
)

// RemoteDriver selects the remote.Resources implementation.
type RemoteDriver string

const (
	RemoteBlob  RemoteDriver = "blob"  // blob.Store selected by WARDROSTER_BLOB_DRIVER
	RemoteDrive RemoteDriver = "drive" // Drive v3 style REST API
)

// Config is the daemon configuration.
type Config struct {
	HTTPAddr    string
	LogLevel    string
	LogFormat   string
	ServiceName string
	CORSOrigins []string

	Storage localstore.BackendConfig

	Remote       RemoteDriver
	RemotePrefix string
	ResourceName string
	DriveBaseURL string
	DriveFolder  string
	DriveToken   string

	SyncInterval   time.Duration
	AutoSync       bool
	ConflictPolicy syncengine.Policy
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		LogLevel:       "info",
		LogFormat:      "json",
		ServiceName:    "wardrosterd",
		CORSOrigins:    []string{"*"},
		Storage:        localstore.BackendConfig{Driver: localstore.StorageSQLite, SQLitePath: "wardroster.db"},
		Remote:         RemoteBlob,
		ResourceName:   remote.DefaultResourceName,
		SyncInterval:   syncengine.DefaultInterval,
		AutoSync:       true,
		ConflictPolicy: syncengine.PolicyManual,
	}
}

// Load reads envFiles (default ".env", silently skipped when absent) and then
// the process environment. Variables already set in the environment win over
// file entries.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Default()
	setString(&cfg.HTTPAddr, "WARDROSTER_HTTP_ADDR")
	setString(&cfg.LogLevel, "WARDROSTER_LOG_LEVEL")
	setString(&cfg.LogFormat, "WARDROSTER_LOG_FORMAT")
	setString(&cfg.ServiceName, "WARDROSTER_SERVICE_NAME")
	if v := os.Getenv("WARDROSTER_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("WARDROSTER_STORAGE_DRIVER"); v != "" {
		switch d := localstore.StorageDriver(strings.ToLower(v)); d {
		case localstore.StorageMemory, localstore.StorageSQLite, localstore.StoragePostgres:
			cfg.Storage.Driver = d
		default:
			return Config{}, fmt.Errorf("WARDROSTER_STORAGE_DRIVER: unknown driver %q", v)
		}
	}
	setString(&cfg.Storage.SQLitePath, "WARDROSTER_SQLITE_PATH")
	setString(&cfg.Storage.PostgresDSN, "WARDROSTER_POSTGRES_DSN")

	if v := os.Getenv("WARDROSTER_REMOTE_DRIVER"); v != "" {
		switch d := RemoteDriver(strings.ToLower(v)); d {
		case RemoteBlob, RemoteDrive:
			cfg.Remote = d
		default:
			return Config{}, fmt.Errorf("WARDROSTER_REMOTE_DRIVER: unknown driver %q", v)
		}
	}
	setString(&cfg.RemotePrefix, "WARDROSTER_REMOTE_PREFIX")
	setString(&cfg.ResourceName, "WARDROSTER_RESOURCE_NAME")
	setString(&cfg.DriveBaseURL, "WARDROSTER_DRIVE_BASE_URL")
	setString(&cfg.DriveFolder, "WARDROSTER_DRIVE_FOLDER")
	setString(&cfg.DriveToken, "WARDROSTER_DRIVE_TOKEN")

	if v := os.Getenv("WARDROSTER_SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("WARDROSTER_SYNC_INTERVAL: invalid duration %q", v)
		}
		cfg.SyncInterval = d
	}
	if v := os.Getenv("WARDROSTER_AUTO_SYNC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("WARDROSTER_AUTO_SYNC: %w", err)
		}
		cfg.AutoSync = b
	}
	if v := os.Getenv("WARDROSTER_CONFLICT_POLICY"); v != "" {
		p, err := syncengine.ParsePolicy(v)
		if err != nil {
			return Config{}, fmt.Errorf("WARDROSTER_CONFLICT_POLICY: %w", err)
		}
		cfg.ConflictPolicy = p
	}
	return cfg, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
