// Package config loads the relmeta command configuration from flags,
// environment variables and an optional config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/syssam/relmeta/dialect"
)

// EnvPrefix is the prefix of the environment variables read by Load,
// e.g. RELMETA_DSN or RELMETA_LOG_LEVEL.
const EnvPrefix = "RELMETA"

// Configuration keys.
const (
	KeyDialect       = "dialect"
	KeyDSN           = "dsn"
	KeySchemas       = "schemas"
	KeyFormat        = "format"
	KeyLogLevel      = "log_level"
	KeySlowThreshold = "slow_threshold"
	KeyCache         = "cache"
	KeyCacheTTL      = "cache_ttl"
	KeyCacheDir      = "cache_dir"
)

// Config is the resolved command configuration.
type Config struct {
	Dialect       string
	DSN           string
	Schemas       []string
	Format        string
	LogLevel      slog.Level
	SlowThreshold time.Duration
	Cache         bool
	CacheTTL      time.Duration
	// CacheDir holds snapshots between runs. It defaults to a relmeta
	// directory under the user cache directory.
	CacheDir      string
}

// New returns a viper instance with the defaults and environment binding
// of the command. Flags are bound to it by the caller.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDialect, dialect.SQLite)
	v.SetDefault(KeyFormat, "yaml")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeySlowThreshold, 100*time.Millisecond)
	v.SetDefault(KeyCache, true)
	v.SetDefault(KeyCacheTTL, 5*time.Minute)
	return v
}

// Load reads the optional config file into v and resolves the configuration.
// Environment variables take precedence over the file.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", file, err)
		}
	}
	d, err := dialect.Normalize(v.GetString(KeyDialect))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return nil, fmt.Errorf("config: log_level: %w", err)
	}
	format := strings.ToLower(v.GetString(KeyFormat))
	if format != "yaml" && format != "json" {
		return nil, fmt.Errorf("config: unsupported format %q", format)
	}
	cacheDir := v.GetString(KeyCacheDir)
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		cacheDir = filepath.Join(base, "relmeta")
	}
	return &Config{
		Dialect:       d,
		DSN:           v.GetString(KeyDSN),
		Schemas:       v.GetStringSlice(KeySchemas),
		Format:        format,
		LogLevel:      level,
		SlowThreshold: v.GetDuration(KeySlowThreshold),
		Cache:         v.GetBool(KeyCache),
		CacheTTL:      v.GetDuration(KeyCacheTTL),
		CacheDir:      cacheDir,
	}, nil
}

// Source returns the DSN without its password, for logs and cache keys.
// The user name is kept since different users may see different schemas.
func (c *Config) Source() string {
	dsn := c.DSN
	if i := strings.Index(dsn, "://"); i >= 0 {
		if j := strings.LastIndexByte(dsn, '@'); j > i {
			return dsn[:i+3] + userOnly(dsn[i+3:j]) + dsn[j+1:]
		}
		return dsn
	}
	if strings.Contains(dsn, "password=") {
		fields := strings.Fields(dsn)
		kept := fields[:0]
		for _, f := range fields {
			if !strings.HasPrefix(f, "password=") {
				kept = append(kept, f)
			}
		}
		return strings.Join(kept, " ")
	}
	// MySQL style user:pass@tcp(host)/db.
	if j := strings.LastIndexByte(dsn, '@'); j >= 0 {
		return userOnly(dsn[:j]) + dsn[j+1:]
	}
	return dsn
}

// userOnly returns "user@" for a "user:password" userinfo, or "" when it
// has no user name.
func userOnly(info string) string {
	user, _, _ := strings.Cut(info, ":")
	if user == "" {
		return ""
	}
	return user + "@"
}
