package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// LoadFile overlays the YAML file at path onto cfg.  Keys absent from
// the file keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the SHARERELAY_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("5s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	// Server
	if v := os.Getenv("SHARERELAY_CONTROL_ADDR"); v != "" {
		cfg.Server.ControlAddr = v
	}
	if v := os.Getenv("SHARERELAY_STREAM_ADDR"); v != "" {
		cfg.Server.StreamAddr = v
	}
	if v, ok := envDuration("SHARERELAY_IDLE_TIMEOUT"); ok {
		cfg.Server.IdleTimeout = v
	}
	if v, ok := envDuration("SHARERELAY_WRITE_TIMEOUT"); ok {
		cfg.Server.WriteTimeout = v
	}

	// Client
	if v := os.Getenv("SHARERELAY_HOST"); v != "" {
		cfg.Client.Host = v
	}
	if v := envInt("SHARERELAY_CONTROL_PORT"); v > 0 {
		cfg.Client.ControlPort = v
	}
	if v := envInt("SHARERELAY_STREAM_PORT"); v > 0 {
		cfg.Client.StreamPort = v
	}
	if v := os.Getenv("SHARERELAY_USER"); v != "" {
		cfg.Client.Username = v
	}
	if v := os.Getenv("SHARERELAY_SECRET"); v != "" {
		cfg.Client.Secret = v
	}
	if v, ok := envDuration("SHARERELAY_REPLY_TIMEOUT"); ok {
		cfg.Client.ReplyTimeout = v
	}

	// Directory
	if v := os.Getenv("SHARERELAY_DIRECTORY"); v != "" {
		cfg.Directory.Backend = v
	}
	if v := os.Getenv("SHARERELAY_SQLITE_PATH"); v != "" {
		cfg.Directory.SQLitePath = v
	}
	if v := os.Getenv("SHARERELAY_INVITE_SEED"); v != "" {
		cfg.Directory.InviteSeed = v
	}
	if v := os.Getenv("SHARERELAY_REDIS_ADDR"); v != "" {
		cfg.Directory.Redis.Address = v
	}
	if v := os.Getenv("SHARERELAY_REDIS_PASSWORD"); v != "" {
		cfg.Directory.Redis.Password = v
	}
	if v := envInt("SHARERELAY_REDIS_DB"); v > 0 {
		cfg.Directory.Redis.DB = v
	}

	// Admin
	if v, ok := os.LookupEnv("SHARERELAY_ADMIN_ADDR"); ok {
		cfg.Admin.Addr = v
	}
	if v := os.Getenv("SHARERELAY_RATE_LIMIT"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Admin.RateLimit.RequestsPerSecond = rps
			cfg.Admin.RateLimit.Enabled = rps > 0
		}
	}

	// Output
	if v := envInt("SHARERELAY_VERBOSE"); v > 0 {
		cfg.Log.Verbose = v
	}
	if v := os.Getenv("SHARERELAY_LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if envBool("SHARERELAY_WATCH") {
		cfg.Watch = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
