// Package config defines the runtime configuration for sharerelay: the
// server ports, the client connection used by the CLI modes, the user
// directory backend, the admin HTTP surface, and logging.
package config

import (
	"fmt"
	"time"

	"sharerelay/internal/errors"
	"sharerelay/util"
)

// Modes selectable on the command line.
const (
	ModeServe  = "serve"
	ModeShares = "shares"
	ModeShare  = "share"
	ModeView   = "view"
	ModeInvite = "invite"
)

// Directory backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds every tuneable for one sharerelay process.
type Config struct {
	// ── Invocation ───────────────────────────────────────────────────
	Mode       string `yaml:"-"`
	ConfigFile string `yaml:"-"`
	Watch      bool   `yaml:"-"` // reload the config file on change
	DryRun     bool   `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Directory DirectoryConfig `yaml:"directory"`
	Admin     AdminConfig     `yaml:"admin"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig covers the two relay ports.
type ServerConfig struct {
	ControlAddr string `yaml:"control_addr"`
	StreamAddr  string `yaml:"stream_addr"`

	// Zero disables each timeout.
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ViewerWriteTimeout time.Duration `yaml:"viewer_write_timeout"`
}

// ClientConfig is used by the shares/share/view modes.
type ClientConfig struct {
	Host           string        `yaml:"host"`
	ControlPort    int           `yaml:"control_port"`
	StreamPort     int           `yaml:"stream_port"`
	Username       string        `yaml:"username"`
	Secret         string        `yaml:"secret"`
	Target         string        `yaml:"-"`
	ReplyTimeout   time.Duration `yaml:"reply_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DirectoryConfig selects the user/invitation store.
type DirectoryConfig struct {
	Backend    string      `yaml:"backend"`
	SQLitePath string      `yaml:"sqlite_path"`
	InviteSeed string      `yaml:"invite_seed"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// AdminConfig configures the HTTP admin surface.  An empty Addr
// disables it.
type AdminConfig struct {
	Addr      string          `yaml:"addr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is the per-client-IP limit on admin requests.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Verbose int    `yaml:"verbose"`
	Format  string `yaml:"format"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Mode: ModeServe,
		Server: ServerConfig{
			ControlAddr: fmt.Sprintf(":%d", DefaultControlPort),
			StreamAddr:  fmt.Sprintf(":%d", DefaultStreamPort),
		},
		Client: ClientConfig{
			Host:           DefaultHost,
			ControlPort:    DefaultControlPort,
			StreamPort:     DefaultStreamPort,
			ReplyTimeout:   DefaultReplyTimeout,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Directory: DirectoryConfig{
			Backend:    BackendMemory,
			SQLitePath: DefaultSQLitePath,
			Redis: RedisConfig{
				Address:  DefaultRedisAddr,
				PoolSize: DefaultRedisPoolSize,
			},
		},
		Admin: AdminConfig{
			Addr: DefaultAdminAddr,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: DefaultRateLimitRPS,
				Burst:             DefaultRateLimitBurst,
			},
		},
		Log: LogConfig{Format: util.FormatConsole},
	}
}

// ControlAddress returns host:port of the control port for client modes.
func (c *Config) ControlAddress() string {
	return util.FormatAddr(c.Client.Host, c.Client.ControlPort)
}

// StreamAddress returns host:port of the stream port for client modes.
func (c *Config) StreamAddress() string {
	return util.FormatAddr(c.Client.Host, c.Client.StreamPort)
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeServe:
		if err := c.validateServer(); err != nil {
			return err
		}
	case ModeShares, ModeShare, ModeView:
		if err := c.validateClient(); err != nil {
			return err
		}
	case ModeInvite:
		if c.Client.Username == "" {
			return &errors.ConfigError{
				Field:   "user",
				Message: "an invitation code is bound to a username",
				Hint:    "sharerelay invite --user <name>",
			}
		}
	default:
		return &errors.ConfigError{
			Field:   "mode",
			Value:   c.Mode,
			Message: "unknown mode",
			Hint:    "use serve, shares, share, view or invite",
		}
	}

	switch c.Directory.Backend {
	case BackendMemory, BackendRedis:
	case BackendSQLite:
		if c.Directory.SQLitePath == "" {
			return &errors.ConfigError{Field: "sqlite-path", Message: "required with --directory=sqlite"}
		}
	default:
		return &errors.ConfigError{
			Field:   "directory",
			Value:   c.Directory.Backend,
			Message: "unknown backend",
			Hint:    "use memory, sqlite or redis",
		}
	}

	if c.Log.Format != util.FormatConsole && c.Log.Format != util.FormatJSON {
		return &errors.ConfigError{
			Field:   "log-format",
			Value:   c.Log.Format,
			Message: "unknown log format",
			Hint:    "use console or json",
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.ControlAddr == "" {
		return &errors.ConfigError{Field: "control-addr", Message: "required"}
	}
	if c.Server.StreamAddr == "" {
		return &errors.ConfigError{Field: "stream-addr", Message: "required"}
	}
	if c.Server.ControlAddr == c.Server.StreamAddr {
		return &errors.ConfigError{
			Field:   "stream-addr",
			Value:   c.Server.StreamAddr,
			Message: "must differ from --control-addr",
		}
	}
	if c.Admin.Addr != "" && (c.Admin.Addr == c.Server.ControlAddr || c.Admin.Addr == c.Server.StreamAddr) {
		return &errors.ConfigError{
			Field:   "admin-addr",
			Value:   c.Admin.Addr,
			Message: "must differ from the relay ports",
			Hint:    "pass --admin-addr=\"\" to disable the admin server",
		}
	}
	if rl := c.Admin.RateLimit; rl.Enabled && (rl.RequestsPerSecond <= 0 || rl.Burst <= 0) {
		return &errors.ConfigError{
			Field:   "rate-limit",
			Value:   rl.RequestsPerSecond,
			Message: "requests per second and burst must be positive",
			Hint:    "pass --rate-limit=0 to disable rate limiting",
		}
	}
	for name, d := range map[string]time.Duration{
		"idle-timeout":         c.Server.IdleTimeout,
		"write-timeout":        c.Server.WriteTimeout,
		"viewer-write-timeout": c.Server.ViewerWriteTimeout,
	} {
		if d < 0 {
			return &errors.ConfigError{Field: name, Value: d, Message: "must not be negative"}
		}
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.Host == "" {
		return &errors.ConfigError{Field: "host", Message: "required", Hint: "the relay server to connect to"}
	}
	for name, p := range map[string]int{"control-port": c.Client.ControlPort, "stream-port": c.Client.StreamPort} {
		if p < 1 || p > 65535 {
			return &errors.ConfigError{
				Field:   name,
				Value:   p,
				Message: "out of range 1-65535",
			}
		}
	}
	if c.Mode == ModeShares {
		return nil
	}
	if c.Client.Username == "" {
		return &errors.ConfigError{
			Field:   "user",
			Message: fmt.Sprintf("required in %s mode", c.Mode),
			Hint:    "set --user or SHARERELAY_USER",
		}
	}
	if c.Mode == ModeView && c.Client.Target == "" {
		return &errors.ConfigError{
			Field:   "target",
			Message: "required in view mode",
			Hint:    "sharerelay view <user>",
		}
	}
	if c.Client.Secret == "" {
		return &errors.ConfigError{
			Field:   "secret",
			Message: fmt.Sprintf("required in %s mode", c.Mode),
			Hint:    "set --secret or SHARERELAY_SECRET, or run on a terminal to be prompted",
		}
	}
	if c.Client.ReplyTimeout <= 0 {
		return &errors.ConfigError{Field: "reply-timeout", Value: c.Client.ReplyTimeout, Message: "must be positive"}
	}
	return nil
}
