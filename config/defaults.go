package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultControlPort is the line-protocol port.
	DefaultControlPort = 9999

	// DefaultStreamPort is the raw video stream port.
	DefaultStreamPort = 10002

	// DefaultAdminAddr is the admin HTTP listen address.
	DefaultAdminAddr = ":8080"

	// DefaultHost is the relay host used by client modes.
	DefaultHost = "127.0.0.1"

	// DefaultReplyTimeout is how long a client waits for LOGIN_OK,
	// SHARE_STARTED or VIEW_ACCEPTED.
	DefaultReplyTimeout = 5 * time.Second

	// DefaultConnectTimeout bounds each TCP dial from a client.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultSQLitePath is the user directory database file.
	DefaultSQLitePath = "sharerelay.db"

	// DefaultRedisAddr is the Redis server for the redis directory.
	DefaultRedisAddr = "localhost:6379"

	// DefaultRedisPoolSize is the Redis connection pool size.
	DefaultRedisPoolSize = 10

	// DefaultRateLimitRPS is the sustained admin requests per second
	// allowed per client IP.
	DefaultRateLimitRPS = 20

	// DefaultRateLimitBurst is the admin request burst per client IP.
	DefaultRateLimitBurst = 40

	// DefaultGracePeriod is how long shutdown waits for the admin
	// server to drain.
	DefaultGracePeriod = 5 * time.Second
)
