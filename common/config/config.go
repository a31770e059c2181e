package config

import (
	"strings"
	"time"

	"github.com/neatchat/neatchat/common/env"
)

var (
	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)
	// DebugSQLEnabled toggles per-query SQL logging when DEBUG_SQL=true.
	DebugSQLEnabled = env.Bool("DEBUG_SQL", false)

	// ServerPort overrides the --port flag when running inside container or PaaS environments.
	ServerPort = strings.TrimSpace(env.String("PORT", ""))
	// GinMode allows forcing Gin into release mode (or other modes) without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))

	// SQLDSN selects the relational store for persisted messages. Empty means SQLite.
	SQLDSN = strings.TrimSpace(env.String("SQL_DSN", ""))
	// SQLitePath is the SQLite database file used when SQL_DSN is unset.
	SQLitePath = env.String("SQLITE_PATH", "neatchat.db")
	// SQLiteBusyTimeout is passed to the SQLite driver as _busy_timeout (milliseconds).
	SQLiteBusyTimeout = env.Int("SQLITE_BUSY_TIMEOUT", 3000)
	// SQLMaxIdleConns / SQLMaxOpenConns / SQLMaxLifetime tune the shared connection pool.
	SQLMaxIdleConns = env.Int("SQL_MAX_IDLE_CONNS", 100)
	SQLMaxOpenConns = env.Int("SQL_MAX_OPEN_CONNS", 1000)
	SQLMaxLifetime  = env.Int("SQL_MAX_LIFETIME", 60)

	// RedisConnString enables the shared rate-limit counter store when set.
	RedisConnString = env.String("REDIS_CONN_STRING", "")
	// RedisPassword is only used in cluster/sentinel mode.
	RedisPassword = env.String("REDIS_PASSWORD", "")
	// RedisMasterName switches the Redis client into sentinel mode when set.
	RedisMasterName = env.String("REDIS_MASTER_NAME", "")

	// UpstreamBaseURL is the OpenAI-compatible completion endpoint of the LLM provider.
	UpstreamBaseURL = strings.TrimRight(env.String("UPSTREAM_BASE_URL", "https://openrouter.ai/api"), "/")
	// UpstreamAPIKey authenticates against the LLM provider.
	UpstreamAPIKey = env.String("UPSTREAM_API_KEY", "")
	// UpstreamTimeout bounds the full upstream request (seconds); 0 disables the deadline
	// so long streams are only bounded by client disconnect.
	UpstreamTimeout = env.Int("UPSTREAM_TIMEOUT", 0)
	// DefaultModel is used when a chat request does not name a model.
	DefaultModel = env.String("DEFAULT_MODEL", "openai/gpt-4o-mini")

	// SessionSecret signs and verifies the access tokens issued by the auth collaborator.
	SessionSecret = env.String("SESSION_SECRET", "")

	// RateLimitKeyPrefix namespaces all sliding-window keys in the shared store.
	RateLimitKeyPrefix = env.String("RATE_LIMIT_KEY_PREFIX", "neatchat:rl:")

	// ShutdownTimeoutSec specifies the graceful shutdown timeout (seconds) for the HTTP server.
	ShutdownTimeoutSec = env.Int("SHUTDOWN_TIMEOUT", 30)

	// EnablePrometheusMetrics exposes the /metrics endpoint for Prometheus scrapers when true.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)
)

// RelayTimeout returns the upstream request deadline, zero meaning unbounded.
func RelayTimeout() time.Duration {
	return time.Duration(UpstreamTimeout) * time.Second
}
