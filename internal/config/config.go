package config

import (
	"context"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the inventory service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, X-User-ID header is accepted and API key validation is relaxed.
	Mode string

	// Database
	DBURL string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Datastore backend type
	DatastoreType string // "postgres" or "sqlite"

	// Cache backend type
	CacheType string // "redis" or "none"

	// Redis
	RedisURL string

	// Field schema cache TTL.
	SchemaCacheTTL time.Duration

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=helixmapr".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port (or HELIXMAPR_MANAGEMENT_PORT)
	// was explicitly provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints (/health, /ready, /metrics).
	// Disabled by default to suppress high-frequency probe noise from the access log.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Security
	// APIKeys maps API key values to usernames (HELIXMAPR_API_KEYS_<USER>=<key>).
	APIKeys map[string]string // key value → username
	// Superusers is a comma-separated list of usernames that bypass role checks.
	Superusers string

	// Import limits
	ImportMaxRows int

	// Snapshot upload size limit (bytes)
	SnapshotMaxSize int64

	// TempDir is where snapshot archives are spooled while streaming.
	// Empty means the OS default temp directory.
	TempDir string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Audit listing page size cap
	AuditPageLimit int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		CacheType:               "none",
		SchemaCacheTTL:          10 * time.Minute,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		ImportMaxRows:   5000,
		SnapshotMaxSize: 50 * 1024 * 1024,
		MaxBodySize:     64 * 1024 * 1024,
		DrainTimeout:    30,
		DBMaxOpenConns:  25,
		DBMaxIdleConns:  5,
		AuditPageLimit:  500,
	}
}

// SuperuserSet returns the configured superuser names as a set.
func (c *Config) SuperuserSet() map[string]bool {
	set := map[string]bool{}
	if c == nil {
		return set
	}
	for _, name := range strings.Split(c.Superusers, ",") {
		if name = strings.TrimSpace(name); name != "" {
			set[name] = true
		}
	}
	return set
}
