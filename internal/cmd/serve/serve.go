package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/helixmapr/helixmapr/internal/config"
	registrycache "github.com/helixmapr/helixmapr/internal/registry/cache"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/helixmapr/helixmapr/internal/plugin/cache/noop"
	_ "github.com/helixmapr/helixmapr/internal/plugin/cache/redis"
	_ "github.com/helixmapr/helixmapr/internal/plugin/route/system"
	_ "github.com/helixmapr/helixmapr/internal/plugin/store/gormstore"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the inventory service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "Run mode (prod|testing); testing mode accepts the X-User-ID header",
		},
		&cli.StringFlag{
			Name:        "tls-cert-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_TLS_CERT_FILE"),
			Destination: &cfg.Listener.TLSCertFile,
			Usage:       "TLS certificate file for single-port TLS mode",
		},
		&cli.StringFlag{
			Name:        "tls-key-file",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_TLS_KEY_FILE"),
			Destination: &cfg.Listener.TLSKeyFile,
			Usage:       "TLS private key file for single-port TLS mode",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_CORS"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated list of allowed CORS origins; empty allows any",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("HELIXMAPR_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Graceful shutdown drain timeout in seconds",
		},

		// ── Network Listener ──────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("HELIXMAPR_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.BoolFlag{
			Name:        "plain-text",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("HELIXMAPR_PLAIN_TEXT"),
			Destination: &cfg.Listener.EnablePlainText,
			Value:       cfg.Listener.EnablePlainText,
			Usage:       "Enable plaintext HTTP/1.1 + h2c",
		},
		&cli.BoolFlag{
			Name:        "tls",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("HELIXMAPR_TLS"),
			Destination: &cfg.Listener.EnableTLS,
			Value:       cfg.Listener.EnableTLS,
			Usage:       "Enable TLS HTTP/1.1 + HTTP/2",
		},

		// ── Management Network Listener ───────────────────────────
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("HELIXMAPR_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics (0 = OS-assigned random port); when unset, served on the main port",
		},
		&cli.BoolFlag{
			Name:        "management-plain-text",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("HELIXMAPR_MANAGEMENT_PLAIN_TEXT"),
			Destination: &cfg.ManagementListener.EnablePlainText,
			Value:       cfg.ManagementListener.EnablePlainText,
			Usage:       "Enable plaintext HTTP for management server",
		},
		&cli.BoolFlag{
			Name:        "management-tls",
			Category:    "Management Network Listener:",
			Sources:     cli.EnvVars("HELIXMAPR_MANAGEMENT_TLS"),
			Destination: &cfg.ManagementListener.EnableTLS,
			Value:       cfg.ManagementListener.EnableTLS,
			Usage:       "Enable TLS for management server",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("HELIXMAPR_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("HELIXMAPR_DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL",
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("HELIXMAPR_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("HELIXMAPR_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("HELIXMAPR_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Schema cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("HELIXMAPR_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "schema-cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("HELIXMAPR_SCHEMA_CACHE_TTL"),
			Destination: &cfg.SchemaCacheTTL,
			Value:       cfg.SchemaCacheTTL,
			Usage:       "TTL for cached field schemas",
		},

		// ── Authorization ─────────────────────────────────────────
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("HELIXMAPR_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("HELIXMAPR_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL (internal URL when issuer is not directly reachable)",
		},
		&cli.StringFlag{
			Name:        "oidc-client-id",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("HELIXMAPR_OIDC_CLIENT_ID"),
			Destination: &cfg.OIDCClientID,
			Usage:       "Expected OIDC client id; empty skips the audience check",
		},
		&cli.StringFlag{
			Name:        "superusers",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("HELIXMAPR_SUPERUSERS"),
			Destination: &cfg.Superusers,
			Usage:       "Comma-separated usernames that bypass organization and database role checks",
		},

		// ── Limits ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "import-max-rows",
			Category:    "Limits:",
			Sources:     cli.EnvVars("HELIXMAPR_IMPORT_MAX_ROWS"),
			Destination: &cfg.ImportMaxRows,
			Value:       cfg.ImportMaxRows,
			Usage:       "Maximum number of data rows accepted in a single CSV import",
		},
		&cli.Int64Flag{
			Name:        "snapshot-max-size",
			Category:    "Limits:",
			Sources:     cli.EnvVars("HELIXMAPR_SNAPSHOT_MAX_SIZE"),
			Destination: &cfg.SnapshotMaxSize,
			Value:       cfg.SnapshotMaxSize,
			Usage:       "Maximum snapshot archive upload size in bytes",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Limits:",
			Sources:     cli.EnvVars("HELIXMAPR_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes for non-upload endpoints",
		},
		&cli.IntFlag{
			Name:        "audit-page-limit",
			Category:    "Limits:",
			Sources:     cli.EnvVars("HELIXMAPR_AUDIT_PAGE_LIMIT"),
			Destination: &cfg.AuditPageLimit,
			Value:       cfg.AuditPageLimit,
			Usage:       "Maximum page size for audit log listing",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("HELIXMAPR_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=helixmapr",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isUploadRequest(c.Request) {
			c.Next()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}

// isUploadRequest reports whether the request is a multipart upload exempt
// from the default body size cap. CSV imports and snapshot restores enforce
// their own limits.
func isUploadRequest(req *http.Request) bool {
	if req == nil || req.URL == nil || req.Method != http.MethodPost {
		return false
	}
	path := req.URL.Path
	upload := strings.HasSuffix(path, "/import") ||
		strings.HasSuffix(path, "/import/preview") ||
		strings.HasSuffix(path, "/restore")
	if !upload {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(req.Header.Get("Content-Type")))
	return strings.HasPrefix(contentType, "multipart/form-data")
}
