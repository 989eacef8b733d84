package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/helixmapr/helixmapr/internal/config"
	"github.com/helixmapr/helixmapr/internal/plugin/route/audit"
	"github.com/helixmapr/helixmapr/internal/plugin/route/catalog"
	"github.com/helixmapr/helixmapr/internal/plugin/route/customfields"
	"github.com/helixmapr/helixmapr/internal/plugin/route/imports"
	"github.com/helixmapr/helixmapr/internal/plugin/route/memberships"
	"github.com/helixmapr/helixmapr/internal/plugin/route/organizations"
	"github.com/helixmapr/helixmapr/internal/plugin/route/snapshots"
	"github.com/helixmapr/helixmapr/internal/plugin/route/strains"
	routesystem "github.com/helixmapr/helixmapr/internal/plugin/route/system"
	storemetrics "github.com/helixmapr/helixmapr/internal/plugin/store/metrics"
	registrycache "github.com/helixmapr/helixmapr/internal/registry/cache"
	registrymigrate "github.com/helixmapr/helixmapr/internal/registry/migrate"
	registryroute "github.com/helixmapr/helixmapr/internal/registry/route"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.InventoryStore
	Router          *gin.Engine
	Running         *RunningServers
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.Running.Close(ctx)
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Running.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting inventory service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize schema cache and inject into context so store loaders can read it.
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if schemaCache, err := cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
	} else {
		ctx = registrycache.WithSchemaCacheContext(ctx, schemaCache)
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)
	routesystem.SetStore(store)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Create shared token resolver and auth middleware. Every authenticated
	// request upserts the caller's user row so snapshot restores and
	// memberships always have a directory entry to resolve against.
	resolver := security.NewTokenResolver(cfg)
	auth := security.AuthMiddleware(resolver, func(ctx context.Context, id *security.Identity) error {
		_, err := store.EnsureUser(ctx, id.Username, id.Email, id.DisplayName)
		return err
	})

	// Mount inventory API routes
	organizations.MountRoutes(router, store, auth)
	memberships.MountRoutes(router, store, auth)
	catalog.MountRoutes(router, store, auth)
	strains.MountRoutes(router, store, auth)
	customfields.MountRoutes(router, store, auth)
	imports.MountRoutes(router, store, cfg, auth)
	snapshots.MountRoutes(router, store, cfg, auth)
	audit.MountRoutes(router, store, auth)

	// Mount management route plugins. If a dedicated management port is configured,
	// run them on a bare gin engine served by the management server. Otherwise,
	// mount them on the main router so existing single-port behaviour is unchanged.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startManagementServer(mgmtCfg, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	// Start single-port HTTP (plaintext h2c and/or TLS on one listener)
	running, err := StartSinglePortHTTP(ctx, cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening",
		"port", running.Port,
		"plaintext", cfg.Listener.EnablePlainText,
		"tls", cfg.Listener.EnableTLS,
	)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Running:         running,
		closeManagement: closeManagement,
	}, nil
}
