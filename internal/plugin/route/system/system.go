package system

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/helixmapr/helixmapr/internal/registry/route"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
)

var ready atomic.Bool

// MarkReady signals that the service has finished initializing and is ready to
// serve traffic. Call this once StartServer has completed successfully.
func MarkReady() {
	ready.Store(true)
}

var store atomic.Pointer[storeHolder]

type storeHolder struct {
	store registrystore.InventoryStore
}

// SetStore provides the store used by the readiness probe's ping. Called by
// the serve command after store initialization.
func SetStore(s registrystore.InventoryStore) {
	store.Store(&storeHolder{store: s})
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Type:  registryroute.RouteTypeManagement,
		Loader: func(r *gin.Engine) error {
			// Liveness: process is up
			r.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})

			// Readiness: service has finished initializing and the store answers
			r.GET("/ready", func(c *gin.Context) {
				if !ready.Load() {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
					return
				}
				if holder := store.Load(); holder != nil && holder.store != nil {
					if err := holder.store.Ping(c.Request.Context()); err != nil {
						c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unavailable"})
						return
					}
				}
				c.JSON(http.StatusOK, gin.H{"status": "ready"})
			})

			// Prometheus metrics
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))

			return nil
		},
	})
}
