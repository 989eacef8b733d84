package audit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// MountRoutes mounts the per-database audit trail listing endpoint.
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/databases/:databaseId/audit", func(c *gin.Context) {
		userID := security.GetUserID(c)
		databaseID, ok := pathUint(c, "databaseId")
		if !ok {
			return
		}

		query := registrystore.AuditQuery{
			Action:      c.Query("action"),
			ObjectType:  c.Query("objectType"),
			AfterCursor: queryPtr(c, "afterCursor"),
			Limit:       queryInt(c, "limit", 0),
		}
		if raw := c.Query("userId"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "invalid userId"})
				return
			}
			id := uint(v)
			query.UserID = &id
		}

		entries, cursor, err := store.ListAuditLogs(c.Request.Context(), userID, databaseID, query)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": entries, "afterCursor": cursor})
	})
}

func pathUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": name + " not found"})
		return 0, false
	}
	return uint(v), true
}

func queryPtr(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if v := c.Query(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"code": "conflict", "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
