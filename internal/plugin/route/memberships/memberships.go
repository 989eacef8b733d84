package memberships

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// MountRoutes mounts organization and database membership routes.
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/organizations/:orgId/members", func(c *gin.Context) {
		listOrganizationMembers(c, store)
	})
	g.POST("/organizations/:orgId/members", func(c *gin.Context) {
		addOrganizationMember(c, store)
	})
	g.PATCH("/organizations/:orgId/members/:username", func(c *gin.Context) {
		updateOrganizationMember(c, store)
	})
	g.DELETE("/organizations/:orgId/members/:username", func(c *gin.Context) {
		removeOrganizationMember(c, store)
	})

	g.GET("/databases/:databaseId/members", func(c *gin.Context) {
		listDatabaseMembers(c, store)
	})
	g.PUT("/databases/:databaseId/members/:username", func(c *gin.Context) {
		upsertDatabaseMember(c, store)
	})
	g.DELETE("/databases/:databaseId/members/:username", func(c *gin.Context) {
		removeDatabaseMember(c, store)
	})
}

func listOrganizationMembers(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}
	members, err := store.ListOrganizationMembers(c.Request.Context(), userID, orgID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": members})
}

func addOrganizationMember(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}
	var req struct {
		Username string                 `json:"username" binding:"required"`
		Role     model.OrganizationRole `json:"role"     binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	membership, err := store.AddOrganizationMember(c.Request.Context(), userID, orgID, req.Username, req.Role)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func updateOrganizationMember(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}
	var req struct {
		Role model.OrganizationRole `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	membership, err := store.UpdateOrganizationMember(c.Request.Context(), userID, orgID, c.Param("username"), req.Role)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

func removeOrganizationMember(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}
	if err := store.RemoveOrganizationMember(c.Request.Context(), userID, orgID, c.Param("username")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listDatabaseMembers(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	members, err := store.ListDatabaseMembers(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": members})
}

func upsertDatabaseMember(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req struct {
		Role model.DatabaseRole `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	membership, err := store.UpsertDatabaseMember(c.Request.Context(), userID, databaseID, c.Param("username"), req.Role)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, membership)
}

func removeDatabaseMember(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	if err := store.RemoveDatabaseMember(c.Request.Context(), userID, databaseID, c.Param("username")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func pathUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": name + " not found"})
		return 0, false
	}
	return uint(v), true
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
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
