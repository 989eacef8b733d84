package organizations

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// MountRoutes mounts organization and research database routes.
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/organizations", func(c *gin.Context) {
		listOrganizations(c, store)
	})
	g.POST("/organizations", func(c *gin.Context) {
		createOrganization(c, store)
	})
	g.GET("/organizations/:orgId", func(c *gin.Context) {
		getOrganization(c, store)
	})
	g.GET("/organizations/:orgId/databases", func(c *gin.Context) {
		listDatabases(c, store)
	})
	g.POST("/organizations/:orgId/databases", func(c *gin.Context) {
		createDatabase(c, store)
	})
	g.GET("/databases/:databaseId", func(c *gin.Context) {
		getDatabase(c, store)
	})
	g.PATCH("/databases/:databaseId", func(c *gin.Context) {
		updateDatabase(c, store)
	})
	g.DELETE("/databases/:databaseId", func(c *gin.Context) {
		deleteDatabase(c, store)
	})
	g.GET("/databases/:databaseId/role", func(c *gin.Context) {
		resolveRole(c, store)
	})
}

func listOrganizations(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgs, err := store.ListOrganizations(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orgs})
}

func createOrganization(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	org, err := store.CreateOrganization(c.Request.Context(), userID, req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func getOrganization(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}
	org, err := store.GetOrganization(c.Request.Context(), userID, orgID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func listDatabases(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}
	databases, err := store.ListDatabases(c.Request.Context(), userID, orgID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": databases})
}

func createDatabase(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	db, err := store.CreateDatabase(c.Request.Context(), userID, orgID, req.Name, req.Description)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, db)
}

func getDatabase(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	db, err := store.GetDatabase(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, db)
}

func updateDatabase(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	db, err := store.UpdateDatabase(c.Request.Context(), userID, databaseID, req.Name, req.Description)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, db)
}

func deleteDatabase(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	if err := store.DeleteDatabase(c.Request.Context(), userID, databaseID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func resolveRole(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	role, err := store.ResolveDatabaseRole(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role})
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
