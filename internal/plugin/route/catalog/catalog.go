package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// MountRoutes mounts the lookup entity routes (organisms, locations, plasmids).
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/databases/:databaseId/organisms", func(c *gin.Context) {
		listOrganisms(c, store)
	})
	g.POST("/databases/:databaseId/organisms", func(c *gin.Context) {
		createOrganism(c, store)
	})
	g.GET("/databases/:databaseId/locations", func(c *gin.Context) {
		listLocations(c, store)
	})
	g.POST("/databases/:databaseId/locations", func(c *gin.Context) {
		createLocation(c, store)
	})
	g.GET("/databases/:databaseId/plasmids", func(c *gin.Context) {
		listPlasmids(c, store)
	})
	g.POST("/databases/:databaseId/plasmids", func(c *gin.Context) {
		createPlasmid(c, store)
	})
}

func listOrganisms(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	organisms, err := store.ListOrganisms(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": organisms})
}

func createOrganism(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	organism, err := store.CreateOrganism(c.Request.Context(), userID, databaseID, req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, organism)
}

func listLocations(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	locations, err := store.ListLocations(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": locations})
}

func createLocation(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req model.Location
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	location, err := store.CreateLocation(c.Request.Context(), userID, databaseID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, location)
}

func listPlasmids(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	plasmids, err := store.ListPlasmids(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plasmids})
}

func createPlasmid(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req model.Plasmid
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	plasmid, err := store.CreatePlasmid(c.Request.Context(), userID, databaseID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plasmid)
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
