package customfields

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// MountRoutes mounts the custom field schema routes: groups and definitions.
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/databases/:databaseId/field-groups", func(c *gin.Context) {
		listGroups(c, store)
	})
	g.POST("/databases/:databaseId/field-groups", func(c *gin.Context) {
		createGroup(c, store)
	})
	g.PATCH("/field-groups/:groupId", func(c *gin.Context) {
		updateGroup(c, store)
	})
	g.DELETE("/field-groups/:groupId", func(c *gin.Context) {
		deleteGroup(c, store)
	})

	g.GET("/databases/:databaseId/field-definitions", func(c *gin.Context) {
		listDefinitions(c, store)
	})
	g.POST("/databases/:databaseId/field-definitions", func(c *gin.Context) {
		createDefinition(c, store)
	})
	g.PATCH("/field-definitions/:definitionId", func(c *gin.Context) {
		updateDefinition(c, store)
	})
	g.DELETE("/field-definitions/:definitionId", func(c *gin.Context) {
		deleteDefinition(c, store)
	})
}

func listGroups(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	groups, err := store.ListFieldGroups(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": groups})
}

func createGroup(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req struct {
		Name  string `json:"name" binding:"required"`
		Order int    `json:"order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	group, err := store.CreateFieldGroup(c.Request.Context(), userID, databaseID, req.Name, req.Order)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func updateGroup(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	groupID, ok := pathUint(c, "groupId")
	if !ok {
		return
	}
	var req struct {
		Name  *string `json:"name"`
		Order *int    `json:"order"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	group, err := store.UpdateFieldGroup(c.Request.Context(), userID, groupID, req.Name, req.Order)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func deleteGroup(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	groupID, ok := pathUint(c, "groupId")
	if !ok {
		return
	}
	if err := store.DeleteFieldGroup(c.Request.Context(), userID, groupID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listDefinitions(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	definitions, err := store.ListFieldDefinitions(c.Request.Context(), userID, databaseID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": definitions})
}

func createDefinition(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req model.FieldDefinition
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	def, err := store.CreateFieldDefinition(c.Request.Context(), userID, databaseID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

func updateDefinition(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	definitionID, ok := pathUint(c, "definitionId")
	if !ok {
		return
	}
	var req registrystore.FieldDefinitionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	def, err := store.UpdateFieldDefinition(c.Request.Context(), userID, definitionID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func deleteDefinition(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	definitionID, ok := pathUint(c, "definitionId")
	if !ok {
		return
	}
	if err := store.DeleteFieldDefinition(c.Request.Context(), userID, definitionID); err != nil {
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
