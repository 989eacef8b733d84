package strains

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// MountRoutes mounts strain CRUD, archival, form, version, and attachment
// metadata routes.
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/databases/:databaseId/strains", func(c *gin.Context) {
		listStrains(c, store)
	})
	g.POST("/databases/:databaseId/strains/search", func(c *gin.Context) {
		searchStrains(c, store)
	})
	g.POST("/databases/:databaseId/strains", func(c *gin.Context) {
		createStrain(c, store)
	})
	g.GET("/databases/:databaseId/strains/form", func(c *gin.Context) {
		newStrainForm(c, store)
	})
	g.GET("/strains/:strainId", func(c *gin.Context) {
		getStrain(c, store)
	})
	g.PATCH("/strains/:strainId", func(c *gin.Context) {
		updateStrain(c, store)
	})
	g.DELETE("/strains/:strainId", func(c *gin.Context) {
		deleteStrain(c, store)
	})
	g.POST("/strains/:strainId/archive", func(c *gin.Context) {
		archiveStrain(c, store)
	})
	g.POST("/strains/:strainId/unarchive", func(c *gin.Context) {
		unarchiveStrain(c, store)
	})
	g.GET("/strains/:strainId/form", func(c *gin.Context) {
		editStrainForm(c, store)
	})
	g.GET("/strains/:strainId/versions", func(c *gin.Context) {
		listVersions(c, store)
	})
	g.GET("/strains/:strainId/versions/diff", func(c *gin.Context) {
		diffVersions(c, store)
	})
	g.GET("/strains/:strainId/versions/:number", func(c *gin.Context) {
		getVersion(c, store)
	})
	g.GET("/strains/:strainId/attachments", func(c *gin.Context) {
		listAttachments(c, store)
	})
	g.POST("/strains/:strainId/attachments", func(c *gin.Context) {
		createAttachment(c, store)
	})
	g.GET("/attachments/:attachmentId", func(c *gin.Context) {
		getAttachment(c, store)
	})
	g.DELETE("/attachments/:attachmentId", func(c *gin.Context) {
		deleteAttachment(c, store)
	})
}

func listStrains(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}

	query := registrystore.StrainQuery{
		Search:          c.Query("search"),
		IncludeArchived: c.Query("includeArchived") == "true",
		SortBy:          c.Query("sortBy"),
		SortDesc:        c.Query("sortDesc") == "true",
		AfterCursor:     queryPtr(c, "afterCursor"),
		Limit:           queryInt(c, "limit", 0),
	}
	if v := c.Query("status"); v != "" {
		status := model.StrainStatus(v)
		query.Status = &status
	}
	query.OrganismID = queryUintPtr(c, "organismId")
	query.LocationID = queryUintPtr(c, "locationId")
	query.PlasmidID = queryUintPtr(c, "plasmidId")

	page, err := store.ListStrains(c.Request.Context(), userID, databaseID, query)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// searchStrains accepts the full query as a JSON body, including custom field
// filters which do not fit in query parameters.
func searchStrains(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}

	var req struct {
		Search          string                      `json:"search"`
		Status          *model.StrainStatus         `json:"status"`
		IncludeArchived bool                        `json:"includeArchived"`
		OrganismID      *uint                       `json:"organismId"`
		LocationID      *uint                       `json:"locationId"`
		PlasmidID       *uint                       `json:"plasmidId"`
		CustomFilters   []registrystore.CustomFilter `json:"customFilters"`
		SortBy          string                      `json:"sortBy"`
		SortDesc        bool                        `json:"sortDesc"`
		AfterCursor     *string                     `json:"afterCursor"`
		Limit           int                         `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	page, err := store.ListStrains(c.Request.Context(), userID, databaseID, registrystore.StrainQuery{
		Search:          req.Search,
		Status:          req.Status,
		IncludeArchived: req.IncludeArchived,
		OrganismID:      req.OrganismID,
		LocationID:      req.LocationID,
		PlasmidID:       req.PlasmidID,
		CustomFilters:   req.CustomFilters,
		SortBy:          req.SortBy,
		SortDesc:        req.SortDesc,
		AfterCursor:     req.AfterCursor,
		Limit:           req.Limit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func createStrain(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	var req registrystore.CreateStrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	detail, err := store.CreateStrain(c.Request.Context(), userID, databaseID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

func getStrain(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	detail, err := store.GetStrain(c.Request.Context(), userID, strainID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func updateStrain(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	var req registrystore.UpdateStrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	detail, err := store.UpdateStrain(c.Request.Context(), userID, strainID, req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func deleteStrain(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	if err := store.DeleteStrain(c.Request.Context(), userID, strainID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func archiveStrain(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	detail, err := store.ArchiveStrain(c.Request.Context(), userID, strainID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func unarchiveStrain(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	detail, err := store.UnarchiveStrain(c.Request.Context(), userID, strainID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func newStrainForm(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}
	specs, err := store.BuildStrainForm(c.Request.Context(), userID, databaseID, nil)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": specs})
}

func editStrainForm(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	detail, err := store.GetStrain(c.Request.Context(), userID, strainID)
	if err != nil {
		handleError(c, err)
		return
	}
	specs, err := store.BuildStrainForm(c.Request.Context(), userID, detail.DatabaseID, &strainID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": specs})
}

func listVersions(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	versions, err := store.ListStrainVersions(c.Request.Context(), userID, strainID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": versions})
}

func getVersion(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "version not found"})
		return
	}
	version, err := store.GetStrainVersion(c.Request.Context(), userID, strainID, number)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func diffVersions(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	from := queryInt(c, "from", 0)
	to := queryInt(c, "to", 0)
	if from <= 0 || to <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "from and to version numbers are required"})
		return
	}
	changes, err := store.DiffStrainVersions(c.Request.Context(), userID, strainID, from, to)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func listAttachments(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	attachments, err := store.ListAttachments(c.Request.Context(), userID, strainID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": attachments})
}

func createAttachment(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	strainID, ok := pathUint(c, "strainId")
	if !ok {
		return
	}
	var req struct {
		Filename    string `json:"filename" binding:"required"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	attachment, err := store.CreateAttachment(c.Request.Context(), userID, strainID, model.Attachment{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, attachment)
}

func getAttachment(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	attachmentID, err := uuid.Parse(c.Param("attachmentId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "attachment not found"})
		return
	}
	attachment, err := store.GetAttachment(c.Request.Context(), userID, attachmentID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, attachment)
}

func deleteAttachment(c *gin.Context, store registrystore.InventoryStore) {
	userID := security.GetUserID(c)
	attachmentID, err := uuid.Parse(c.Param("attachmentId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": "attachment not found"})
		return
	}
	if err := store.DeleteAttachment(c.Request.Context(), userID, attachmentID); err != nil {
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

func queryPtr(c *gin.Context, key string) *string {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func queryUintPtr(c *gin.Context, key string) *uint {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil
	}
	u := uint(parsed)
	return &u
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
