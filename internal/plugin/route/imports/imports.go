package imports

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/helixmapr/helixmapr/internal/config"
	"github.com/helixmapr/helixmapr/internal/importer"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
)

// MountRoutes mounts the CSV import endpoint. The request is multipart: a
// "file" part holding the CSV and a "mapping" part holding a JSON object
// mapping CSV column names to standard field names or "custom:<name>" keys.
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, cfg *config.Config, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.POST("/databases/:databaseId/import", func(c *gin.Context) {
		importCSV(c, store, cfg)
	})
	g.POST("/databases/:databaseId/import/preview", func(c *gin.Context) {
		previewCSV(c, cfg)
	})
}

func importCSV(c *gin.Context, store registrystore.InventoryStore, cfg *config.Config) {
	userID := security.GetUserID(c)
	databaseID, ok := pathUint(c, "databaseId")
	if !ok {
		return
	}

	rows, ok := mappedRowsFromRequest(c, cfg)
	if !ok {
		return
	}

	result, err := store.ImportStrains(c.Request.Context(), userID, databaseID, rows)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// previewCSV parses the upload and echoes the headers and the first rows so a
// client can build the column mapping before committing the import.
func previewCSV(c *gin.Context, cfg *config.Config) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "file part is required"})
		return
	}
	defer file.Close()

	headers, rows, err := importer.ParseCSV(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	if cfg != nil && cfg.ImportMaxRows > 0 && len(rows) > cfg.ImportMaxRows {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "validation_error",
			"error": "import exceeds the configured row limit",
		})
		return
	}

	sample := rows
	if len(sample) > 10 {
		sample = sample[:10]
	}
	c.JSON(http.StatusOK, gin.H{
		"headers":  headers,
		"rowCount": len(rows),
		"sample":   sample,
	})
}

func mappedRowsFromRequest(c *gin.Context, cfg *config.Config) ([]map[string]string, bool) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "file part is required"})
		return nil, false
	}
	defer file.Close()

	mappingRaw := c.PostForm("mapping")
	if mappingRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "mapping part is required"})
		return nil, false
	}
	var mapping map[string]string
	if err := json.Unmarshal([]byte(mappingRaw), &mapping); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "mapping must be a JSON object of column to field"})
		return nil, false
	}

	_, rows, err := importer.ParseCSV(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return nil, false
	}
	if cfg != nil && cfg.ImportMaxRows > 0 && len(rows) > cfg.ImportMaxRows {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "validation_error",
			"error": "import exceeds the configured row limit",
		})
		return nil, false
	}

	return importer.BuildMappedRows(rows, mapping), true
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
