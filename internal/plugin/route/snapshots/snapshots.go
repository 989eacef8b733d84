package snapshots

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/helixmapr/helixmapr/internal/config"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
	"github.com/helixmapr/helixmapr/internal/security"
	"github.com/helixmapr/helixmapr/internal/snapshot"
	"github.com/helixmapr/helixmapr/internal/tempfiles"
)

// MountRoutes mounts the organization snapshot export and restore endpoints.
func MountRoutes(r *gin.Engine, store registrystore.InventoryStore, cfg *config.Config, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)

	g.GET("/organizations/:orgId/export", func(c *gin.Context) {
		exportOrganization(c, store, cfg)
	})
	g.POST("/organizations/:orgId/restore", func(c *gin.Context) {
		restoreOrganization(c, store, cfg)
	})
}

func exportOrganization(c *gin.Context, store registrystore.InventoryStore, cfg *config.Config) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}

	doc, err := store.ExportOrganization(c.Request.Context(), userID, orgID)
	if err != nil {
		handleError(c, err)
		return
	}

	// Spool the archive to disk so a large organization does not pin the
	// whole zip in memory while the client downloads it.
	dir := ""
	if cfg != nil {
		dir = cfg.TempDir
	}
	f, err := tempfiles.Spool(dir, "org-snapshot-*.zip")
	if err != nil {
		log.Error("snapshot spool create failed", "org", orgID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	spool := tempfiles.NewDeleteOnClose(f)
	defer spool.Close()

	if err := snapshot.WriteArchive(f, doc); err != nil {
		log.Error("snapshot archive write failed", "org", orgID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	size, err := f.Seek(0, io.SeekCurrent)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		log.Error("snapshot spool rewind failed", "org", orgID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	filename := fmt.Sprintf("organization-%d-snapshot.zip", orgID)
	c.DataFromReader(http.StatusOK, size, "application/zip", spool, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}

func restoreOrganization(c *gin.Context, store registrystore.InventoryStore, cfg *config.Config) {
	userID := security.GetUserID(c)
	orgID, ok := pathUint(c, "orgId")
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "file part is required"})
		return
	}
	defer file.Close()

	maxSize := int64(0)
	if cfg != nil {
		maxSize = cfg.SnapshotMaxSize
	}
	if maxSize > 0 && header.Size > maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot exceeds the configured size limit"})
		return
	}

	reader := io.Reader(file)
	if maxSize > 0 {
		reader = io.LimitReader(file, maxSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": "failed to read snapshot upload"})
		return
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "snapshot exceeds the configured size limit"})
		return
	}

	doc, err := snapshot.ReadArchiveBytes(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}

	result, err := store.RestoreOrganization(c.Request.Context(), userID, orgID, doc)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
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
		c.JSON(http.StatusConflict, gin.H{"code": conflictCode(err), "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func conflictCode(err error) string {
	var conflict *registrystore.ConflictError
	if errors.As(err, &conflict) && conflict.Code != "" {
		return conflict.Code
	}
	return "conflict"
}
