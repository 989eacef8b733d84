package serve

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestIsUploadRequest(t *testing.T) {
	t.Run("multipart csv import is an upload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/databases/7/import", strings.NewReader("abcdef"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=abc123")
		require.True(t, isUploadRequest(req))
	})

	t.Run("multipart snapshot restore is an upload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/organizations/3/restore", strings.NewReader("abcdef"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=abc123")
		require.True(t, isUploadRequest(req))
	})

	t.Run("json strain create is not an upload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/databases/7/strains", strings.NewReader(`{"strainId":"S-1"}`))
		req.Header.Set("Content-Type", "application/json")
		require.False(t, isUploadRequest(req))
	})

	t.Run("json body on the import path is not an upload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/databases/7/import", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		require.False(t, isUploadRequest(req))
	})
}

func TestMaxBodySizeMiddleware_SkipsForMultipartImport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/v1/databases/:databaseId/import", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/databases/7/import", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=abc123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "10", rec.Body.String())
}

func TestMaxBodySizeMiddleware_EnforcesForJSONEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/v1/databases/:databaseId/strains", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/databases/7/strains", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}
