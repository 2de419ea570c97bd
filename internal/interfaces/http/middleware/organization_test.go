package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func organizationTestRouter(cfg OrganizationMiddlewareConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OrganizationMiddlewareWithConfig(cfg))
	r.GET("/data", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"organization_id": GetOrganizationID(c)})
	})
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestOrganizationMiddleware(t *testing.T) {
	t.Run("extracts organization from header", func(t *testing.T) {
		router := organizationTestRouter(DefaultOrganizationConfig())
		organizationID := uuid.New().String()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set(OrganizationHeaderKey, organizationID)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), organizationID)
	})

	t.Run("prefers JWT claim over header", func(t *testing.T) {
		jwtOrgID := uuid.New().String()
		headerOrgID := uuid.New().String()

		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(func(c *gin.Context) {
			c.Set(JWTOrganizationIDKey, jwtOrgID)
		})
		r.Use(OrganizationMiddlewareWithConfig(DefaultOrganizationConfig()))
		r.GET("/data", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"organization_id": GetOrganizationID(c)})
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set(OrganizationHeaderKey, headerOrgID)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), jwtOrgID)
	})

	t.Run("rejects missing organization when required", func(t *testing.T) {
		router := organizationTestRouter(DefaultOrganizationConfig())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects malformed organization id", func(t *testing.T) {
		router := organizationTestRouter(DefaultOrganizationConfig())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set(OrganizationHeaderKey, "not-a-uuid")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("allows missing organization when optional", func(t *testing.T) {
		cfg := DefaultOrganizationConfig()
		cfg.Required = false
		router := organizationTestRouter(cfg)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/data", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("skips configured paths", func(t *testing.T) {
		router := organizationTestRouter(DefaultOrganizationConfig())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
