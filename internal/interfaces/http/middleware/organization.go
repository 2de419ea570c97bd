package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Context keys for organization identification
const (
	OrganizationIDKey     = "organization_id"
	OrganizationHeaderKey = "X-Organization-ID"
)

// OrganizationMiddlewareConfig holds configuration for organization middleware
type OrganizationMiddlewareConfig struct {
	// HeaderEnabled enables X-Organization-ID header extraction
	HeaderEnabled bool
	// JWTEnabled enables JWT claim extraction (requires JWT middleware to run first)
	JWTEnabled bool
	// SkipPaths are paths that don't require organization context (e.g. health check)
	SkipPaths []string
	// Required determines if organization context is mandatory
	Required bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultOrganizationConfig returns default organization middleware configuration
func DefaultOrganizationConfig() OrganizationMiddlewareConfig {
	return OrganizationMiddlewareConfig{
		HeaderEnabled: true,
		JWTEnabled:    true,
		SkipPaths:     []string{"/health", "/healthz", "/ready", "/api/v1/health"},
		Required:      true,
		Logger:        nil,
	}
}

// OrganizationMiddleware extracts the clinic organization from the request.
// Extraction order: JWT claims > X-Organization-ID header.
func OrganizationMiddleware() gin.HandlerFunc {
	return OrganizationMiddlewareWithConfig(DefaultOrganizationConfig())
}

// OrganizationMiddlewareWithConfig returns organization middleware with custom configuration
func OrganizationMiddlewareWithConfig(cfg OrganizationMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		var organizationID string
		var extractionMethod string

		// Priority 1: JWT claims (if JWT middleware has already run)
		if cfg.JWTEnabled {
			if id := GetJWTOrganizationID(c); id != "" {
				organizationID = id
				extractionMethod = "jwt"
			}
		}

		// Priority 2: X-Organization-ID header
		if organizationID == "" && cfg.HeaderEnabled {
			if headerID := c.GetHeader(OrganizationHeaderKey); headerID != "" {
				organizationID = headerID
				extractionMethod = "header"
			}
		}

		if organizationID != "" {
			if _, err := uuid.Parse(organizationID); err != nil {
				respondUnauthorized(c, "Invalid organization ID format")
				return
			}
		}

		if organizationID == "" && cfg.Required {
			respondUnauthorized(c, "Organization identification required")
			return
		}

		if organizationID != "" {
			c.Set(OrganizationIDKey, organizationID)

			// Set in request context for service layer access
			ctx := c.Request.Context()
			log := logger.FromContext(ctx)
			ctx, _ = logger.WithOrganizationID(ctx, log, organizationID)
			c.Request = c.Request.WithContext(ctx)

			if cfg.Logger != nil {
				cfg.Logger.Debug("Organization identified",
					zap.String("organization_id", organizationID),
					zap.String("method", extractionMethod),
				)
			}
		}

		c.Next()
	}
}

// respondUnauthorized sends an unauthorized response
func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// GetOrganizationID retrieves the organization ID from gin.Context
func GetOrganizationID(c *gin.Context) string {
	if organizationID, exists := c.Get(OrganizationIDKey); exists {
		if id, ok := organizationID.(string); ok {
			return id
		}
	}
	return ""
}

// GetOrganizationUUID retrieves the organization ID as UUID from gin.Context
func GetOrganizationUUID(c *gin.Context) (uuid.UUID, error) {
	organizationID := GetOrganizationID(c)
	if organizationID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(organizationID)
}

// OptionalOrganizationMiddleware creates middleware that doesn't require an organization
func OptionalOrganizationMiddleware() gin.HandlerFunc {
	cfg := DefaultOrganizationConfig()
	cfg.Required = false
	return OrganizationMiddlewareWithConfig(cfg)
}
