package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	cacheapp "github.com/medpoint/backend/internal/application/cache"
)

// CacheHandler handles device cache API endpoints
type CacheHandler struct {
	BaseHandler
	cacheService *cacheapp.CacheService
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(cacheService *cacheapp.CacheService) *CacheHandler {
	return &CacheHandler{
		cacheService: cacheService,
	}
}

// CacheEntity godoc
// @ID           cacheEntity
// @Summary      Store an entity snapshot in a device cache
// @Description  Store or refresh one entity snapshot in a device's cache. The entry TTL restarts on every write.
// @Tags         cache
// @Accept       json
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        request body cacheapp.CacheEntityRequest true "Cache entry"
// @Success      200 {object} APIResponse[cacheapp.CacheEntryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /cache/entities [put]
func (h *CacheHandler) CacheEntity(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	var req cacheapp.CacheEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.cacheService.CacheEntity(c.Request.Context(), organizationID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetCachedEntity godoc
// @ID           getCachedEntity
// @Summary      Read a cached entity snapshot
// @Description  Read one entity snapshot from a device's cache. Expired entries are reported as not found.
// @Tags         cache
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        device_id query string true "Device identifier"
// @Param        type path string true "Entity type"
// @Param        id path string true "Entity ID"
// @Success      200 {object} APIResponse[cacheapp.CacheEntryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /cache/entities/{type}/{id} [get]
func (h *CacheHandler) GetCachedEntity(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	deviceID := c.Query("device_id")
	if deviceID == "" {
		h.BadRequest(c, "device_id is required")
		return
	}

	entityType := c.Param("type")
	entityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid entity ID")
		return
	}

	resp, err := h.cacheService.GetCachedEntity(c.Request.Context(), organizationID, deviceID, entityType, entityID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetDeviceCache godoc
// @ID           getDeviceCache
// @Summary      List a device's cache
// @Description  List all cache entries for a device with the total footprint in bytes.
// @Tags         cache
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        deviceId path string true "Device identifier"
// @Success      200 {object} APIResponse[cacheapp.DeviceCacheResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /cache/devices/{deviceId} [get]
func (h *CacheHandler) GetDeviceCache(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	resp, err := h.cacheService.GetDeviceCache(c.Request.Context(), organizationID, c.Param("deviceId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// ClearDeviceCache godoc
// @ID           clearDeviceCache
// @Summary      Clear a device's cache
// @Tags         cache
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        deviceId path string true "Device identifier"
// @Success      200 {object} APIResponse[cacheapp.ClearCacheResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /cache/devices/{deviceId} [delete]
func (h *CacheHandler) ClearDeviceCache(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	resp, err := h.cacheService.ClearDeviceCache(c.Request.Context(), organizationID, c.Param("deviceId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// SweepExpired godoc
// @ID           sweepExpiredCache
// @Summary      Remove expired cache entries
// @Description  Remove all expired cache entries for the organization. Also runs on a schedule when maintenance is enabled.
// @Tags         cache
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Success      200 {object} APIResponse[cacheapp.SweepResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /cache/sweep [post]
func (h *CacheHandler) SweepExpired(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	resp, err := h.cacheService.SweepExpired(c.Request.Context(), organizationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
