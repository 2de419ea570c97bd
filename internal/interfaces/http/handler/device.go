package handler

import (
	"github.com/gin-gonic/gin"
	deviceapp "github.com/medpoint/backend/internal/application/device"
)

// DeviceHandler handles device sync state API endpoints
type DeviceHandler struct {
	BaseHandler
	deviceService *deviceapp.DeviceService
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(deviceService *deviceapp.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

// List godoc
// @ID           listDeviceStates
// @Summary      List device sync states
// @Description  List sync state for every device known to the organization.
// @Tags         devices
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Success      200 {object} APIResponse[[]deviceapp.DeviceStateResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /devices [get]
func (h *DeviceHandler) List(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	states, err := h.deviceService.GetAllDeviceStates(c.Request.Context(), organizationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, states)
}

// Get godoc
// @ID           getDeviceState
// @Summary      Get a device's sync state
// @Tags         devices
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        deviceId path string true "Device identifier"
// @Success      200 {object} APIResponse[deviceapp.DeviceStateResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /devices/{deviceId} [get]
func (h *DeviceHandler) Get(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	state, err := h.deviceService.GetDeviceState(c.Request.Context(), organizationID, c.Param("deviceId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, state)
}

// MarkOffline godoc
// @ID           markDeviceOffline
// @Summary      Mark a device offline
// @Description  Mark a device as offline without waiting for its heartbeat to lapse.
// @Tags         devices
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        deviceId path string true "Device identifier"
// @Success      204
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /devices/{deviceId}/offline [post]
func (h *DeviceHandler) MarkOffline(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	if err := h.deviceService.MarkOffline(c.Request.Context(), organizationID, c.Param("deviceId")); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}
