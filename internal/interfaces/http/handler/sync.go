package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	syncapp "github.com/medpoint/backend/internal/application/sync"
)

// SyncHandler handles synchronization API endpoints
type SyncHandler struct {
	BaseHandler
	syncService     *syncapp.SyncService
	fullSyncService *syncapp.FullSyncService
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncService *syncapp.SyncService, fullSyncService *syncapp.FullSyncService) *SyncHandler {
	return &SyncHandler{
		syncService:     syncService,
		fullSyncService: fullSyncService,
	}
}

// Push godoc
// @ID           pushOperations
// @Summary      Push queued offline operations
// @Description  Submit a batch of operations queued on a device while offline. Each operation reports its own outcome; the batch never fails as a whole.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        request body syncapp.PushRequest true "Operation batch"
// @Success      200 {object} APIResponse[syncapp.PushResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/push [post]
func (h *SyncHandler) Push(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User ID is required")
		return
	}

	var req syncapp.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.syncService.Push(c.Request.Context(), organizationID, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// Pull godoc
// @ID           pullChanges
// @Summary      Pull changes since a watermark
// @Description  Fetch entity changes other devices have applied since the given timestamp. The response carries a server timestamp to use as the next watermark.
// @Tags         sync
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        device_id query string true "Device identifier"
// @Param        since query string false "RFC3339 watermark of the previous pull"
// @Param        entity_types query []string false "Entity types to include"
// @Param        limit query int false "Maximum changes to return (default 100, max 500)"
// @Success      200 {object} APIResponse[syncapp.PullResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/pull [get]
func (h *SyncHandler) Pull(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User ID is required")
		return
	}

	var req syncapp.PullRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.syncService.Pull(c.Request.Context(), organizationID, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// GetPendingOperations godoc
// @ID           getPendingOperations
// @Summary      List pending operations for a device
// @Tags         sync
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        device_id query string true "Device identifier"
// @Param        limit query int false "Maximum operations to return (default 100)"
// @Success      200 {object} APIResponse[[]syncapp.OperationResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/operations/pending [get]
func (h *SyncHandler) GetPendingOperations(c *gin.Context) {
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

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	operations, err := h.syncService.GetPendingOperations(c.Request.Context(), organizationID, deviceID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, operations)
}

// GetConflicts godoc
// @ID           getConflicts
// @Summary      List unresolved conflicts
// @Description  List conflicts awaiting manual resolution, optionally filtered by device.
// @Tags         sync
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        device_id query string false "Device identifier filter"
// @Success      200 {object} APIResponse[[]syncapp.ConflictResponse]
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/conflicts [get]
func (h *SyncHandler) GetConflicts(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	conflicts, err := h.syncService.GetConflicts(c.Request.Context(), organizationID, c.Query("device_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, conflicts)
}

// ResolveConflict godoc
// @ID           resolveConflict
// @Summary      Resolve a held conflict
// @Description  Settle a conflict held for manual resolution by choosing the client data, the server data, or supplying merged data.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        clientToken path string true "Client token of the conflicted operation"
// @Param        request body syncapp.ResolveConflictRequest true "Resolution choice"
// @Success      200 {object} APIResponse[syncapp.ConflictResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/conflicts/{clientToken}/resolve [post]
func (h *SyncHandler) ResolveConflict(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	resolvedBy, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User ID is required")
		return
	}

	clientToken := c.Param("clientToken")
	if clientToken == "" {
		h.BadRequest(c, "client token is required")
		return
	}

	var req syncapp.ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.syncService.ResolveConflict(c.Request.Context(), organizationID, clientToken, req, resolvedBy)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// FullSync godoc
// @ID           fullSync
// @Summary      Bootstrap a device cache
// @Description  Replace a device's cache with current snapshots of the requested entity types. Used for first sync and recovery after prolonged offline periods.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        request body syncapp.FullSyncRequest true "Full sync request"
// @Success      200 {object} APIResponse[syncapp.FullSyncResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/full [post]
func (h *SyncHandler) FullSync(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "User ID is required")
		return
	}

	var req syncapp.FullSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	resp, err := h.fullSyncService.FullSync(c.Request.Context(), organizationID, userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// RetryFailed godoc
// @ID           retryFailedOperations
// @Summary      Requeue failed operations
// @Description  Requeue failed operations that have remaining attempts. Operations at the attempt limit are skipped.
// @Tags         sync
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        max_attempts query int false "Attempt limit (default 5)"
// @Success      200 {object} APIResponse[syncapp.RetryResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/retry [post]
func (h *SyncHandler) RetryFailed(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	maxAttempts := 0
	if raw := c.Query("max_attempts"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.BadRequest(c, "max_attempts must be a positive integer")
			return
		}
		maxAttempts = parsed
	}

	resp, err := h.syncService.RetryFailed(c.Request.Context(), organizationID, maxAttempts)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// defaultCleanupRetentionDays applies when older_than_days is omitted
const defaultCleanupRetentionDays = 30

// CleanupCompleted godoc
// @ID           cleanupCompletedOperations
// @Summary      Remove old completed operations
// @Description  Delete completed operations older than the retention window.
// @Tags         sync
// @Produce      json
// @Param        X-Organization-ID header string false "Organization ID (optional for dev)"
// @Param        older_than_days query int false "Retention window in days (default 30)"
// @Success      200 {object} APIResponse[syncapp.CleanupResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /sync/cleanup [post]
func (h *SyncHandler) CleanupCompleted(c *gin.Context) {
	organizationID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Organization ID is required")
		return
	}

	olderThanDays := defaultCleanupRetentionDays
	if raw := c.Query("older_than_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.BadRequest(c, "older_than_days must be a positive integer")
			return
		}
		olderThanDays = parsed
	}

	resp, err := h.syncService.CleanupCompleted(c.Request.Context(), organizationID, olderThanDays)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}
