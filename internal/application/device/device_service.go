package device

import (
	"context"
	"time"

	"github.com/google/uuid"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
	"go.uber.org/zap"
)

// DeviceStateResponse represents a device's sync status in API responses
type DeviceStateResponse struct {
	DeviceID string    `json:"device_id"`
	UserID   uuid.UUID `json:"user_id"`

	IsOnline     bool       `json:"is_online"`
	LastOnlineAt *time.Time `json:"last_online_at,omitempty"`

	LastFullSyncAt        *time.Time `json:"last_full_sync_at,omitempty"`
	LastIncrementalSyncAt *time.Time `json:"last_incremental_sync_at,omitempty"`

	PendingOperations int64 `json:"pending_operations"`
	FailedOperations  int64 `json:"failed_operations"`
	ConflictCount     int64 `json:"conflict_count"`

	CacheSize      int64 `json:"cache_size"`
	CachedEntities int64 `json:"cached_entities"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceService exposes the per-device sync status projections
type DeviceService struct {
	deviceRepo devicedomain.DeviceSyncStateRepository
	logger     *zap.Logger
}

// NewDeviceService creates a new DeviceService
func NewDeviceService(deviceRepo devicedomain.DeviceSyncStateRepository, logger *zap.Logger) *DeviceService {
	return &DeviceService{deviceRepo: deviceRepo, logger: logger}
}

// GetDeviceState returns the status of one device
func (s *DeviceService) GetDeviceState(ctx context.Context, organizationID uuid.UUID, deviceID string) (*DeviceStateResponse, error) {
	state, err := s.deviceRepo.Find(ctx, organizationID, deviceID)
	if err != nil {
		return nil, err
	}
	response := toDeviceStateResponse(state)
	return &response, nil
}

// GetAllDeviceStates returns every device the organization has seen, most
// recently active first
func (s *DeviceService) GetAllDeviceStates(ctx context.Context, organizationID uuid.UUID) ([]DeviceStateResponse, error) {
	states, err := s.deviceRepo.FindAll(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	responses := make([]DeviceStateResponse, len(states))
	for i := range states {
		responses[i] = toDeviceStateResponse(&states[i])
	}
	return responses, nil
}

// MarkOffline flags a device as disconnected
func (s *DeviceService) MarkOffline(ctx context.Context, organizationID uuid.UUID, deviceID string) error {
	state, err := s.deviceRepo.Find(ctx, organizationID, deviceID)
	if err != nil {
		return err
	}

	state.MarkOffline()
	if err := s.deviceRepo.Upsert(ctx, state); err != nil {
		return err
	}

	s.logger.Info("device marked offline",
		zap.String("device_id", deviceID),
		zap.Stringer("organization_id", organizationID))
	return nil
}

func toDeviceStateResponse(state *devicedomain.DeviceSyncState) DeviceStateResponse {
	return DeviceStateResponse{
		DeviceID:              state.DeviceID,
		UserID:                state.UserID,
		IsOnline:              state.IsOnline,
		LastOnlineAt:          state.LastOnlineAt,
		LastFullSyncAt:        state.LastFullSyncAt,
		LastIncrementalSyncAt: state.LastIncrementalSyncAt,
		PendingOperations:     state.PendingOperations,
		FailedOperations:      state.FailedOperations,
		ConflictCount:         state.ConflictCount,
		CacheSize:             state.CacheSize,
		CachedEntities:        state.CachedEntities,
		UpdatedAt:             state.UpdatedAt,
	}
}
