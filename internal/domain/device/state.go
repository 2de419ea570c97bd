package device

import (
	"time"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/domain/shared"
)

// DeviceSyncState is the status aggregate tracked per
// (device, user, organization). It is an observability projection derived
// from the queue and the cache store, never a source of truth; counters are
// last-write-wins under concurrent upserts.
type DeviceSyncState struct {
	shared.BaseEntity
	OrganizationID uuid.UUID
	DeviceID       string
	UserID         uuid.UUID

	IsOnline     bool
	LastOnlineAt *time.Time

	LastFullSyncAt        *time.Time
	LastIncrementalSyncAt *time.Time

	PendingOperations int64
	FailedOperations  int64
	ConflictCount     int64

	CacheSize      int64
	CachedEntities int64
}

// NewDeviceSyncState creates the state row on a device's first interaction
func NewDeviceSyncState(organizationID uuid.UUID, deviceID string, userID uuid.UUID) *DeviceSyncState {
	return &DeviceSyncState{
		BaseEntity:     shared.NewBaseEntity(),
		OrganizationID: organizationID,
		DeviceID:       deviceID,
		UserID:         userID,
	}
}

// TouchOnline marks the device online and stamps the contact time
func (s *DeviceSyncState) TouchOnline() {
	now := time.Now()
	s.IsOnline = true
	s.LastOnlineAt = &now
	s.UpdatedAt = now
}

// MarkOffline marks the device offline (disconnect or logout)
func (s *DeviceSyncState) MarkOffline() {
	s.IsOnline = false
	s.UpdatedAt = time.Now()
}

// RecordFullSync stamps a completed full-sync bootstrap
func (s *DeviceSyncState) RecordFullSync() {
	now := time.Now()
	s.LastFullSyncAt = &now
	s.UpdatedAt = now
}

// RecordIncrementalSync stamps a completed pull
func (s *DeviceSyncState) RecordIncrementalSync() {
	now := time.Now()
	s.LastIncrementalSyncAt = &now
	s.UpdatedAt = now
}

// UpdateQueueCounts overwrites the queue counters
func (s *DeviceSyncState) UpdateQueueCounts(pending, failed, conflicts int64) {
	s.PendingOperations = pending
	s.FailedOperations = failed
	s.ConflictCount = conflicts
	s.UpdatedAt = time.Now()
}

// UpdateCacheStats overwrites the cache counters
func (s *DeviceSyncState) UpdateCacheStats(entries, totalSize int64) {
	s.CachedEntities = entries
	s.CacheSize = totalSize
	s.UpdatedAt = time.Now()
}
