package models

import (
	"time"

	"github.com/google/uuid"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
)

// DeviceSyncStateModel is the persistence model for per-device sync status
// rows. One row per (organization, device, user).
type DeviceSyncStateModel struct {
	BaseModel
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_device_state_key,priority:1"`
	DeviceID       string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_device_state_key,priority:2"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_device_state_key,priority:3"`

	IsOnline     bool `gorm:"not null;default:false"`
	LastOnlineAt *time.Time

	LastFullSyncAt        *time.Time
	LastIncrementalSyncAt *time.Time

	PendingOperations int64 `gorm:"not null;default:0"`
	FailedOperations  int64 `gorm:"not null;default:0"`
	ConflictCount     int64 `gorm:"not null;default:0"`

	CacheSize      int64 `gorm:"not null;default:0"`
	CachedEntities int64 `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (DeviceSyncStateModel) TableName() string {
	return "device_sync_states"
}

// ToDomain converts the persistence model to a domain DeviceSyncState
func (m *DeviceSyncStateModel) ToDomain() *devicedomain.DeviceSyncState {
	return &devicedomain.DeviceSyncState{
		BaseEntity:            m.BaseModel.ToDomain(),
		OrganizationID:        m.OrganizationID,
		DeviceID:              m.DeviceID,
		UserID:                m.UserID,
		IsOnline:              m.IsOnline,
		LastOnlineAt:          m.LastOnlineAt,
		LastFullSyncAt:        m.LastFullSyncAt,
		LastIncrementalSyncAt: m.LastIncrementalSyncAt,
		PendingOperations:     m.PendingOperations,
		FailedOperations:      m.FailedOperations,
		ConflictCount:         m.ConflictCount,
		CacheSize:             m.CacheSize,
		CachedEntities:        m.CachedEntities,
	}
}

// FromDomain populates the persistence model from a domain DeviceSyncState
func (m *DeviceSyncStateModel) FromDomain(s *devicedomain.DeviceSyncState) {
	m.FromDomainBaseEntity(s.BaseEntity)
	m.OrganizationID = s.OrganizationID
	m.DeviceID = s.DeviceID
	m.UserID = s.UserID
	m.IsOnline = s.IsOnline
	m.LastOnlineAt = s.LastOnlineAt
	m.LastFullSyncAt = s.LastFullSyncAt
	m.LastIncrementalSyncAt = s.LastIncrementalSyncAt
	m.PendingOperations = s.PendingOperations
	m.FailedOperations = s.FailedOperations
	m.ConflictCount = s.ConflictCount
	m.CacheSize = s.CacheSize
	m.CachedEntities = s.CachedEntities
}

// DeviceSyncStateModelFromDomain creates a new persistence model from a domain DeviceSyncState
func DeviceSyncStateModelFromDomain(s *devicedomain.DeviceSyncState) *DeviceSyncStateModel {
	m := &DeviceSyncStateModel{}
	m.FromDomain(s)
	return m
}
