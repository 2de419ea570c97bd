package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	cachedomain "github.com/medpoint/backend/internal/domain/cache"
)

// CacheEntryModel is the persistence model for device cache entries.
// Rows are keyed by (organization, device, entity type, entity id); a push
// for the same key replaces the row in place.
type CacheEntryModel struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cache_entry_key,priority:1"`
	DeviceID       string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_cache_entry_key,priority:2"`
	EntityType     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_cache_entry_key,priority:3"`
	EntityID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cache_entry_key,priority:4"`

	Data    json.RawMessage `gorm:"type:jsonb"`
	Version int64           `gorm:"not null;default:0"`

	CachedAt  time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (CacheEntryModel) TableName() string {
	return "cache_entries"
}

// ToDomain converts the persistence model to a domain CacheEntry
func (m *CacheEntryModel) ToDomain() *cachedomain.CacheEntry {
	return &cachedomain.CacheEntry{
		OrganizationID: m.OrganizationID,
		DeviceID:       m.DeviceID,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		Data:           m.Data,
		Version:        m.Version,
		CachedAt:       m.CachedAt,
		ExpiresAt:      m.ExpiresAt,
	}
}

// FromDomain populates the persistence model from a domain CacheEntry
func (m *CacheEntryModel) FromDomain(e *cachedomain.CacheEntry) {
	m.OrganizationID = e.OrganizationID
	m.DeviceID = e.DeviceID
	m.EntityType = e.EntityType
	m.EntityID = e.EntityID
	m.Data = e.Data
	m.Version = e.Version
	m.CachedAt = e.CachedAt
	m.ExpiresAt = e.ExpiresAt
}

// CacheEntryModelFromDomain creates a new persistence model from a domain CacheEntry
func CacheEntryModelFromDomain(e *cachedomain.CacheEntry) *CacheEntryModel {
	m := &CacheEntryModel{}
	m.FromDomain(e)
	return m
}
