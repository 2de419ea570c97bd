package cache

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	cachedomain "github.com/medpoint/backend/internal/domain/cache"
)

// CacheEntityRequest stores or refreshes one entity snapshot for a device
type CacheEntityRequest struct {
	DeviceID   string          `json:"device_id" binding:"required,max=128"`
	EntityType string          `json:"entity_type" binding:"required,max=64"`
	EntityID   uuid.UUID       `json:"entity_id" binding:"required"`
	Data       json.RawMessage `json:"data" binding:"required"`
	Version    int64           `json:"version"`
}

// CacheEntryResponse represents a cache entry in API responses
type CacheEntryResponse struct {
	DeviceID   string          `json:"device_id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Data       json.RawMessage `json:"data"`
	Version    int64           `json:"version"`
	CachedAt   time.Time       `json:"cached_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Expired    bool            `json:"expired"`
}

// DeviceCacheResponse lists one device's cache with its footprint
type DeviceCacheResponse struct {
	DeviceID  string               `json:"device_id"`
	Entries   []CacheEntryResponse `json:"entries"`
	Count     int64                `json:"count"`
	TotalSize int64                `json:"total_size"`
}

// ClearCacheResponse reports a device cache wipe
type ClearCacheResponse struct {
	DeviceID string `json:"device_id"`
	Removed  int64  `json:"removed"`
}

// SweepResponse reports an expired-entry sweep
type SweepResponse struct {
	Removed int64 `json:"removed"`
}

// ToCacheEntryResponse maps a domain entry to its API shape
func ToCacheEntryResponse(entry *cachedomain.CacheEntry, now time.Time) CacheEntryResponse {
	return CacheEntryResponse{
		DeviceID:   entry.DeviceID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Data:       entry.Data,
		Version:    entry.Version,
		CachedAt:   entry.CachedAt,
		ExpiresAt:  entry.ExpiresAt,
		Expired:    entry.IsExpired(now),
	}
}
