package cache

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CacheEntry is a device-scoped, TTL-bound snapshot of one entity, kept so
// the client stays functional while offline. Entries are disposable derived
// data: dropping them loses nothing that a full sync cannot rebuild.
type CacheEntry struct {
	OrganizationID uuid.UUID
	DeviceID       string
	EntityType     string
	EntityID       uuid.UUID

	Data    json.RawMessage
	Version int64

	CachedAt  time.Time
	ExpiresAt time.Time
}

// NewCacheEntry creates an entry expiring ttl from now
func NewCacheEntry(organizationID uuid.UUID, deviceID, entityType string, entityID uuid.UUID, data json.RawMessage, version int64, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		OrganizationID: organizationID,
		DeviceID:       deviceID,
		EntityType:     entityType,
		EntityID:       entityID,
		Data:           data,
		Version:        version,
		CachedAt:       now,
		ExpiresAt:      now.Add(ttl),
	}
}

// Refresh replaces the snapshot and restarts the TTL window
func (e *CacheEntry) Refresh(data json.RawMessage, version int64, ttl time.Duration) {
	now := time.Now()
	e.Data = data
	e.Version = version
	e.CachedAt = now
	e.ExpiresAt = now.Add(ttl)
}

// IsExpired reports whether the entry must be treated as a miss at the given
// instant. Expired entries are left in place for the sweeper; the read path
// never writes.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTLPolicy maps entity types to cache lifetimes. Fast-changing types
// (schedules) get short TTLs, slow-changing types (patient demographics)
// longer ones; unknown types fall back to Default.
type TTLPolicy struct {
	Default time.Duration
	PerType map[string]time.Duration
}

// NewTTLPolicy creates a policy with the given default lifetime
func NewTTLPolicy(defaultTTL time.Duration) TTLPolicy {
	return TTLPolicy{
		Default: defaultTTL,
		PerType: make(map[string]time.Duration),
	}
}

// TTL returns the lifetime for the given entity type
func (p TTLPolicy) TTL(entityType string) time.Duration {
	if ttl, ok := p.PerType[entityType]; ok {
		return ttl
	}
	return p.Default
}
