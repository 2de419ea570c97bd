package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CacheStats summarizes one device's cache footprint
type CacheStats struct {
	Entries   int64
	TotalSize int64
}

// CacheEntryRepository defines persistence operations for the cache store
type CacheEntryRepository interface {
	// Upsert inserts or replaces the entry for its key
	Upsert(ctx context.Context, entry *CacheEntry) error
	// Find returns the entry for the given key regardless of expiry;
	// shared.ErrNotFound when absent. Expiry filtering is the caller's job.
	Find(ctx context.Context, organizationID uuid.UUID, deviceID, entityType string, entityID uuid.UUID) (*CacheEntry, error)
	// FindByDevice returns all entries for one device, newest first
	FindByDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) ([]CacheEntry, error)
	// DeleteExpired removes entries with ExpiresAt at or before now for the
	// organization and returns the number of rows removed
	DeleteExpired(ctx context.Context, organizationID uuid.UUID, now time.Time) (int64, error)
	// DeleteByDevice wipes all entries for one device
	DeleteByDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) (int64, error)
	// StatsForDevice returns entry count and accumulated payload size
	StatsForDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) (CacheStats, error)
}
