package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	cachedomain "github.com/medpoint/backend/internal/domain/cache"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
	"github.com/medpoint/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CacheService manages the device cache store. Reads treat expired entries
// as misses but never delete them; removal is the sweeper's job so the read
// path stays write-free.
type CacheService struct {
	cacheRepo  cachedomain.CacheEntryRepository
	deviceRepo devicedomain.DeviceSyncStateRepository
	ttlPolicy  cachedomain.TTLPolicy
	logger     *zap.Logger
}

// NewCacheService creates a new CacheService
func NewCacheService(
	cacheRepo cachedomain.CacheEntryRepository,
	deviceRepo devicedomain.DeviceSyncStateRepository,
	ttlPolicy cachedomain.TTLPolicy,
	logger *zap.Logger,
) *CacheService {
	return &CacheService{
		cacheRepo:  cacheRepo,
		deviceRepo: deviceRepo,
		ttlPolicy:  ttlPolicy,
		logger:     logger,
	}
}

// CacheEntity stores or refreshes one entity snapshot. The TTL comes from
// the per-type policy; a write for an existing key restarts the TTL window.
func (s *CacheService) CacheEntity(ctx context.Context, organizationID uuid.UUID, req CacheEntityRequest) (*CacheEntryResponse, error) {
	ttl := s.ttlPolicy.TTL(req.EntityType)
	entry := cachedomain.NewCacheEntry(organizationID, req.DeviceID, req.EntityType,
		req.EntityID, req.Data, req.Version, ttl)

	if err := s.cacheRepo.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	s.refreshCacheStats(ctx, organizationID, req.DeviceID)

	response := ToCacheEntryResponse(entry, time.Now())
	return &response, nil
}

// GetCachedEntity returns a live entry, or shared.ErrNotFound when the key
// is absent or the entry has expired.
func (s *CacheService) GetCachedEntity(ctx context.Context, organizationID uuid.UUID, deviceID, entityType string, entityID uuid.UUID) (*CacheEntryResponse, error) {
	entry, err := s.cacheRepo.Find(ctx, organizationID, deviceID, entityType, entityID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if entry.IsExpired(now) {
		return nil, shared.ErrNotFound
	}

	response := ToCacheEntryResponse(entry, now)
	return &response, nil
}

// GetDeviceCache lists everything a device holds, expired entries included
// and flagged, plus the device's cache footprint.
func (s *CacheService) GetDeviceCache(ctx context.Context, organizationID uuid.UUID, deviceID string) (*DeviceCacheResponse, error) {
	entries, err := s.cacheRepo.FindByDevice(ctx, organizationID, deviceID)
	if err != nil {
		return nil, err
	}
	stats, err := s.cacheRepo.StatsForDevice(ctx, organizationID, deviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	responses := make([]CacheEntryResponse, len(entries))
	for i := range entries {
		responses[i] = ToCacheEntryResponse(&entries[i], now)
	}

	return &DeviceCacheResponse{
		DeviceID:  deviceID,
		Entries:   responses,
		Count:     stats.Entries,
		TotalSize: stats.TotalSize,
	}, nil
}

// ClearDeviceCache wipes all entries for one device
func (s *CacheService) ClearDeviceCache(ctx context.Context, organizationID uuid.UUID, deviceID string) (*ClearCacheResponse, error) {
	removed, err := s.cacheRepo.DeleteByDevice(ctx, organizationID, deviceID)
	if err != nil {
		return nil, err
	}

	s.refreshCacheStats(ctx, organizationID, deviceID)

	return &ClearCacheResponse{DeviceID: deviceID, Removed: removed}, nil
}

// SweepExpired deletes every expired entry for the organization
func (s *CacheService) SweepExpired(ctx context.Context, organizationID uuid.UUID) (*SweepResponse, error) {
	removed, err := s.cacheRepo.DeleteExpired(ctx, organizationID, time.Now())
	if err != nil {
		return nil, err
	}

	if removed > 0 {
		s.logger.Info("expired cache entries swept",
			zap.Stringer("organization_id", organizationID),
			zap.Int64("removed", removed))
	}

	return &SweepResponse{Removed: removed}, nil
}

// refreshCacheStats pushes the device's current cache footprint into its
// state projection. Advisory; failures are logged and swallowed.
func (s *CacheService) refreshCacheStats(ctx context.Context, organizationID uuid.UUID, deviceID string) {
	stats, err := s.cacheRepo.StatsForDevice(ctx, organizationID, deviceID)
	if err != nil {
		s.logger.Warn("cache stats lookup failed",
			zap.String("device_id", deviceID), zap.Error(err))
		return
	}

	state, err := s.deviceRepo.Find(ctx, organizationID, deviceID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("device state lookup failed",
				zap.String("device_id", deviceID), zap.Error(err))
		}
		// no state row yet: the first sync interaction will create one
		return
	}

	state.UpdateCacheStats(stats.Entries, stats.TotalSize)
	if err := s.deviceRepo.Upsert(ctx, state); err != nil {
		s.logger.Warn("device state upsert failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}
}
