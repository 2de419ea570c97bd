package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	cachedomain "github.com/medpoint/backend/internal/domain/cache"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
	"github.com/medpoint/backend/internal/domain/shared"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"go.uber.org/zap"
)

// FullSyncOptions tunes the full-sync bootstrap
type FullSyncOptions struct {
	// Horizon bounds how far back records are pulled into the cache
	Horizon time.Duration
	// PerTypeLimit caps records cached per entity type
	PerTypeLimit int
}

// DefaultFullSyncOptions returns the bootstrap defaults
func DefaultFullSyncOptions() FullSyncOptions {
	return FullSyncOptions{
		Horizon:      90 * 24 * time.Hour,
		PerTypeLimit: 1000,
	}
}

func (o FullSyncOptions) withDefaults() FullSyncOptions {
	defaults := DefaultFullSyncOptions()
	if o.Horizon <= 0 {
		o.Horizon = defaults.Horizon
	}
	if o.PerTypeLimit <= 0 {
		o.PerTypeLimit = defaults.PerTypeLimit
	}
	return o
}

// FullSyncService rebuilds a device's cache from the record store. Used when
// a device first connects or after its cache has been wiped; the device then
// switches to incremental pulls.
type FullSyncService struct {
	recordRepo syncdomain.EntityRecordRepository
	cacheRepo  cachedomain.CacheEntryRepository
	deviceRepo devicedomain.DeviceSyncStateRepository
	ttlPolicy  cachedomain.TTLPolicy
	logger     *zap.Logger
	opts       FullSyncOptions
}

// NewFullSyncService creates a new FullSyncService
func NewFullSyncService(
	recordRepo syncdomain.EntityRecordRepository,
	cacheRepo cachedomain.CacheEntryRepository,
	deviceRepo devicedomain.DeviceSyncStateRepository,
	ttlPolicy cachedomain.TTLPolicy,
	logger *zap.Logger,
	opts FullSyncOptions,
) *FullSyncService {
	return &FullSyncService{
		recordRepo: recordRepo,
		cacheRepo:  cacheRepo,
		deviceRepo: deviceRepo,
		ttlPolicy:  ttlPolicy,
		logger:     logger,
		opts:       opts.withDefaults(),
	}
}

// FullSync wipes the device's cache and repopulates it with recent live
// records of the requested entity types.
func (s *FullSyncService) FullSync(ctx context.Context, organizationID, userID uuid.UUID, req FullSyncRequest) (*FullSyncResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > s.opts.PerTypeLimit {
		limit = s.opts.PerTypeLimit
	}
	since := time.Now().Add(-s.opts.Horizon)

	if _, err := s.cacheRepo.DeleteByDevice(ctx, organizationID, req.DeviceID); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(req.EntityTypes))
	for _, entityType := range req.EntityTypes {
		records, err := s.recordRepo.FindRecentByType(ctx, organizationID, entityType, since, limit)
		if err != nil {
			return nil, err
		}

		ttl := s.ttlPolicy.TTL(entityType)
		for i := range records {
			record := &records[i]
			entry := cachedomain.NewCacheEntry(organizationID, req.DeviceID, entityType,
				record.EntityID, record.Data, record.Version, ttl)
			if err := s.cacheRepo.Upsert(ctx, entry); err != nil {
				return nil, err
			}
		}
		counts[entityType] = len(records)
	}

	stats, err := s.cacheRepo.StatsForDevice(ctx, organizationID, req.DeviceID)
	if err != nil {
		return nil, err
	}

	s.recordFullSync(ctx, organizationID, req.DeviceID, userID, stats)

	s.logger.Info("full sync completed",
		zap.String("device_id", req.DeviceID),
		zap.Int64("cached", stats.Entries),
		zap.Int64("cache_size", stats.TotalSize))

	return &FullSyncResponse{
		DeviceID:    req.DeviceID,
		ServerTime:  time.Now(),
		EntityCount: counts,
		Cached:      stats.Entries,
		CacheSize:   stats.TotalSize,
	}, nil
}

func (s *FullSyncService) recordFullSync(ctx context.Context, organizationID uuid.UUID, deviceID string, userID uuid.UUID, stats cachedomain.CacheStats) {
	state, err := s.deviceRepo.Find(ctx, organizationID, deviceID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("device state lookup failed",
				zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		state = devicedomain.NewDeviceSyncState(organizationID, deviceID, userID)
	}

	state.TouchOnline()
	state.RecordFullSync()
	state.UpdateCacheStats(stats.Entries, stats.TotalSize)

	if err := s.deviceRepo.Upsert(ctx, state); err != nil {
		s.logger.Warn("device state upsert failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}
}
