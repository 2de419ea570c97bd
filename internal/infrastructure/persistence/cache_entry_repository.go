package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	cachedomain "github.com/medpoint/backend/internal/domain/cache"
	"github.com/medpoint/backend/internal/domain/shared"
	"github.com/medpoint/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCacheEntryRepository implements CacheEntryRepository using GORM
type GormCacheEntryRepository struct {
	db *gorm.DB
}

// NewGormCacheEntryRepository creates a new GormCacheEntryRepository
func NewGormCacheEntryRepository(db *gorm.DB) *GormCacheEntryRepository {
	return &GormCacheEntryRepository{db: db}
}

// Upsert inserts or replaces the entry for its key
func (r *GormCacheEntryRepository) Upsert(ctx context.Context, entry *cachedomain.CacheEntry) error {
	model := models.CacheEntryModelFromDomain(entry)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"}, {Name: "device_id"},
				{Name: "entity_type"}, {Name: "entity_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"data", "version", "cached_at", "expires_at",
			}),
		}).
		Create(model).Error
}

// Find returns the entry for the given key regardless of expiry
func (r *GormCacheEntryRepository) Find(ctx context.Context, organizationID uuid.UUID, deviceID, entityType string, entityID uuid.UUID) (*cachedomain.CacheEntry, error) {
	var model models.CacheEntryModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND device_id = ? AND entity_type = ? AND entity_id = ?",
			organizationID, deviceID, entityType, entityID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByDevice returns all entries for one device, newest first
func (r *GormCacheEntryRepository) FindByDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) ([]cachedomain.CacheEntry, error) {
	var entryModels []models.CacheEntryModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND device_id = ?", organizationID, deviceID).
		Order("cached_at DESC").
		Find(&entryModels).Error; err != nil {
		return nil, err
	}

	entries := make([]cachedomain.CacheEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = *entryModels[i].ToDomain()
	}
	return entries, nil
}

// DeleteExpired removes entries whose deadline is at or before now
func (r *GormCacheEntryRepository) DeleteExpired(ctx context.Context, organizationID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND expires_at <= ?", organizationID, now).
		Delete(&models.CacheEntryModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteByDevice wipes all entries for one device
func (r *GormCacheEntryRepository) DeleteByDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND device_id = ?", organizationID, deviceID).
		Delete(&models.CacheEntryModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StatsForDevice returns entry count and accumulated payload size
func (r *GormCacheEntryRepository) StatsForDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) (cachedomain.CacheStats, error) {
	var result struct {
		Entries   int64
		TotalSize int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CacheEntryModel{}).
		Select("COUNT(*) as entries, COALESCE(SUM(LENGTH(data)), 0) as total_size").
		Where("organization_id = ? AND device_id = ?", organizationID, deviceID).
		Scan(&result).Error; err != nil {
		return cachedomain.CacheStats{}, err
	}
	return cachedomain.CacheStats{Entries: result.Entries, TotalSize: result.TotalSize}, nil
}

// Ensure GormCacheEntryRepository implements CacheEntryRepository
var _ cachedomain.CacheEntryRepository = (*GormCacheEntryRepository)(nil)
