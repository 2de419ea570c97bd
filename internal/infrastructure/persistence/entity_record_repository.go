package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/domain/shared"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"github.com/medpoint/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormEntityRecordRepository implements EntityRecordRepository using GORM
type GormEntityRecordRepository struct {
	db *gorm.DB
}

// NewGormEntityRecordRepository creates a new GormEntityRecordRepository
func NewGormEntityRecordRepository(db *gorm.DB) *GormEntityRecordRepository {
	return &GormEntityRecordRepository{db: db}
}

// Find returns the record for the given key
func (r *GormEntityRecordRepository) Find(ctx context.Context, organizationID uuid.UUID, entityType string, entityID uuid.UUID) (*syncdomain.EntityRecord, error) {
	var model models.EntityRecordModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ?",
			organizationID, entityType, entityID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts a new record
func (r *GormEntityRecordRepository) Save(ctx context.Context, record *syncdomain.EntityRecord) error {
	model := models.EntityRecordModelFromDomain(record)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists state changes of an existing record. The version guard
// catches concurrent writers; losing one is a storage error, not a sync
// conflict, because callers run inside the queue transaction.
func (r *GormEntityRecordRepository) Update(ctx context.Context, record *syncdomain.EntityRecord) error {
	model := models.EntityRecordModelFromDomain(record)
	result := r.db.WithContext(ctx).
		Model(&models.EntityRecordModel{}).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ? AND version = ?",
			record.OrganizationID, record.EntityType, record.EntityID, record.Version-1).
		Updates(map[string]interface{}{
			"data":       model.Data,
			"version":    model.Version,
			"deleted":    model.Deleted,
			"updated_at": model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindRecentByType returns live records of one type updated at or after since
func (r *GormEntityRecordRepository) FindRecentByType(ctx context.Context, organizationID uuid.UUID, entityType string, since time.Time, limit int) ([]syncdomain.EntityRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.EntityRecordModel{}).
		Where("organization_id = ? AND entity_type = ? AND deleted = ? AND updated_at >= ?",
			organizationID, entityType, false, since)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recordModels []models.EntityRecordModel
	if err := query.Order("updated_at DESC").Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]syncdomain.EntityRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records, nil
}

// Ensure GormEntityRecordRepository implements EntityRecordRepository
var _ syncdomain.EntityRecordRepository = (*GormEntityRecordRepository)(nil)
