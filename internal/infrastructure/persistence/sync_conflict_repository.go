package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/domain/shared"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"github.com/medpoint/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncConflictRepository implements SyncConflictRepository using GORM
type GormSyncConflictRepository struct {
	db *gorm.DB
}

// NewGormSyncConflictRepository creates a new GormSyncConflictRepository
func NewGormSyncConflictRepository(db *gorm.DB) *GormSyncConflictRepository {
	return &GormSyncConflictRepository{db: db}
}

// Save inserts a new conflict record
func (r *GormSyncConflictRepository) Save(ctx context.Context, conflict *syncdomain.SyncConflict) error {
	model := models.SyncConflictModelFromDomain(conflict)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update persists resolution state of an existing conflict
func (r *GormSyncConflictRepository) Update(ctx context.Context, conflict *syncdomain.SyncConflict) error {
	model := models.SyncConflictModelFromDomain(conflict)
	result := r.db.WithContext(ctx).
		Model(&models.SyncConflictModel{}).
		Where("id = ?", conflict.ID).
		Updates(map[string]interface{}{
			"status":        model.Status,
			"resolved_data": model.ResolvedData,
			"resolved_by":   model.ResolvedBy,
			"resolved_at":   model.ResolvedAt,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByClientToken finds the conflict raised by the operation with the given
// idempotency token
func (r *GormSyncConflictRepository) FindByClientToken(ctx context.Context, organizationID uuid.UUID, clientToken string) (*syncdomain.SyncConflict, error) {
	var model models.SyncConflictModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND client_token = ?", organizationID, clientToken).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindUnresolved returns detected conflicts, newest first
func (r *GormSyncConflictRepository) FindUnresolved(ctx context.Context, organizationID uuid.UUID, deviceID string) ([]syncdomain.SyncConflict, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncConflictModel{}).
		Where("organization_id = ? AND status = ?", organizationID, string(syncdomain.ConflictStatusDetected))
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}

	var conflictModels []models.SyncConflictModel
	if err := query.Order("created_at DESC").Find(&conflictModels).Error; err != nil {
		return nil, err
	}

	conflicts := make([]syncdomain.SyncConflict, len(conflictModels))
	for i := range conflictModels {
		conflicts[i] = *conflictModels[i].ToDomain()
	}
	return conflicts, nil
}

// Ensure GormSyncConflictRepository implements SyncConflictRepository
var _ syncdomain.SyncConflictRepository = (*GormSyncConflictRepository)(nil)
