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

// GormSyncOperationRepository implements SyncOperationRepository using GORM
type GormSyncOperationRepository struct {
	db *gorm.DB
}

// NewGormSyncOperationRepository creates a new GormSyncOperationRepository
func NewGormSyncOperationRepository(db *gorm.DB) *GormSyncOperationRepository {
	return &GormSyncOperationRepository{db: db}
}

// Save inserts a new sync operation
func (r *GormSyncOperationRepository) Save(ctx context.Context, op *syncdomain.SyncOperation) error {
	model := models.SyncOperationModelFromDomain(op)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	return nil
}

// Update persists state changes of an existing operation
func (r *GormSyncOperationRepository) Update(ctx context.Context, op *syncdomain.SyncOperation) error {
	model := models.SyncOperationModelFromDomain(op)
	result := r.db.WithContext(ctx).
		Model(&models.SyncOperationModel{}).
		Where("id = ?", op.ID).
		Updates(map[string]interface{}{
			"status":            model.Status,
			"entity_id":         model.EntityID,
			"conflict_data":     model.ConflictData,
			"prior_server_data": model.PriorServerData,
			"synced_at":         model.SyncedAt,
			"attempts":          model.Attempts,
			"last_error":        model.LastError,
			"version":           model.Version,
			"updated_at":        model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByClientToken finds the operation with the given idempotency token
func (r *GormSyncOperationRepository) FindByClientToken(ctx context.Context, organizationID uuid.UUID, clientToken string) (*syncdomain.SyncOperation, error) {
	var model models.SyncOperationModel
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

// FindPending returns PENDING operations in queue order
func (r *GormSyncOperationRepository) FindPending(ctx context.Context, organizationID uuid.UUID, deviceID string, limit int) ([]syncdomain.SyncOperation, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncOperationModel{}).
		Where("organization_id = ? AND status = ?", organizationID, syncdomain.OperationStatusPending.String())
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var opModels []models.SyncOperationModel
	if err := query.Order("queued_at ASC, batch_seq ASC").Find(&opModels).Error; err != nil {
		return nil, err
	}
	return r.toDomainSlice(opModels), nil
}

// FindCompletedSince returns COMPLETED operations synced strictly after since
func (r *GormSyncOperationRepository) FindCompletedSince(ctx context.Context, organizationID uuid.UUID, since time.Time, entityTypes []string, excludeDeviceID string, limit int) ([]syncdomain.SyncOperation, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncOperationModel{}).
		Where("organization_id = ? AND status = ? AND synced_at > ?",
			organizationID, syncdomain.OperationStatusCompleted.String(), since)
	if len(entityTypes) > 0 {
		query = query.Where("entity_type IN ?", entityTypes)
	}
	if excludeDeviceID != "" {
		query = query.Where("device_id <> ?", excludeDeviceID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var opModels []models.SyncOperationModel
	if err := query.Order("synced_at ASC").Find(&opModels).Error; err != nil {
		return nil, err
	}
	return r.toDomainSlice(opModels), nil
}

// FindFailed returns FAILED operations still under the attempt cap, oldest first
func (r *GormSyncOperationRepository) FindFailed(ctx context.Context, organizationID uuid.UUID, maxAttempts int, limit int) ([]syncdomain.SyncOperation, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncOperationModel{}).
		Where("organization_id = ? AND status = ? AND attempts < ?",
			organizationID, syncdomain.OperationStatusFailed.String(), maxAttempts)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var opModels []models.SyncOperationModel
	if err := query.Order("queued_at ASC").Find(&opModels).Error; err != nil {
		return nil, err
	}
	return r.toDomainSlice(opModels), nil
}

// HasUnresolvedConflictForEntity reports whether any operation against the
// entity is parked as CONFLICT
func (r *GormSyncOperationRepository) HasUnresolvedConflictForEntity(ctx context.Context, organizationID uuid.UUID, entityType string, entityID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SyncOperationModel{}).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ? AND status = ?",
			organizationID, entityType, entityID, syncdomain.OperationStatusConflict.String()).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountForDevice returns queue counts for one device
func (r *GormSyncOperationRepository) CountForDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) (syncdomain.QueueCounts, error) {
	var counts syncdomain.QueueCounts

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.SyncOperationModel{}).
			Where("organization_id = ? AND device_id = ?", organizationID, deviceID)
	}

	if err := base().Where("status = ?", syncdomain.OperationStatusPending.String()).
		Count(&counts.Pending).Error; err != nil {
		return syncdomain.QueueCounts{}, err
	}
	if err := base().Where("status = ?", syncdomain.OperationStatusFailed.String()).
		Count(&counts.Failed).Error; err != nil {
		return syncdomain.QueueCounts{}, err
	}
	if err := base().Where("status = ?", syncdomain.OperationStatusConflict.String()).
		Count(&counts.Conflicts).Error; err != nil {
		return syncdomain.QueueCounts{}, err
	}
	return counts, nil
}

// DeleteCompletedBefore deletes COMPLETED operations synced before cutoff
func (r *GormSyncOperationRepository) DeleteCompletedBefore(ctx context.Context, organizationID uuid.UUID, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND status = ? AND synced_at < ?",
			organizationID, syncdomain.OperationStatusCompleted.String(), cutoff).
		Delete(&models.SyncOperationModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormSyncOperationRepository) toDomainSlice(opModels []models.SyncOperationModel) []syncdomain.SyncOperation {
	ops := make([]syncdomain.SyncOperation, len(opModels))
	for i := range opModels {
		ops[i] = *opModels[i].ToDomain()
	}
	return ops
}

// Ensure GormSyncOperationRepository implements SyncOperationRepository
var _ syncdomain.SyncOperationRepository = (*GormSyncOperationRepository)(nil)
