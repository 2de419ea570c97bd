package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
	"github.com/medpoint/backend/internal/domain/shared"
	"github.com/medpoint/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDeviceSyncStateRepository implements DeviceSyncStateRepository using GORM
type GormDeviceSyncStateRepository struct {
	db *gorm.DB
}

// NewGormDeviceSyncStateRepository creates a new GormDeviceSyncStateRepository
func NewGormDeviceSyncStateRepository(db *gorm.DB) *GormDeviceSyncStateRepository {
	return &GormDeviceSyncStateRepository{db: db}
}

// Upsert inserts or updates the row keyed by (organization, device, user).
// ON CONFLICT keeps concurrent pushes from the same device from racing on the
// insert.
func (r *GormDeviceSyncStateRepository) Upsert(ctx context.Context, state *devicedomain.DeviceSyncState) error {
	model := models.DeviceSyncStateModelFromDomain(state)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"}, {Name: "device_id"}, {Name: "user_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_online", "last_online_at",
				"last_full_sync_at", "last_incremental_sync_at",
				"pending_operations", "failed_operations", "conflict_count",
				"cache_size", "cached_entities",
				"updated_at",
			}),
		}).
		Create(model).Error
}

// Find returns the state for one device
func (r *GormDeviceSyncStateRepository) Find(ctx context.Context, organizationID uuid.UUID, deviceID string) (*devicedomain.DeviceSyncState, error) {
	var model models.DeviceSyncStateModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND device_id = ?", organizationID, deviceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns all device states for the organization
func (r *GormDeviceSyncStateRepository) FindAll(ctx context.Context, organizationID uuid.UUID) ([]devicedomain.DeviceSyncState, error) {
	var stateModels []models.DeviceSyncStateModel
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("updated_at DESC").
		Find(&stateModels).Error; err != nil {
		return nil, err
	}

	states := make([]devicedomain.DeviceSyncState, len(stateModels))
	for i := range stateModels {
		states[i] = *stateModels[i].ToDomain()
	}
	return states, nil
}

// Ensure GormDeviceSyncStateRepository implements DeviceSyncStateRepository
var _ devicedomain.DeviceSyncStateRepository = (*GormDeviceSyncStateRepository)(nil)
