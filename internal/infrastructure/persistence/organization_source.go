package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/infrastructure/persistence/models"
	"github.com/medpoint/backend/internal/infrastructure/scheduler"
	"gorm.io/gorm"
)

// GormOrganizationSource lists the organizations the maintenance scheduler
// visits. Any organization with at least one device sync state row has data
// worth sweeping.
type GormOrganizationSource struct {
	db *gorm.DB
}

// NewGormOrganizationSource creates a new GormOrganizationSource
func NewGormOrganizationSource(db *gorm.DB) *GormOrganizationSource {
	return &GormOrganizationSource{db: db}
}

// ActiveOrganizations returns every organization that has synced a device
func (s *GormOrganizationSource) ActiveOrganizations(ctx context.Context) ([]uuid.UUID, error) {
	var organizationIDs []uuid.UUID
	if err := s.db.WithContext(ctx).
		Model(&models.DeviceSyncStateModel{}).
		Distinct("organization_id").
		Pluck("organization_id", &organizationIDs).Error; err != nil {
		return nil, err
	}
	return organizationIDs, nil
}

// Ensure GormOrganizationSource implements scheduler.OrganizationSource
var _ scheduler.OrganizationSource = (*GormOrganizationSource)(nil)
