package device

import (
	"context"

	"github.com/google/uuid"
)

// DeviceSyncStateRepository defines persistence for device state rows.
// Upsert must be safe to call concurrently for the same device; rows are
// never deleted automatically.
type DeviceSyncStateRepository interface {
	// Upsert inserts or updates the row keyed by (organization, device, user)
	Upsert(ctx context.Context, state *DeviceSyncState) error
	// Find returns the state for one device, shared.ErrNotFound when absent
	Find(ctx context.Context, organizationID uuid.UUID, deviceID string) (*DeviceSyncState, error)
	// FindAll returns all device states for the organization, most recently
	// updated first
	FindAll(ctx context.Context, organizationID uuid.UUID) ([]DeviceSyncState, error)
}
