package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QueueCounts aggregates operation counts for one device's queue
type QueueCounts struct {
	Pending   int64
	Failed    int64
	Conflicts int64
}

// SyncOperationRepository defines persistence operations for the sync queue
type SyncOperationRepository interface {
	// Save inserts a new operation
	Save(ctx context.Context, op *SyncOperation) error
	// Update persists state changes of an existing operation
	Update(ctx context.Context, op *SyncOperation) error
	// FindByClientToken finds the operation with the given idempotency token
	FindByClientToken(ctx context.Context, organizationID uuid.UUID, clientToken string) (*SyncOperation, error)
	// FindPending returns PENDING operations ordered by queue time then batch
	// sequence. An empty deviceID selects all devices.
	FindPending(ctx context.Context, organizationID uuid.UUID, deviceID string, limit int) ([]SyncOperation, error)
	// FindCompletedSince returns COMPLETED operations with SyncedAt strictly
	// after since, ordered by completion time ascending. Operations
	// originating from excludeDeviceID are omitted; an empty entityTypes
	// slice selects all types.
	FindCompletedSince(ctx context.Context, organizationID uuid.UUID, since time.Time, entityTypes []string, excludeDeviceID string, limit int) ([]SyncOperation, error)
	// FindFailed returns FAILED operations with fewer than maxAttempts
	// attempts, oldest first
	FindFailed(ctx context.Context, organizationID uuid.UUID, maxAttempts int, limit int) ([]SyncOperation, error)
	// HasUnresolvedConflictForEntity reports whether any operation against
	// the entity is currently parked as CONFLICT
	HasUnresolvedConflictForEntity(ctx context.Context, organizationID uuid.UUID, entityType string, entityID uuid.UUID) (bool, error)
	// CountForDevice returns queue counts for one device
	CountForDevice(ctx context.Context, organizationID uuid.UUID, deviceID string) (QueueCounts, error)
	// DeleteCompletedBefore deletes COMPLETED operations whose SyncedAt is
	// before cutoff and returns the number of rows removed. FAILED and
	// CONFLICT rows are never touched.
	DeleteCompletedBefore(ctx context.Context, organizationID uuid.UUID, cutoff time.Time) (int64, error)
}

// SyncConflictRepository defines persistence operations for conflict records
type SyncConflictRepository interface {
	Save(ctx context.Context, conflict *SyncConflict) error
	Update(ctx context.Context, conflict *SyncConflict) error
	// FindByClientToken finds the conflict belonging to the operation with
	// the given idempotency token
	FindByClientToken(ctx context.Context, organizationID uuid.UUID, clientToken string) (*SyncConflict, error)
	// FindUnresolved returns detected conflicts, newest first. An empty
	// deviceID selects all devices.
	FindUnresolved(ctx context.Context, organizationID uuid.UUID, deviceID string) ([]SyncConflict, error)
}

// EntityRecordRepository is the engine's interface to the record store
type EntityRecordRepository interface {
	// Find returns the record for the given key, shared.ErrNotFound when absent
	Find(ctx context.Context, organizationID uuid.UUID, entityType string, entityID uuid.UUID) (*EntityRecord, error)
	// Save inserts a new record
	Save(ctx context.Context, record *EntityRecord) error
	// Update persists state changes of an existing record
	Update(ctx context.Context, record *EntityRecord) error
	// FindRecentByType returns live (non-deleted) records of one type
	// updated at or after since, newest first, capped at limit
	FindRecentByType(ctx context.Context, organizationID uuid.UUID, entityType string, since time.Time, limit int) ([]EntityRecord, error)
}
