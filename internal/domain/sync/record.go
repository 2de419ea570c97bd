package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntityRecord is the record store's view of one synchronized entity. The
// engine treats the data as opaque; only the key and version matter for
// conflict detection. The version column is incremented inside the same
// transaction that writes new state, which makes version-check-then-apply
// safe under concurrent pushes.
type EntityRecord struct {
	OrganizationID uuid.UUID
	EntityType     string
	EntityID       uuid.UUID

	Data    json.RawMessage
	Version int64
	Deleted bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEntityRecord creates a record at version 1
func NewEntityRecord(organizationID uuid.UUID, entityType string, entityID uuid.UUID, data json.RawMessage) *EntityRecord {
	now := time.Now()
	return &EntityRecord{
		OrganizationID: organizationID,
		EntityType:     entityType,
		EntityID:       entityID,
		Data:           data,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ApplyUpdate replaces the record data and bumps the version
func (r *EntityRecord) ApplyUpdate(data json.RawMessage) {
	r.Data = data
	r.Deleted = false
	r.Version++
	r.UpdatedAt = time.Now()
}

// MarkDeleted soft-deletes the record; the tombstone keeps its version
// moving so late writers still conflict against it
func (r *EntityRecord) MarkDeleted() {
	r.Deleted = true
	r.Version++
	r.UpdatedAt = time.Now()
}
