package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/domain/shared"
)

// ConflictType classifies how the conflict was detected
type ConflictType string

const (
	// ConflictTypeVersionMismatch is the only conflict type today: the
	// client's base version no longer matches the server version
	ConflictTypeVersionMismatch ConflictType = "version_mismatch"
)

// ConflictResolution is the caller's choice when resolving a conflict
type ConflictResolution string

const (
	ResolutionUseClient ConflictResolution = "use_client"
	ResolutionUseServer ConflictResolution = "use_server"
	ResolutionMerge     ConflictResolution = "merge"
)

// IsValid checks if the resolution is valid
func (r ConflictResolution) IsValid() bool {
	switch r {
	case ResolutionUseClient, ResolutionUseServer, ResolutionMerge:
		return true
	}
	return false
}

// String returns the string representation
func (r ConflictResolution) String() string {
	return string(r)
}

// ConflictStatus tracks the conflict record lifecycle
type ConflictStatus string

const (
	ConflictStatusDetected          ConflictStatus = "detected"
	ConflictStatusResolvedUseClient ConflictStatus = "resolved_use_client"
	ConflictStatusResolvedUseServer ConflictStatus = "resolved_use_server"
	ConflictStatusResolvedMerge     ConflictStatus = "resolved_merge"
)

// IsResolved reports whether the conflict has been finalized
func (s ConflictStatus) IsResolved() bool {
	return s != ConflictStatusDetected
}

// resolvedStatusFor maps a resolution choice to the final conflict status
func resolvedStatusFor(r ConflictResolution) ConflictStatus {
	switch r {
	case ResolutionUseClient:
		return ConflictStatusResolvedUseClient
	case ResolutionUseServer:
		return ConflictStatusResolvedUseServer
	default:
		return ConflictStatusResolvedMerge
	}
}

// SyncConflict is the durable record of a detected conflict, one-to-one with
// a SyncOperation that reached CONFLICT. Resolution is monotonic: once
// resolved the record never changes again.
type SyncConflict struct {
	shared.OrganizationAggregateRoot

	OperationID uuid.UUID
	ClientToken string
	DeviceID    string

	EntityType string
	EntityID   uuid.UUID

	Type ConflictType

	// ClientData is the operation payload; ServerData is the entity state at
	// detection time; ResolvedData is what was finally written.
	ClientData   json.RawMessage
	ServerData   json.RawMessage
	ResolvedData json.RawMessage

	Status     ConflictStatus
	ResolvedBy *uuid.UUID
	ResolvedAt *time.Time
}

// NewSyncConflict creates a detected conflict for the given operation
func NewSyncConflict(op *SyncOperation, serverData json.RawMessage) (*SyncConflict, error) {
	if op.EntityID == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "conflict requires an entity id")
	}
	return &SyncConflict{
		OrganizationAggregateRoot: shared.NewOrganizationAggregateRoot(op.OrganizationID),
		OperationID:               op.ID,
		ClientToken:               op.ClientToken,
		DeviceID:                  op.DeviceID,
		EntityType:                op.EntityType,
		EntityID:                  *op.EntityID,
		Type:                      ConflictTypeVersionMismatch,
		ClientData:                op.Payload,
		ServerData:                serverData,
		Status:                    ConflictStatusDetected,
	}, nil
}

// Resolve finalizes the conflict. Resolving an already-resolved conflict is
// an invalid state transition.
func (c *SyncConflict) Resolve(resolution ConflictResolution, resolvedData json.RawMessage, resolvedBy uuid.UUID) error {
	if c.Status.IsResolved() {
		return shared.ErrInvalidState
	}
	if !resolution.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", "invalid conflict resolution: "+resolution.String())
	}
	now := time.Now()
	c.Status = resolvedStatusFor(resolution)
	c.ResolvedData = resolvedData
	c.ResolvedBy = &resolvedBy
	c.ResolvedAt = &now
	c.UpdatedAt = now
	return nil
}
