package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/domain/shared"
)

// OperationType represents the kind of mutation a client queued offline
type OperationType string

const (
	OperationTypeCreate OperationType = "CREATE"
	OperationTypeUpdate OperationType = "UPDATE"
	OperationTypeDelete OperationType = "DELETE"
)

// IsValid checks if the operation type is valid
func (t OperationType) IsValid() bool {
	switch t {
	case OperationTypeCreate, OperationTypeUpdate, OperationTypeDelete:
		return true
	}
	return false
}

// String returns the string representation
func (t OperationType) String() string {
	return string(t)
}

// OperationStatus represents the lifecycle state of a queued operation
type OperationStatus string

const (
	// OperationStatusPending means the operation is queued and not yet processed
	OperationStatusPending OperationStatus = "PENDING"
	// OperationStatusProcessing means the resolver has picked up the operation
	OperationStatusProcessing OperationStatus = "PROCESSING"
	// OperationStatusCompleted is terminal: the operation was applied (or
	// deliberately discarded under server_wins)
	OperationStatusCompleted OperationStatus = "COMPLETED"
	// OperationStatusFailed means a store error occurred; failed operations
	// are retry candidates until the attempt cap is reached
	OperationStatusFailed OperationStatus = "FAILED"
	// OperationStatusConflict means a version mismatch was detected under the
	// manual strategy; requires explicit resolution
	OperationStatusConflict OperationStatus = "CONFLICT"
)

// IsValid checks if the status is valid
func (s OperationStatus) IsValid() bool {
	switch s {
	case OperationStatusPending, OperationStatusProcessing, OperationStatusCompleted,
		OperationStatusFailed, OperationStatusConflict:
		return true
	}
	return false
}

// String returns the string representation
func (s OperationStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status ends the normal processing flow.
// CONFLICT is terminal for the resolver but can still move to COMPLETED
// through explicit resolution.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusConflict
}

// SyncOperation is one queued client-originated mutation. The client token is
// the idempotency key: re-submitting an operation with a token the
// organization has already seen is a no-op that returns the prior result.
type SyncOperation struct {
	shared.OrganizationAggregateRoot

	// ClientToken is the client-generated unique token, unique per organization
	ClientToken string
	DeviceID    string
	UserID      uuid.UUID

	Type       OperationType
	EntityType string
	// EntityID is nil for CREATE until the first successful apply
	EntityID *uuid.UUID

	// Payload is the opaque desired entity state or delta
	Payload json.RawMessage

	// BaseVersion is the client's last-known server version. A nil base
	// version bypasses conflict detection entirely (best-effort mode).
	BaseVersion *int64

	// QueuedAt is the client-side timestamp; BatchSeq preserves the array
	// order of the originating push call.
	QueuedAt time.Time
	BatchSeq int

	Status OperationStatus

	// ConflictData holds the server snapshot captured at conflict time
	ConflictData json.RawMessage
	// PriorServerData holds the overwritten server state when client_wins
	// applied the payload, kept for audit only
	PriorServerData json.RawMessage

	SyncedAt  *time.Time
	Attempts  int
	LastError string
}

// NewSyncOperation creates a PENDING operation for the given organization
func NewSyncOperation(organizationID uuid.UUID, clientToken, deviceID string, userID uuid.UUID, opType OperationType, entityType string) (*SyncOperation, error) {
	if clientToken == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "client token is required")
	}
	if !opType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "invalid operation type: "+opType.String())
	}
	if entityType == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "entity type is required")
	}
	return &SyncOperation{
		OrganizationAggregateRoot: shared.NewOrganizationAggregateRoot(organizationID),
		ClientToken:               clientToken,
		DeviceID:                  deviceID,
		UserID:                    userID,
		Type:                      opType,
		EntityType:                entityType,
		QueuedAt:                  time.Now(),
		Status:                    OperationStatusPending,
	}, nil
}

// IsVersioned reports whether the operation carries a base version and is
// therefore subject to conflict detection
func (o *SyncOperation) IsVersioned() bool {
	return o.BaseVersion != nil
}

// MarkProcessing transitions PENDING -> PROCESSING
func (o *SyncOperation) MarkProcessing() error {
	if o.Status != OperationStatusPending {
		return shared.ErrInvalidState
	}
	o.Status = OperationStatusProcessing
	o.UpdatedAt = time.Now()
	return nil
}

// Complete transitions the operation to COMPLETED and stamps SyncedAt.
// Allowed from PROCESSING (normal apply) and CONFLICT (explicit resolution).
func (o *SyncOperation) Complete() error {
	if o.Status != OperationStatusProcessing && o.Status != OperationStatusConflict {
		return shared.ErrInvalidState
	}
	now := time.Now()
	o.Status = OperationStatusCompleted
	o.SyncedAt = &now
	o.UpdatedAt = now
	return nil
}

// MarkConflict transitions PROCESSING -> CONFLICT, capturing the server
// snapshot that contradicted the client's base version
func (o *SyncOperation) MarkConflict(serverSnapshot json.RawMessage) error {
	if o.Status != OperationStatusProcessing {
		return shared.ErrInvalidState
	}
	o.Status = OperationStatusConflict
	o.ConflictData = serverSnapshot
	o.UpdatedAt = time.Now()
	return nil
}

// Fail transitions the operation to FAILED with the store error attached and
// counts the attempt. FAILED is retryable; CONFLICT is not.
func (o *SyncOperation) Fail(cause string) error {
	if o.Status != OperationStatusProcessing && o.Status != OperationStatusPending {
		return shared.ErrInvalidState
	}
	o.Status = OperationStatusFailed
	o.LastError = cause
	o.Attempts++
	o.UpdatedAt = time.Now()
	return nil
}

// ResetForRetry transitions FAILED -> PENDING so the resolver picks the
// operation up again. Refused once the attempt cap is reached.
func (o *SyncOperation) ResetForRetry(maxAttempts int) error {
	if o.Status != OperationStatusFailed {
		return shared.ErrInvalidState
	}
	if o.Attempts >= maxAttempts {
		return shared.ErrRetryExhausted
	}
	o.Status = OperationStatusPending
	o.UpdatedAt = time.Now()
	return nil
}

// AssignEntityID records the server-assigned identity for a CREATE that
// arrived without one
func (o *SyncOperation) AssignEntityID(id uuid.UUID) {
	o.EntityID = &id
	o.UpdatedAt = time.Now()
}
