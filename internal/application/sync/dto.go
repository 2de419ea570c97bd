package sync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
)

// Operation result codes returned per pushed operation. A batch never fails
// as a whole; each operation reports its own outcome.
const (
	ResultCompleted = "completed"
	ResultConflict  = "conflict"
	ResultFailed    = "failed"
	ResultDuplicate = "duplicate"
	ResultBlocked   = "blocked"
	ResultInvalid   = "invalid"
)

// PushOperationRequest is one queued operation in a push batch
type PushOperationRequest struct {
	ClientToken string          `json:"client_token" binding:"required,max=128"`
	Type        string          `json:"type" binding:"required,oneof=CREATE UPDATE DELETE"`
	EntityType  string          `json:"entity_type" binding:"required,max=64"`
	EntityID    *uuid.UUID      `json:"entity_id"`
	Payload     json.RawMessage `json:"payload"`
	BaseVersion *int64          `json:"base_version"`
	QueuedAt    time.Time       `json:"queued_at"`
	BatchSeq    int             `json:"batch_seq"`
}

// PushRequest is a batch of operations a device queued while offline
type PushRequest struct {
	DeviceID   string                 `json:"device_id" binding:"required,max=128"`
	Strategy   string                 `json:"strategy" binding:"omitempty,oneof=client_wins server_wins manual"`
	Operations []PushOperationRequest `json:"operations" binding:"required,min=1,dive"`
}

// OperationResultResponse reports the outcome of one pushed operation. For
// duplicates, OperationStatus carries the stored status of the original
// submission.
type OperationResultResponse struct {
	ClientToken     string            `json:"client_token"`
	Result          string            `json:"result"`
	OperationStatus string            `json:"operation_status,omitempty"`
	EntityID        *uuid.UUID        `json:"entity_id,omitempty"`
	NewVersion      *int64            `json:"new_version,omitempty"`
	Error           string            `json:"error,omitempty"`
	Conflict        *ConflictResponse `json:"conflict,omitempty"`
}

// PushResponse summarizes a processed batch
type PushResponse struct {
	DeviceID   string                    `json:"device_id"`
	Received   int                       `json:"received"`
	Completed  int                       `json:"completed"`
	Conflicts  int                       `json:"conflicts"`
	Failed     int                       `json:"failed"`
	Duplicates int                       `json:"duplicates"`
	Results    []OperationResultResponse `json:"results"`
}

// PullRequest asks for changes other devices have applied since a watermark
type PullRequest struct {
	DeviceID    string     `form:"device_id" binding:"required,max=128"`
	Since       *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	EntityTypes []string   `form:"entity_types"`
	Limit       int        `form:"limit" binding:"omitempty,min=1,max=500"`
}

// ChangeResponse is one entity change delivered by a pull
type ChangeResponse struct {
	EntityType     string          `json:"entity_type"`
	EntityID       uuid.UUID       `json:"entity_id"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	Version        int64           `json:"version"`
	Deleted        bool            `json:"deleted"`
	SyncedAt       time.Time       `json:"synced_at"`
	SourceDeviceID string          `json:"source_device_id"`
}

// PullResponse carries changes plus the watermark for the next pull
type PullResponse struct {
	DeviceID   string           `json:"device_id"`
	ServerTime time.Time        `json:"server_time"`
	Changes    []ChangeResponse `json:"changes"`
	HasMore    bool             `json:"has_more"`
}

// OperationResponse represents a queued operation in API responses
type OperationResponse struct {
	ID          uuid.UUID       `json:"id"`
	ClientToken string          `json:"client_token"`
	DeviceID    string          `json:"device_id"`
	Type        string          `json:"type"`
	EntityType  string          `json:"entity_type"`
	EntityID    *uuid.UUID      `json:"entity_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	BaseVersion *int64          `json:"base_version,omitempty"`
	Status      string          `json:"status"`
	QueuedAt    time.Time       `json:"queued_at"`
	BatchSeq    int             `json:"batch_seq"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	SyncedAt    *time.Time      `json:"synced_at,omitempty"`
}

// ConflictResponse represents a conflict record in API responses
type ConflictResponse struct {
	ID           uuid.UUID       `json:"id"`
	OperationID  uuid.UUID       `json:"operation_id"`
	ClientToken  string          `json:"client_token"`
	DeviceID     string          `json:"device_id"`
	EntityType   string          `json:"entity_type"`
	EntityID     uuid.UUID       `json:"entity_id"`
	Type         string          `json:"type"`
	ClientData   json.RawMessage `json:"client_data,omitempty"`
	ServerData   json.RawMessage `json:"server_data,omitempty"`
	ResolvedData json.RawMessage `json:"resolved_data,omitempty"`
	Status       string          `json:"status"`
	ResolvedBy   *uuid.UUID      `json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	DetectedAt   time.Time       `json:"detected_at"`
}

// ResolveConflictRequest settles a manually held conflict
type ResolveConflictRequest struct {
	Resolution string          `json:"resolution" binding:"required,oneof=use_client use_server merge"`
	MergedData json.RawMessage `json:"merged_data"`
}

// FullSyncRequest bootstraps a device's cache from the record store
type FullSyncRequest struct {
	DeviceID    string   `json:"device_id" binding:"required,max=128"`
	EntityTypes []string `json:"entity_types" binding:"required,min=1"`
	Limit       int      `json:"limit" binding:"omitempty,min=1,max=5000"`
}

// FullSyncResponse summarizes a full-sync bootstrap
type FullSyncResponse struct {
	DeviceID    string         `json:"device_id"`
	ServerTime  time.Time      `json:"server_time"`
	EntityCount map[string]int `json:"entity_count"`
	Cached      int64          `json:"cached"`
	CacheSize   int64          `json:"cache_size"`
}

// RetryResponse reports a failed-operation retry pass
type RetryResponse struct {
	Requeued int `json:"requeued"`
	Skipped  int `json:"skipped"`
}

// CleanupResponse reports a completed-operation cleanup pass
type CleanupResponse struct {
	Removed int64 `json:"removed"`
}

// ToOperationResponse maps a domain operation to its API shape
func ToOperationResponse(op *syncdomain.SyncOperation) OperationResponse {
	return OperationResponse{
		ID:          op.ID,
		ClientToken: op.ClientToken,
		DeviceID:    op.DeviceID,
		Type:        op.Type.String(),
		EntityType:  op.EntityType,
		EntityID:    op.EntityID,
		Payload:     op.Payload,
		BaseVersion: op.BaseVersion,
		Status:      op.Status.String(),
		QueuedAt:    op.QueuedAt,
		BatchSeq:    op.BatchSeq,
		Attempts:    op.Attempts,
		LastError:   op.LastError,
		SyncedAt:    op.SyncedAt,
	}
}

// ToOperationResponses maps a slice of domain operations
func ToOperationResponses(ops []syncdomain.SyncOperation) []OperationResponse {
	responses := make([]OperationResponse, len(ops))
	for i := range ops {
		responses[i] = ToOperationResponse(&ops[i])
	}
	return responses
}

// ToConflictResponse maps a domain conflict to its API shape
func ToConflictResponse(c *syncdomain.SyncConflict) ConflictResponse {
	return ConflictResponse{
		ID:           c.ID,
		OperationID:  c.OperationID,
		ClientToken:  c.ClientToken,
		DeviceID:     c.DeviceID,
		EntityType:   c.EntityType,
		EntityID:     c.EntityID,
		Type:         string(c.Type),
		ClientData:   c.ClientData,
		ServerData:   c.ServerData,
		ResolvedData: c.ResolvedData,
		Status:       string(c.Status),
		ResolvedBy:   c.ResolvedBy,
		ResolvedAt:   c.ResolvedAt,
		DetectedAt:   c.CreatedAt,
	}
}

// ToConflictResponses maps a slice of domain conflicts
func ToConflictResponses(conflicts []syncdomain.SyncConflict) []ConflictResponse {
	responses := make([]ConflictResponse, len(conflicts))
	for i := range conflicts {
		responses[i] = ToConflictResponse(&conflicts[i])
	}
	return responses
}
