package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
)

// SyncOperationModel is the persistence model for the SyncOperation aggregate.
// The (organization_id, client_token) unique index created by the schema
// migration is what makes re-delivered batches idempotent at the storage level.
type SyncOperationModel struct {
	OrganizationAggregateModel
	ClientToken string     `gorm:"type:varchar(128);not null;index"`
	DeviceID    string     `gorm:"type:varchar(128);not null;index"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null"`
	Type        string     `gorm:"type:varchar(16);not null"`
	EntityType  string     `gorm:"type:varchar(64);not null;index:idx_sync_op_entity,priority:1"`
	EntityID    *uuid.UUID `gorm:"type:uuid;index:idx_sync_op_entity,priority:2"`

	Payload     json.RawMessage `gorm:"type:jsonb"`
	BaseVersion *int64

	QueuedAt time.Time `gorm:"not null;index"`
	BatchSeq int       `gorm:"not null;default:0"`

	Status string `gorm:"type:varchar(16);not null;index"`

	ConflictData    json.RawMessage `gorm:"type:jsonb"`
	PriorServerData json.RawMessage `gorm:"type:jsonb"`

	SyncedAt  *time.Time `gorm:"index"`
	Attempts  int        `gorm:"not null;default:0"`
	LastError string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SyncOperationModel) TableName() string {
	return "sync_operations"
}

// ToDomain converts the persistence model to a domain SyncOperation
func (m *SyncOperationModel) ToDomain() *syncdomain.SyncOperation {
	op := &syncdomain.SyncOperation{
		ClientToken:     m.ClientToken,
		DeviceID:        m.DeviceID,
		UserID:          m.UserID,
		Type:            syncdomain.OperationType(m.Type),
		EntityType:      m.EntityType,
		EntityID:        m.EntityID,
		Payload:         m.Payload,
		BaseVersion:     m.BaseVersion,
		QueuedAt:        m.QueuedAt,
		BatchSeq:        m.BatchSeq,
		Status:          syncdomain.OperationStatus(m.Status),
		ConflictData:    m.ConflictData,
		PriorServerData: m.PriorServerData,
		SyncedAt:        m.SyncedAt,
		Attempts:        m.Attempts,
		LastError:       m.LastError,
	}
	m.PopulateOrganizationAggregateRoot(&op.OrganizationAggregateRoot)
	return op
}

// FromDomain populates the persistence model from a domain SyncOperation
func (m *SyncOperationModel) FromDomain(op *syncdomain.SyncOperation) {
	m.FromDomainOrganizationAggregateRoot(op.OrganizationAggregateRoot)
	m.ClientToken = op.ClientToken
	m.DeviceID = op.DeviceID
	m.UserID = op.UserID
	m.Type = op.Type.String()
	m.EntityType = op.EntityType
	m.EntityID = op.EntityID
	m.Payload = op.Payload
	m.BaseVersion = op.BaseVersion
	m.QueuedAt = op.QueuedAt
	m.BatchSeq = op.BatchSeq
	m.Status = op.Status.String()
	m.ConflictData = op.ConflictData
	m.PriorServerData = op.PriorServerData
	m.SyncedAt = op.SyncedAt
	m.Attempts = op.Attempts
	m.LastError = op.LastError
}

// SyncOperationModelFromDomain creates a new persistence model from a domain SyncOperation
func SyncOperationModelFromDomain(op *syncdomain.SyncOperation) *SyncOperationModel {
	m := &SyncOperationModel{}
	m.FromDomain(op)
	return m
}

// SyncConflictModel is the persistence model for SyncConflict records
type SyncConflictModel struct {
	OrganizationAggregateModel
	OperationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	ClientToken string    `gorm:"type:varchar(128);not null;index"`
	DeviceID    string    `gorm:"type:varchar(128);not null;index"`
	EntityType  string    `gorm:"type:varchar(64);not null"`
	EntityID    uuid.UUID `gorm:"type:uuid;not null"`
	Type        string    `gorm:"type:varchar(32);not null"`

	ClientData   json.RawMessage `gorm:"type:jsonb"`
	ServerData   json.RawMessage `gorm:"type:jsonb"`
	ResolvedData json.RawMessage `gorm:"type:jsonb"`

	Status     string     `gorm:"type:varchar(32);not null;index"`
	ResolvedBy *uuid.UUID `gorm:"type:uuid"`
	ResolvedAt *time.Time
}

// TableName returns the table name for GORM
func (SyncConflictModel) TableName() string {
	return "sync_conflicts"
}

// ToDomain converts the persistence model to a domain SyncConflict
func (m *SyncConflictModel) ToDomain() *syncdomain.SyncConflict {
	conflict := &syncdomain.SyncConflict{
		OperationID:  m.OperationID,
		ClientToken:  m.ClientToken,
		DeviceID:     m.DeviceID,
		EntityType:   m.EntityType,
		EntityID:     m.EntityID,
		Type:         syncdomain.ConflictType(m.Type),
		ClientData:   m.ClientData,
		ServerData:   m.ServerData,
		ResolvedData: m.ResolvedData,
		Status:       syncdomain.ConflictStatus(m.Status),
		ResolvedBy:   m.ResolvedBy,
		ResolvedAt:   m.ResolvedAt,
	}
	m.PopulateOrganizationAggregateRoot(&conflict.OrganizationAggregateRoot)
	return conflict
}

// FromDomain populates the persistence model from a domain SyncConflict
func (m *SyncConflictModel) FromDomain(c *syncdomain.SyncConflict) {
	m.FromDomainOrganizationAggregateRoot(c.OrganizationAggregateRoot)
	m.OperationID = c.OperationID
	m.ClientToken = c.ClientToken
	m.DeviceID = c.DeviceID
	m.EntityType = c.EntityType
	m.EntityID = c.EntityID
	m.Type = string(c.Type)
	m.ClientData = c.ClientData
	m.ServerData = c.ServerData
	m.ResolvedData = c.ResolvedData
	m.Status = string(c.Status)
	m.ResolvedBy = c.ResolvedBy
	m.ResolvedAt = c.ResolvedAt
}

// SyncConflictModelFromDomain creates a new persistence model from a domain SyncConflict
func SyncConflictModelFromDomain(c *syncdomain.SyncConflict) *SyncConflictModel {
	m := &SyncConflictModel{}
	m.FromDomain(c)
	return m
}

// EntityRecordModel is the persistence model for the record store rows the
// engine synchronizes against. Keyed by (organization, entity type, entity id).
type EntityRecordModel struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_entity_record_key,priority:1"`
	EntityType     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_entity_record_key,priority:2"`
	EntityID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_entity_record_key,priority:3"`

	Data    json.RawMessage `gorm:"type:jsonb"`
	Version int64           `gorm:"not null;default:1"`
	Deleted bool            `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (EntityRecordModel) TableName() string {
	return "entity_records"
}

// ToDomain converts the persistence model to a domain EntityRecord
func (m *EntityRecordModel) ToDomain() *syncdomain.EntityRecord {
	return &syncdomain.EntityRecord{
		OrganizationID: m.OrganizationID,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		Data:           m.Data,
		Version:        m.Version,
		Deleted:        m.Deleted,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain EntityRecord
func (m *EntityRecordModel) FromDomain(r *syncdomain.EntityRecord) {
	m.OrganizationID = r.OrganizationID
	m.EntityType = r.EntityType
	m.EntityID = r.EntityID
	m.Data = r.Data
	m.Version = r.Version
	m.Deleted = r.Deleted
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// EntityRecordModelFromDomain creates a new persistence model from a domain EntityRecord
func EntityRecordModelFromDomain(r *syncdomain.EntityRecord) *EntityRecordModel {
	m := &EntityRecordModel{}
	m.FromDomain(r)
	return m
}
