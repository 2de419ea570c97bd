package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/domain/shared"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"go.uber.org/zap"
)

// ApplyOutcome captures what happened to one operation inside the apply
// transaction.
type ApplyOutcome struct {
	Result     string
	EntityID   *uuid.UUID
	NewVersion *int64
	Conflict   *syncdomain.SyncConflict
}

// Resolver applies one PROCESSING operation against the record store. The
// version check, the record mutation, the status transition and any conflict
// row are written through the same transactional repositories, so the caller
// must invoke Apply inside a TransactionScope.
//
// Operations without a base version apply unconditionally (best-effort mode):
// the version check is skipped and the record is upserted.
type Resolver struct {
	registry *syncdomain.StrategyRegistry
	logger   *zap.Logger
}

// NewResolver creates a Resolver with the given strategy registry
func NewResolver(registry *syncdomain.StrategyRegistry, logger *zap.Logger) *Resolver {
	return &Resolver{registry: registry, logger: logger}
}

// Apply executes the operation. The strategy name selects conflict handling
// on a version mismatch; unknown names fall back to manual.
func (r *Resolver) Apply(ctx context.Context, repos TransactionalRepositories, op *syncdomain.SyncOperation, strategyName syncdomain.StrategyName) (ApplyOutcome, error) {
	record, err := r.loadRecord(ctx, repos, op)
	if err != nil {
		return ApplyOutcome{}, err
	}

	if r.hasVersionMismatch(op, record) {
		return r.resolveMismatch(ctx, repos, op, record, strategyName)
	}
	return r.applyMutation(ctx, repos, op, record)
}

func (r *Resolver) loadRecord(ctx context.Context, repos TransactionalRepositories, op *syncdomain.SyncOperation) (*syncdomain.EntityRecord, error) {
	if op.EntityID == nil {
		return nil, nil
	}
	record, err := repos.RecordRepo().Find(ctx, op.OrganizationID, op.EntityType, *op.EntityID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// hasVersionMismatch reports whether the operation's base version disagrees
// with the current server version. CREATE against an existing record counts
// as a mismatch when versioned; unversioned operations never mismatch.
func (r *Resolver) hasVersionMismatch(op *syncdomain.SyncOperation, record *syncdomain.EntityRecord) bool {
	if record == nil {
		return false
	}
	if op.Type == syncdomain.OperationTypeCreate {
		return op.IsVersioned()
	}
	if !op.IsVersioned() {
		return false
	}
	return record.Version != *op.BaseVersion
}

func (r *Resolver) resolveMismatch(ctx context.Context, repos TransactionalRepositories, op *syncdomain.SyncOperation, record *syncdomain.EntityRecord, strategyName syncdomain.StrategyName) (ApplyOutcome, error) {
	strategy := r.registry.GetOrDefault(strategyName)
	decision := strategy.Decide(op, record)
	serverSnapshot := r.recordSnapshot(record)

	r.logger.Info("version mismatch",
		zap.String("client_token", op.ClientToken),
		zap.String("entity_type", op.EntityType),
		zap.Stringer("entity_id", op.EntityID),
		zap.Int64("server_version", record.Version),
		zap.String("strategy", strategy.Name().String()),
		zap.String("action", string(decision.Action)),
	)

	switch decision.Action {
	case syncdomain.ActionApplyClient:
		op.PriorServerData = serverSnapshot
		return r.applyMutation(ctx, repos, op, record)

	case syncdomain.ActionKeepServer:
		op.PriorServerData = serverSnapshot
		if err := op.Complete(); err != nil {
			return ApplyOutcome{}, err
		}
		if err := repos.OperationRepo().Update(ctx, op); err != nil {
			return ApplyOutcome{}, err
		}
		version := record.Version
		return ApplyOutcome{
			Result:     ResultCompleted,
			EntityID:   op.EntityID,
			NewVersion: &version,
		}, nil

	default: // hold for manual resolution
		if err := op.MarkConflict(serverSnapshot); err != nil {
			return ApplyOutcome{}, err
		}
		if err := repos.OperationRepo().Update(ctx, op); err != nil {
			return ApplyOutcome{}, err
		}

		outcome := ApplyOutcome{Result: ResultConflict, EntityID: op.EntityID}
		if decision.RecordConflict {
			conflict, err := syncdomain.NewSyncConflict(op, serverSnapshot)
			if err != nil {
				return ApplyOutcome{}, err
			}
			if err := repos.ConflictRepo().Save(ctx, conflict); err != nil {
				return ApplyOutcome{}, err
			}
			outcome.Conflict = conflict
		}
		return outcome, nil
	}
}

func (r *Resolver) applyMutation(ctx context.Context, repos TransactionalRepositories, op *syncdomain.SyncOperation, record *syncdomain.EntityRecord) (ApplyOutcome, error) {
	var newVersion int64

	switch op.Type {
	case syncdomain.OperationTypeCreate, syncdomain.OperationTypeUpdate:
		if record == nil {
			if op.EntityID == nil {
				op.AssignEntityID(uuid.New())
			}
			record = syncdomain.NewEntityRecord(op.OrganizationID, op.EntityType, *op.EntityID, op.Payload)
			if err := repos.RecordRepo().Save(ctx, record); err != nil {
				return ApplyOutcome{}, err
			}
		} else {
			record.ApplyUpdate(op.Payload)
			if err := repos.RecordRepo().Update(ctx, record); err != nil {
				return ApplyOutcome{}, err
			}
		}
		newVersion = record.Version

	case syncdomain.OperationTypeDelete:
		if record == nil {
			// deleting something already gone is a success, not an error
			newVersion = 0
			break
		}
		record.MarkDeleted()
		if err := repos.RecordRepo().Update(ctx, record); err != nil {
			return ApplyOutcome{}, err
		}
		newVersion = record.Version

	default:
		return ApplyOutcome{}, fmt.Errorf("unsupported operation type %q", op.Type)
	}

	if err := op.Complete(); err != nil {
		return ApplyOutcome{}, err
	}
	if err := repos.OperationRepo().Update(ctx, op); err != nil {
		return ApplyOutcome{}, err
	}

	return ApplyOutcome{
		Result:     ResultCompleted,
		EntityID:   op.EntityID,
		NewVersion: &newVersion,
	}, nil
}

// recordSnapshot serializes the server-side record state for conflict
// reporting and audit.
func (r *Resolver) recordSnapshot(record *syncdomain.EntityRecord) json.RawMessage {
	if record == nil {
		return nil
	}
	snapshot, err := json.Marshal(struct {
		Data    json.RawMessage `json:"data"`
		Version int64           `json:"version"`
		Deleted bool            `json:"deleted"`
	}{Data: record.Data, Version: record.Version, Deleted: record.Deleted})
	if err != nil {
		return nil
	}
	return snapshot
}
