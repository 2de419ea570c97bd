package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
	"github.com/medpoint/backend/internal/domain/shared"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"go.uber.org/zap"
)

// Options tunes the sync service. Zero values fall back to the defaults.
type Options struct {
	// MaxBatchSize caps the number of operations accepted per push
	MaxBatchSize int
	// DefaultPullLimit / MaxPullLimit bound the pull page size
	DefaultPullLimit int
	MaxPullLimit     int
	// RetryMaxAttempts is the attempt cap for failed operations
	RetryMaxAttempts int
	// RetryBatchLimit caps operations requeued per retry pass
	RetryBatchLimit int
	// IdempotencyTTL is how long seen client tokens stay in the fast-path store
	IdempotencyTTL time.Duration
}

// DefaultOptions returns the service defaults
func DefaultOptions() Options {
	return Options{
		MaxBatchSize:     100,
		DefaultPullLimit: 100,
		MaxPullLimit:     500,
		RetryMaxAttempts: 5,
		RetryBatchLimit:  100,
		IdempotencyTTL:   24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = defaults.MaxBatchSize
	}
	if o.DefaultPullLimit <= 0 {
		o.DefaultPullLimit = defaults.DefaultPullLimit
	}
	if o.MaxPullLimit <= 0 {
		o.MaxPullLimit = defaults.MaxPullLimit
	}
	if o.RetryMaxAttempts <= 0 {
		o.RetryMaxAttempts = defaults.RetryMaxAttempts
	}
	if o.RetryBatchLimit <= 0 {
		o.RetryBatchLimit = defaults.RetryBatchLimit
	}
	if o.IdempotencyTTL <= 0 {
		o.IdempotencyTTL = defaults.IdempotencyTTL
	}
	return o
}

// SyncService orchestrates the sync queue: push batches through the resolver,
// pull changes for other devices, and run the retry and cleanup passes.
type SyncService struct {
	operationRepo syncdomain.SyncOperationRepository
	conflictRepo  syncdomain.SyncConflictRepository
	recordRepo    syncdomain.EntityRecordRepository
	deviceRepo    devicedomain.DeviceSyncStateRepository
	txScope       TransactionScope
	resolver      *Resolver
	idempotency   shared.IdempotencyStore
	logger        *zap.Logger
	opts          Options
}

// NewSyncService creates a new SyncService
func NewSyncService(
	operationRepo syncdomain.SyncOperationRepository,
	conflictRepo syncdomain.SyncConflictRepository,
	recordRepo syncdomain.EntityRecordRepository,
	deviceRepo devicedomain.DeviceSyncStateRepository,
	txScope TransactionScope,
	resolver *Resolver,
	logger *zap.Logger,
	opts Options,
) *SyncService {
	return &SyncService{
		operationRepo: operationRepo,
		conflictRepo:  conflictRepo,
		recordRepo:    recordRepo,
		deviceRepo:    deviceRepo,
		txScope:       txScope,
		resolver:      resolver,
		logger:        logger,
		opts:          opts.withDefaults(),
	}
}

// SetIdempotencyStore wires the optional duplicate-token fast path
func (s *SyncService) SetIdempotencyStore(store shared.IdempotencyStore) {
	s.idempotency = store
}

// Push processes a batch of offline operations. Operations are processed in
// array order; each reports its own outcome and one bad operation never
// fails the batch.
func (s *SyncService) Push(ctx context.Context, organizationID, userID uuid.UUID, req PushRequest) (*PushResponse, error) {
	if len(req.Operations) > s.opts.MaxBatchSize {
		return nil, shared.NewDomainError("BATCH_TOO_LARGE",
			fmt.Sprintf("batch of %d exceeds the limit of %d operations", len(req.Operations), s.opts.MaxBatchSize))
	}

	strategy := syncdomain.StrategyName(req.Strategy)
	response := &PushResponse{
		DeviceID: req.DeviceID,
		Received: len(req.Operations),
		Results:  make([]OperationResultResponse, 0, len(req.Operations)),
	}

	for i, opReq := range req.Operations {
		if opReq.BatchSeq == 0 {
			opReq.BatchSeq = i
		}
		result := s.processOperation(ctx, organizationID, userID, req.DeviceID, strategy, opReq)
		response.Results = append(response.Results, result)

		switch result.Result {
		case ResultCompleted:
			response.Completed++
		case ResultConflict:
			response.Conflicts++
		case ResultDuplicate:
			response.Duplicates++
		case ResultFailed, ResultInvalid:
			response.Failed++
		}
	}

	s.refreshDeviceState(ctx, organizationID, req.DeviceID, userID, func(state *devicedomain.DeviceSyncState) {
		state.TouchOnline()
	})

	return response, nil
}

// processOperation runs one operation through dedup, enqueue and the resolver
func (s *SyncService) processOperation(ctx context.Context, organizationID, userID uuid.UUID, deviceID string, strategy syncdomain.StrategyName, req PushOperationRequest) OperationResultResponse {
	if dup := s.findDuplicate(ctx, organizationID, req.ClientToken); dup != nil {
		return *dup
	}

	op, err := syncdomain.NewSyncOperation(organizationID, req.ClientToken, deviceID, userID,
		syncdomain.OperationType(req.Type), req.EntityType)
	if err != nil {
		return OperationResultResponse{ClientToken: req.ClientToken, Result: ResultInvalid, Error: err.Error()}
	}
	op.EntityID = req.EntityID
	op.Payload = req.Payload
	op.BaseVersion = req.BaseVersion
	op.BatchSeq = req.BatchSeq
	if !req.QueuedAt.IsZero() {
		op.QueuedAt = req.QueuedAt
	}

	if err := s.operationRepo.Save(ctx, op); err != nil {
		// a concurrent push may have won the unique-token race
		if dup := s.storedResult(ctx, organizationID, req.ClientToken); dup != nil {
			return *dup
		}
		s.logger.Error("failed to enqueue operation",
			zap.String("client_token", req.ClientToken), zap.Error(err))
		return OperationResultResponse{ClientToken: req.ClientToken, Result: ResultFailed, Error: err.Error()}
	}

	result := s.executeOperation(ctx, op, strategy)
	s.markTokenSeen(ctx, organizationID, req.ClientToken)
	return result
}

// executeOperation moves a PENDING operation through the resolver. Operations
// against an entity with an unresolved conflict stay PENDING until the
// conflict is settled.
func (s *SyncService) executeOperation(ctx context.Context, op *syncdomain.SyncOperation, strategy syncdomain.StrategyName) OperationResultResponse {
	if op.EntityID != nil {
		blocked, err := s.operationRepo.HasUnresolvedConflictForEntity(ctx, op.OrganizationID, op.EntityType, *op.EntityID)
		if err != nil {
			return s.failOperation(ctx, op, err)
		}
		if blocked {
			return OperationResultResponse{
				ClientToken:     op.ClientToken,
				Result:          ResultBlocked,
				OperationStatus: op.Status.String(),
				EntityID:        op.EntityID,
			}
		}
	}

	if err := op.MarkProcessing(); err != nil {
		return OperationResultResponse{ClientToken: op.ClientToken, Result: ResultFailed, Error: err.Error()}
	}

	var outcome ApplyOutcome
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.OperationRepo().Update(ctx, op); err != nil {
			return err
		}
		applied, err := s.resolver.Apply(ctx, repos, op, strategy)
		if err != nil {
			return err
		}
		outcome = applied
		return nil
	})
	if err != nil {
		return s.failOperation(ctx, op, err)
	}

	result := OperationResultResponse{
		ClientToken:     op.ClientToken,
		Result:          outcome.Result,
		OperationStatus: op.Status.String(),
		EntityID:        outcome.EntityID,
		NewVersion:      outcome.NewVersion,
	}
	if outcome.Conflict != nil {
		conflictResp := ToConflictResponse(outcome.Conflict)
		result.Conflict = &conflictResp
	}
	return result
}

// failOperation records a store failure on the operation. The apply
// transaction has rolled back, so the durable row is refetched before the
// FAILED transition is written.
func (s *SyncService) failOperation(ctx context.Context, op *syncdomain.SyncOperation, cause error) OperationResultResponse {
	s.logger.Error("operation failed",
		zap.String("client_token", op.ClientToken),
		zap.String("entity_type", op.EntityType),
		zap.Error(cause))

	stored, err := s.operationRepo.FindByClientToken(ctx, op.OrganizationID, op.ClientToken)
	if err != nil {
		return OperationResultResponse{ClientToken: op.ClientToken, Result: ResultFailed, Error: cause.Error()}
	}
	if err := stored.Fail(cause.Error()); err == nil {
		if err := s.operationRepo.Update(ctx, stored); err != nil {
			s.logger.Error("failed to persist FAILED status",
				zap.String("client_token", op.ClientToken), zap.Error(err))
		}
	}
	return OperationResultResponse{
		ClientToken:     op.ClientToken,
		Result:          ResultFailed,
		OperationStatus: stored.Status.String(),
		Error:           cause.Error(),
	}
}

// findDuplicate returns the stored result for a token the organization has
// already seen, or nil for a fresh token. When the fast-path store is wired
// and reports the token unseen, the durable lookup is skipped; duplicates
// whose fast-path entry has expired are still caught by the unique index on
// insert.
func (s *SyncService) findDuplicate(ctx context.Context, organizationID uuid.UUID, clientToken string) *OperationResultResponse {
	if s.idempotency != nil {
		seen, err := s.idempotency.IsProcessed(ctx, idempotencyKey(organizationID, clientToken))
		if err != nil {
			s.logger.Warn("idempotency lookup failed", zap.Error(err))
		} else if !seen {
			return nil
		}
	}
	return s.storedResult(ctx, organizationID, clientToken)
}

// storedResult looks up the durable row for a client token and shapes it as
// a duplicate result, nil when the token is unknown.
func (s *SyncService) storedResult(ctx context.Context, organizationID uuid.UUID, clientToken string) *OperationResultResponse {
	stored, err := s.operationRepo.FindByClientToken(ctx, organizationID, clientToken)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("duplicate lookup failed",
				zap.String("client_token", clientToken), zap.Error(err))
		}
		return nil
	}

	result := &OperationResultResponse{
		ClientToken:     clientToken,
		Result:          ResultDuplicate,
		OperationStatus: stored.Status.String(),
		EntityID:        stored.EntityID,
	}
	if stored.Status == syncdomain.OperationStatusConflict {
		if conflict, err := s.conflictRepo.FindByClientToken(ctx, organizationID, clientToken); err == nil {
			conflictResp := ToConflictResponse(conflict)
			result.Conflict = &conflictResp
		}
	}
	return result
}

func (s *SyncService) markTokenSeen(ctx context.Context, organizationID uuid.UUID, clientToken string) {
	if s.idempotency == nil {
		return
	}
	if _, err := s.idempotency.MarkProcessed(ctx, idempotencyKey(organizationID, clientToken), s.opts.IdempotencyTTL); err != nil {
		s.logger.Warn("failed to mark token seen", zap.Error(err))
	}
}

func idempotencyKey(organizationID uuid.UUID, clientToken string) string {
	return organizationID.String() + ":" + clientToken
}

// Pull returns changes applied by other devices since the given watermark.
// The requesting device's own operations are excluded; it already has them.
func (s *SyncService) Pull(ctx context.Context, organizationID, userID uuid.UUID, req PullRequest) (*PullResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.opts.DefaultPullLimit
	}
	if limit > s.opts.MaxPullLimit {
		limit = s.opts.MaxPullLimit
	}

	since := time.Time{}
	if req.Since != nil {
		since = *req.Since
	}

	ops, err := s.operationRepo.FindCompletedSince(ctx, organizationID, since, req.EntityTypes, req.DeviceID, limit)
	if err != nil {
		return nil, err
	}

	// a saturated page signals a further pull is needed
	hasMore := len(ops) == limit

	changes := make([]ChangeResponse, 0, len(ops))
	for i := range ops {
		changes = append(changes, s.toChange(ctx, &ops[i]))
	}

	s.refreshDeviceState(ctx, organizationID, req.DeviceID, userID, func(state *devicedomain.DeviceSyncState) {
		state.TouchOnline()
		state.RecordIncrementalSync()
	})

	return &PullResponse{
		DeviceID:   req.DeviceID,
		ServerTime: time.Now(),
		Changes:    changes,
		HasMore:    hasMore,
	}, nil
}

// toChange resolves the current record state for a completed operation. If
// the record has been cleaned away, the operation payload stands in.
func (s *SyncService) toChange(ctx context.Context, op *syncdomain.SyncOperation) ChangeResponse {
	change := ChangeResponse{
		EntityType:     op.EntityType,
		Type:           op.Type.String(),
		SourceDeviceID: op.DeviceID,
	}
	if op.SyncedAt != nil {
		change.SyncedAt = *op.SyncedAt
	}
	if op.EntityID == nil {
		change.Data = op.Payload
		return change
	}
	change.EntityID = *op.EntityID

	record, err := s.recordRepo.Find(ctx, op.OrganizationID, op.EntityType, *op.EntityID)
	if err != nil {
		change.Data = op.Payload
		return change
	}
	change.Data = record.Data
	change.Version = record.Version
	change.Deleted = record.Deleted
	return change
}

// GetPendingOperations lists queued operations, optionally for one device
func (s *SyncService) GetPendingOperations(ctx context.Context, organizationID uuid.UUID, deviceID string, limit int) ([]OperationResponse, error) {
	if limit <= 0 {
		limit = s.opts.DefaultPullLimit
	}
	ops, err := s.operationRepo.FindPending(ctx, organizationID, deviceID, limit)
	if err != nil {
		return nil, err
	}
	return ToOperationResponses(ops), nil
}

// GetConflicts lists unresolved conflicts, optionally for one device
func (s *SyncService) GetConflicts(ctx context.Context, organizationID uuid.UUID, deviceID string) ([]ConflictResponse, error) {
	conflicts, err := s.conflictRepo.FindUnresolved(ctx, organizationID, deviceID)
	if err != nil {
		return nil, err
	}
	return ToConflictResponses(conflicts), nil
}

// ResolveConflict settles a manually held conflict. The record write, the
// conflict resolution and the operation's CONFLICT→COMPLETED transition
// commit atomically.
func (s *SyncService) ResolveConflict(ctx context.Context, organizationID uuid.UUID, clientToken string, req ResolveConflictRequest, resolvedBy uuid.UUID) (*ConflictResponse, error) {
	resolution := syncdomain.ConflictResolution(req.Resolution)
	if resolution == syncdomain.ResolutionMerge && len(req.MergedData) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "merge resolution requires merged_data")
	}

	conflict, err := s.conflictRepo.FindByClientToken(ctx, organizationID, clientToken)
	if err != nil {
		return nil, err
	}
	if conflict.Status.IsResolved() {
		// a resolved conflict no longer exists as resolvable work
		return nil, shared.ErrNotFound
	}

	op, err := s.operationRepo.FindByClientToken(ctx, organizationID, clientToken)
	if err != nil {
		return nil, err
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		resolvedData := conflict.ServerData

		switch resolution {
		case syncdomain.ResolutionUseClient:
			if err := s.writeResolvedRecord(ctx, repos, op, op.Payload); err != nil {
				return err
			}
			resolvedData = op.Payload
		case syncdomain.ResolutionMerge:
			if err := s.writeResolvedRecord(ctx, repos, op, req.MergedData); err != nil {
				return err
			}
			resolvedData = req.MergedData
		case syncdomain.ResolutionUseServer:
			// server state stands; nothing to write
		}

		if err := conflict.Resolve(resolution, resolvedData, resolvedBy); err != nil {
			return err
		}
		if err := repos.ConflictRepo().Update(ctx, conflict); err != nil {
			return err
		}
		if err := op.Complete(); err != nil {
			return err
		}
		return repos.OperationRepo().Update(ctx, op)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("conflict resolved",
		zap.String("client_token", clientToken),
		zap.String("resolution", resolution.String()),
		zap.Stringer("resolved_by", resolvedBy))

	response := ToConflictResponse(conflict)
	return &response, nil
}

// writeResolvedRecord applies the chosen data to the record store during
// conflict resolution. A DELETE operation resolves to a tombstone.
func (s *SyncService) writeResolvedRecord(ctx context.Context, repos TransactionalRepositories, op *syncdomain.SyncOperation, data []byte) error {
	if op.EntityID == nil {
		return shared.NewDomainError("INVALID_STATE", "conflicted operation has no entity id")
	}

	record, err := repos.RecordRepo().Find(ctx, op.OrganizationID, op.EntityType, *op.EntityID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		record = syncdomain.NewEntityRecord(op.OrganizationID, op.EntityType, *op.EntityID, data)
		if op.Type == syncdomain.OperationTypeDelete {
			record.MarkDeleted()
		}
		return repos.RecordRepo().Save(ctx, record)
	}

	if op.Type == syncdomain.OperationTypeDelete {
		record.MarkDeleted()
	} else {
		record.ApplyUpdate(data)
	}
	return repos.RecordRepo().Update(ctx, record)
}

// RetryFailed requeues FAILED operations still under the attempt cap and
// runs them through the resolver again. Requeued operations use the manual
// strategy; a repeat mismatch surfaces as a conflict instead of silently
// overwriting. Returns counts of requeued and skipped operations.
func (s *SyncService) RetryFailed(ctx context.Context, organizationID uuid.UUID, maxAttempts int) (*RetryResponse, error) {
	if maxAttempts <= 0 {
		maxAttempts = s.opts.RetryMaxAttempts
	}

	ops, err := s.operationRepo.FindFailed(ctx, organizationID, maxAttempts, s.opts.RetryBatchLimit)
	if err != nil {
		return nil, err
	}

	response := &RetryResponse{}
	for i := range ops {
		op := &ops[i]
		if err := op.ResetForRetry(maxAttempts); err != nil {
			response.Skipped++
			continue
		}
		if err := s.operationRepo.Update(ctx, op); err != nil {
			s.logger.Error("failed to requeue operation",
				zap.String("client_token", op.ClientToken), zap.Error(err))
			response.Skipped++
			continue
		}
		response.Requeued++
		s.executeOperation(ctx, op, syncdomain.StrategyManual)
	}
	return response, nil
}

// CleanupCompleted removes COMPLETED operations older than the retention
// window. FAILED and CONFLICT rows are never removed; they carry unresolved
// work.
func (s *SyncService) CleanupCompleted(ctx context.Context, organizationID uuid.UUID, olderThanDays int) (*CleanupResponse, error) {
	if olderThanDays <= 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "retention window must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	removed, err := s.operationRepo.DeleteCompletedBefore(ctx, organizationID, cutoff)
	if err != nil {
		return nil, err
	}

	s.logger.Info("completed operations cleaned up",
		zap.Stringer("organization_id", organizationID),
		zap.Int("older_than_days", olderThanDays),
		zap.Int64("removed", removed))

	return &CleanupResponse{Removed: removed}, nil
}

// refreshDeviceState updates the device projection after a sync interaction.
// Failures are logged and swallowed; the projection is advisory.
func (s *SyncService) refreshDeviceState(ctx context.Context, organizationID uuid.UUID, deviceID string, userID uuid.UUID, apply func(*devicedomain.DeviceSyncState)) {
	state, err := s.deviceRepo.Find(ctx, organizationID, deviceID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("device state lookup failed",
				zap.String("device_id", deviceID), zap.Error(err))
			return
		}
		state = devicedomain.NewDeviceSyncState(organizationID, deviceID, userID)
	}

	apply(state)

	counts, err := s.operationRepo.CountForDevice(ctx, organizationID, deviceID)
	if err == nil {
		state.UpdateQueueCounts(counts.Pending, counts.Failed, counts.Conflicts)
	}

	if err := s.deviceRepo.Upsert(ctx, state); err != nil {
		s.logger.Warn("device state upsert failed",
			zap.String("device_id", deviceID), zap.Error(err))
	}
}
