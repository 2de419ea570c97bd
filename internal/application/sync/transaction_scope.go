package sync

import (
	"context"

	syncdomain "github.com/medpoint/backend/internal/domain/sync"
)

// TransactionScope provides transactional access to the sync repositories.
// Applying an operation is a version check plus a record write plus a status
// transition; all three must commit or roll back together, otherwise a crash
// between them leaves the queue claiming an operation it never applied.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the sync repositories within a
// transaction. All repositories returned share the same underlying database
// transaction.
type TransactionalRepositories interface {
	// OperationRepo returns the sync operation repository scoped to the current transaction
	OperationRepo() syncdomain.SyncOperationRepository
	// RecordRepo returns the entity record repository scoped to the current transaction
	RecordRepo() syncdomain.EntityRecordRepository
	// ConflictRepo returns the conflict repository scoped to the current transaction
	ConflictRepo() syncdomain.SyncConflictRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for tests running against fake repositories.
type NoOpTransactionScope struct {
	operationRepo syncdomain.SyncOperationRepository
	recordRepo    syncdomain.EntityRecordRepository
	conflictRepo  syncdomain.SyncConflictRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	operationRepo syncdomain.SyncOperationRepository,
	recordRepo syncdomain.EntityRecordRepository,
	conflictRepo syncdomain.SyncConflictRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		operationRepo: operationRepo,
		recordRepo:    recordRepo,
		conflictRepo:  conflictRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// OperationRepo returns the sync operation repository.
func (s *NoOpTransactionScope) OperationRepo() syncdomain.SyncOperationRepository {
	return s.operationRepo
}

// RecordRepo returns the entity record repository.
func (s *NoOpTransactionScope) RecordRepo() syncdomain.EntityRecordRepository {
	return s.recordRepo
}

// ConflictRepo returns the conflict repository.
func (s *NoOpTransactionScope) ConflictRepo() syncdomain.SyncConflictRepository {
	return s.conflictRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
