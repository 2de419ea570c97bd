package persistence

import (
	"context"

	appsync "github.com/medpoint/backend/internal/application/sync"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"gorm.io/gorm"
)

// GormTransactionScope implements the sync TransactionScope using GORM
// transactions. It provides atomic execution of queue, record store, and
// conflict writes.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appsync.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to the sync repositories
// within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// OperationRepo returns the sync operation repository scoped to the current transaction.
func (r *gormTransactionalRepositories) OperationRepo() syncdomain.SyncOperationRepository {
	return NewGormSyncOperationRepository(r.tx)
}

// RecordRepo returns the entity record repository scoped to the current transaction.
func (r *gormTransactionalRepositories) RecordRepo() syncdomain.EntityRecordRepository {
	return NewGormEntityRecordRepository(r.tx)
}

// ConflictRepo returns the conflict repository scoped to the current transaction.
func (r *gormTransactionalRepositories) ConflictRepo() syncdomain.SyncConflictRepository {
	return NewGormSyncConflictRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appsync.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appsync.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
