package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	appcache "github.com/medpoint/backend/internal/application/cache"
	appsync "github.com/medpoint/backend/internal/application/sync"
	"go.uber.org/zap"
)

// SyncMaintenance is the slice of the sync service the scheduler drives
type SyncMaintenance interface {
	RetryFailed(ctx context.Context, organizationID uuid.UUID, maxAttempts int) (*appsync.RetryResponse, error)
	CleanupCompleted(ctx context.Context, organizationID uuid.UUID, olderThanDays int) (*appsync.CleanupResponse, error)
}

// CacheMaintenance is the slice of the cache service the scheduler drives
type CacheMaintenance interface {
	SweepExpired(ctx context.Context, organizationID uuid.UUID) (*appcache.SweepResponse, error)
}

// OrganizationSource lists the organizations a maintenance pass must visit
type OrganizationSource interface {
	ActiveOrganizations(ctx context.Context) ([]uuid.UUID, error)
}

// MaintenanceConfig holds configuration for the maintenance scheduler
type MaintenanceConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// SweepInterval is how often expired cache entries are removed
	SweepInterval time.Duration

	// RetryInterval is how often failed operations are requeued
	RetryInterval time.Duration

	// CleanupInterval is how often old completed operations are removed
	CleanupInterval time.Duration

	// CleanupRetentionDays is the completed-operation retention window
	CleanupRetentionDays int

	// PassTimeout bounds one full pass over all organizations
	PassTimeout time.Duration
}

// DefaultMaintenanceConfig returns default configuration. The loop is off by
// default; deployments that prefer an external cron hit the HTTP maintenance
// endpoints instead.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Enabled:              false,
		SweepInterval:        time.Hour,
		RetryInterval:        5 * time.Minute,
		CleanupInterval:      24 * time.Hour,
		CleanupRetentionDays: 30,
		PassTimeout:          5 * time.Minute,
	}
}

// MaintenanceScheduler periodically runs the cache sweep, failed-operation
// retry and completed-operation cleanup passes for every active organization.
type MaintenanceScheduler struct {
	syncService  SyncMaintenance
	cacheService CacheMaintenance
	orgs         OrganizationSource
	logger       *zap.Logger
	config       MaintenanceConfig

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewMaintenanceScheduler creates a new maintenance scheduler
func NewMaintenanceScheduler(
	syncService SyncMaintenance,
	cacheService CacheMaintenance,
	orgs OrganizationSource,
	logger *zap.Logger,
	config MaintenanceConfig,
) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		syncService:  syncService,
		cacheService: cacheService,
		orgs:         orgs,
		logger:       logger,
		config:       config,
	}
}

// Start starts the maintenance loops
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("maintenance scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(3)
	go s.runLoop(ctx, s.config.SweepInterval, "cache sweep", s.sweepPass)
	go s.runLoop(ctx, s.config.RetryInterval, "failed-operation retry", s.retryPass)
	go s.runLoop(ctx, s.config.CleanupInterval, "completed-operation cleanup", s.cleanupPass)

	s.logger.Info("maintenance scheduler started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("retry_interval", s.config.RetryInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.logger.Info("maintenance scheduler stopped")
}

// runLoop runs one pass on every tick until the context is cancelled
func (s *MaintenanceScheduler) runLoop(ctx context.Context, interval time.Duration, name string, pass func(context.Context, uuid.UUID) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runPass(ctx, name, pass)
		}
	}
}

// runPass visits every active organization. One organization's failure never
// stops the pass for the others.
func (s *MaintenanceScheduler) runPass(ctx context.Context, name string, pass func(context.Context, uuid.UUID) error) {
	passCtx, cancel := context.WithTimeout(ctx, s.config.PassTimeout)
	defer cancel()

	organizations, err := s.orgs.ActiveOrganizations(passCtx)
	if err != nil {
		s.logger.Error("maintenance pass could not list organizations",
			zap.String("pass", name), zap.Error(err))
		return
	}

	for _, organizationID := range organizations {
		if err := pass(passCtx, organizationID); err != nil {
			s.logger.Error("maintenance pass failed",
				zap.String("pass", name),
				zap.Stringer("organization_id", organizationID),
				zap.Error(err))
		}
	}
}

func (s *MaintenanceScheduler) sweepPass(ctx context.Context, organizationID uuid.UUID) error {
	_, err := s.cacheService.SweepExpired(ctx, organizationID)
	return err
}

func (s *MaintenanceScheduler) retryPass(ctx context.Context, organizationID uuid.UUID) error {
	_, err := s.syncService.RetryFailed(ctx, organizationID, 0)
	return err
}

func (s *MaintenanceScheduler) cleanupPass(ctx context.Context, organizationID uuid.UUID) error {
	_, err := s.syncService.CleanupCompleted(ctx, organizationID, s.config.CleanupRetentionDays)
	return err
}
