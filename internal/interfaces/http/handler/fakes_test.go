package handler

import (
	"context"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	cachedomain "github.com/medpoint/backend/internal/domain/cache"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
	"github.com/medpoint/backend/internal/domain/shared"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
)

// In-memory repository fakes for handler tests. Handlers are exercised
// against real application services backed by these, so the tests cover the
// whole HTTP-to-domain path without a database.

type fakeOperationRepo struct {
	mu  gosync.Mutex
	ops map[uuid.UUID]*syncdomain.SyncOperation
}

func newFakeOperationRepo() *fakeOperationRepo {
	return &fakeOperationRepo{ops: make(map[uuid.UUID]*syncdomain.SyncOperation)}
}

func (f *fakeOperationRepo) Save(_ context.Context, op *syncdomain.SyncOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.ops {
		if existing.OrganizationID == op.OrganizationID && existing.ClientToken == op.ClientToken {
			return shared.ErrAlreadyExists
		}
	}
	clone := *op
	f.ops[op.ID] = &clone
	return nil
}

func (f *fakeOperationRepo) Update(_ context.Context, op *syncdomain.SyncOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ops[op.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *op
	f.ops[op.ID] = &clone
	return nil
}

func (f *fakeOperationRepo) FindByClientToken(_ context.Context, organizationID uuid.UUID, clientToken string) (*syncdomain.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range f.ops {
		if op.OrganizationID == organizationID && op.ClientToken == clientToken {
			clone := *op
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeOperationRepo) FindPending(_ context.Context, organizationID uuid.UUID, deviceID string, limit int) ([]syncdomain.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []syncdomain.SyncOperation
	for _, op := range f.ops {
		if op.OrganizationID != organizationID || op.Status != syncdomain.OperationStatusPending {
			continue
		}
		if deviceID != "" && op.DeviceID != deviceID {
			continue
		}
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].BatchSeq < out[j].BatchSeq
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOperationRepo) FindCompletedSince(_ context.Context, organizationID uuid.UUID, since time.Time, entityTypes []string, excludeDeviceID string, limit int) ([]syncdomain.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []syncdomain.SyncOperation
	for _, op := range f.ops {
		if op.OrganizationID != organizationID || op.Status != syncdomain.OperationStatusCompleted {
			continue
		}
		if op.SyncedAt == nil || !op.SyncedAt.After(since) {
			continue
		}
		if excludeDeviceID != "" && op.DeviceID == excludeDeviceID {
			continue
		}
		if len(entityTypes) > 0 && !containsString(entityTypes, op.EntityType) {
			continue
		}
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyncedAt.Before(*out[j].SyncedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOperationRepo) FindFailed(_ context.Context, organizationID uuid.UUID, maxAttempts int, limit int) ([]syncdomain.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []syncdomain.SyncOperation
	for _, op := range f.ops {
		if op.OrganizationID != organizationID || op.Status != syncdomain.OperationStatusFailed {
			continue
		}
		if op.Attempts >= maxAttempts {
			continue
		}
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeOperationRepo) HasUnresolvedConflictForEntity(_ context.Context, organizationID uuid.UUID, entityType string, entityID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range f.ops {
		if op.OrganizationID == organizationID &&
			op.EntityType == entityType &&
			op.EntityID != nil && *op.EntityID == entityID &&
			op.Status == syncdomain.OperationStatusConflict {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOperationRepo) CountForDevice(_ context.Context, organizationID uuid.UUID, deviceID string) (syncdomain.QueueCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var counts syncdomain.QueueCounts
	for _, op := range f.ops {
		if op.OrganizationID != organizationID || op.DeviceID != deviceID {
			continue
		}
		switch op.Status {
		case syncdomain.OperationStatusPending:
			counts.Pending++
		case syncdomain.OperationStatusFailed:
			counts.Failed++
		case syncdomain.OperationStatusConflict:
			counts.Conflicts++
		}
	}
	return counts, nil
}

func (f *fakeOperationRepo) DeleteCompletedBefore(_ context.Context, organizationID uuid.UUID, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for id, op := range f.ops {
		if op.OrganizationID == organizationID &&
			op.Status == syncdomain.OperationStatusCompleted &&
			op.SyncedAt != nil && op.SyncedAt.Before(cutoff) {
			delete(f.ops, id)
			removed++
		}
	}
	return removed, nil
}

type fakeConflictRepo struct {
	mu        gosync.Mutex
	conflicts map[uuid.UUID]*syncdomain.SyncConflict
}

func newFakeConflictRepo() *fakeConflictRepo {
	return &fakeConflictRepo{conflicts: make(map[uuid.UUID]*syncdomain.SyncConflict)}
}

func (f *fakeConflictRepo) Save(_ context.Context, conflict *syncdomain.SyncConflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *conflict
	f.conflicts[conflict.ID] = &clone
	return nil
}

func (f *fakeConflictRepo) Update(_ context.Context, conflict *syncdomain.SyncConflict) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conflicts[conflict.ID]; !ok {
		return shared.ErrNotFound
	}
	clone := *conflict
	f.conflicts[conflict.ID] = &clone
	return nil
}

func (f *fakeConflictRepo) FindByClientToken(_ context.Context, organizationID uuid.UUID, clientToken string) (*syncdomain.SyncConflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conflicts {
		if c.OrganizationID == organizationID && c.ClientToken == clientToken {
			clone := *c
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeConflictRepo) FindUnresolved(_ context.Context, organizationID uuid.UUID, deviceID string) ([]syncdomain.SyncConflict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []syncdomain.SyncConflict
	for _, c := range f.conflicts {
		if c.OrganizationID != organizationID || c.Status.IsResolved() {
			continue
		}
		if deviceID != "" && c.DeviceID != deviceID {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type fakeRecordRepo struct {
	mu      gosync.Mutex
	records map[string]*syncdomain.EntityRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*syncdomain.EntityRecord)}
}

func recordKey(organizationID uuid.UUID, entityType string, entityID uuid.UUID) string {
	return strings.Join([]string{organizationID.String(), entityType, entityID.String()}, "|")
}

func (f *fakeRecordRepo) Find(_ context.Context, organizationID uuid.UUID, entityType string, entityID uuid.UUID) (*syncdomain.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[recordKey(organizationID, entityType, entityID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeRecordRepo) Save(_ context.Context, record *syncdomain.EntityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recordKey(record.OrganizationID, record.EntityType, record.EntityID)
	if _, ok := f.records[key]; ok {
		return shared.ErrAlreadyExists
	}
	clone := *record
	f.records[key] = &clone
	return nil
}

func (f *fakeRecordRepo) Update(_ context.Context, record *syncdomain.EntityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recordKey(record.OrganizationID, record.EntityType, record.EntityID)
	if _, ok := f.records[key]; !ok {
		return shared.ErrNotFound
	}
	clone := *record
	f.records[key] = &clone
	return nil
}

func (f *fakeRecordRepo) FindRecentByType(_ context.Context, organizationID uuid.UUID, entityType string, since time.Time, limit int) ([]syncdomain.EntityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []syncdomain.EntityRecord
	for _, record := range f.records {
		if record.OrganizationID != organizationID || record.EntityType != entityType {
			continue
		}
		if record.Deleted || record.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeDeviceRepo struct {
	mu     gosync.Mutex
	states map[string]*devicedomain.DeviceSyncState
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{states: make(map[string]*devicedomain.DeviceSyncState)}
}

func (f *fakeDeviceRepo) Upsert(_ context.Context, state *devicedomain.DeviceSyncState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *state
	f.states[state.OrganizationID.String()+"|"+state.DeviceID] = &clone
	return nil
}

func (f *fakeDeviceRepo) Find(_ context.Context, organizationID uuid.UUID, deviceID string) (*devicedomain.DeviceSyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[organizationID.String()+"|"+deviceID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *state
	return &clone, nil
}

func (f *fakeDeviceRepo) FindAll(_ context.Context, organizationID uuid.UUID) ([]devicedomain.DeviceSyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []devicedomain.DeviceSyncState
	for _, state := range f.states {
		if state.OrganizationID == organizationID {
			out = append(out, *state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

type fakeCacheRepo struct {
	mu      gosync.Mutex
	entries map[string]*cachedomain.CacheEntry
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: make(map[string]*cachedomain.CacheEntry)}
}

func cacheEntryKey(organizationID uuid.UUID, deviceID, entityType string, entityID uuid.UUID) string {
	return strings.Join([]string{organizationID.String(), deviceID, entityType, entityID.String()}, "|")
}

func (f *fakeCacheRepo) Upsert(_ context.Context, entry *cachedomain.CacheEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *entry
	f.entries[cacheEntryKey(entry.OrganizationID, entry.DeviceID, entry.EntityType, entry.EntityID)] = &clone
	return nil
}

func (f *fakeCacheRepo) Find(_ context.Context, organizationID uuid.UUID, deviceID, entityType string, entityID uuid.UUID) (*cachedomain.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[cacheEntryKey(organizationID, deviceID, entityType, entityID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (f *fakeCacheRepo) FindByDevice(_ context.Context, organizationID uuid.UUID, deviceID string) ([]cachedomain.CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cachedomain.CacheEntry
	for _, entry := range f.entries {
		if entry.OrganizationID == organizationID && entry.DeviceID == deviceID {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CachedAt.After(out[j].CachedAt) })
	return out, nil
}

func (f *fakeCacheRepo) DeleteExpired(_ context.Context, organizationID uuid.UUID, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for key, entry := range f.entries {
		if entry.OrganizationID == organizationID && entry.IsExpired(now) {
			delete(f.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeCacheRepo) DeleteByDevice(_ context.Context, organizationID uuid.UUID, deviceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for key, entry := range f.entries {
		if entry.OrganizationID == organizationID && entry.DeviceID == deviceID {
			delete(f.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeCacheRepo) StatsForDevice(_ context.Context, organizationID uuid.UUID, deviceID string) (cachedomain.CacheStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats cachedomain.CacheStats
	for _, entry := range f.entries {
		if entry.OrganizationID == organizationID && entry.DeviceID == deviceID {
			stats.Entries++
			stats.TotalSize += int64(len(entry.Data))
		}
	}
	return stats, nil
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// Interface guards
var _ syncdomain.SyncOperationRepository = (*fakeOperationRepo)(nil)
var _ syncdomain.SyncConflictRepository = (*fakeConflictRepo)(nil)
var _ syncdomain.EntityRecordRepository = (*fakeRecordRepo)(nil)
var _ devicedomain.DeviceSyncStateRepository = (*fakeDeviceRepo)(nil)
var _ cachedomain.CacheEntryRepository = (*fakeCacheRepo)(nil)
