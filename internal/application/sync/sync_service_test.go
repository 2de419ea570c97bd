package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medpoint/backend/internal/domain/shared"
	syncdomain "github.com/medpoint/backend/internal/domain/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serviceFixture struct {
	service    *SyncService
	operations *fakeOperationRepo
	conflicts  *fakeConflictRepo
	records    *fakeRecordRepo
	devices    *fakeDeviceRepo
	orgID      uuid.UUID
	userID     uuid.UUID
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	operations := newFakeOperationRepo()
	conflicts := newFakeConflictRepo()
	records := newFakeRecordRepo()
	devices := newFakeDeviceRepo()

	scope := NewNoOpTransactionScope(operations, records, conflicts)
	resolver := NewResolver(syncdomain.NewStrategyRegistry(), zap.NewNop())

	service := NewSyncService(operations, conflicts, records, devices,
		scope, resolver, zap.NewNop(), Options{})

	return &serviceFixture{
		service:    service,
		operations: operations,
		conflicts:  conflicts,
		records:    records,
		devices:    devices,
		orgID:      uuid.New(),
		userID:     uuid.New(),
	}
}

func (f *serviceFixture) seedRecord(t *testing.T, entityType string, data string) *syncdomain.EntityRecord {
	t.Helper()
	record := syncdomain.NewEntityRecord(f.orgID, entityType, uuid.New(), json.RawMessage(data))
	require.NoError(t, f.records.Save(context.Background(), record))
	return record
}

func int64Ptr(v int64) *int64 { return &v }

func TestSyncService_Push_Create(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-create-1",
			Type:        "CREATE",
			EntityType:  "vital_signs",
			Payload:     json.RawMessage(`{"bp":"120/80"}`),
		}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	result := resp.Results[0]
	assert.Equal(t, ResultCompleted, result.Result)
	assert.Equal(t, 1, resp.Completed)
	require.NotNil(t, result.EntityID)
	require.NotNil(t, result.NewVersion)
	assert.Equal(t, int64(1), *result.NewVersion)

	record, err := f.records.Find(context.Background(), f.orgID, "vital_signs", *result.EntityID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bp":"120/80"}`, string(record.Data))
}

func TestSyncService_Push_DuplicateToken(t *testing.T) {
	f := newServiceFixture(t)

	push := PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-dup",
			Type:        "CREATE",
			EntityType:  "appointment",
			Payload:     json.RawMessage(`{"status":"scheduled"}`),
		}},
	}

	first, err := f.service.Push(context.Background(), f.orgID, f.userID, push)
	require.NoError(t, err)
	require.Equal(t, ResultCompleted, first.Results[0].Result)

	second, err := f.service.Push(context.Background(), f.orgID, f.userID, push)
	require.NoError(t, err)

	result := second.Results[0]
	assert.Equal(t, ResultDuplicate, result.Result)
	assert.Equal(t, "COMPLETED", result.OperationStatus)
	assert.Equal(t, 1, second.Duplicates)

	// the duplicate must not have re-applied the mutation
	record, err := f.records.Find(context.Background(), f.orgID, "appointment", *first.Results[0].EntityID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Version)
}

func TestSyncService_Push_VersionedUpdate(t *testing.T) {
	f := newServiceFixture(t)
	record := f.seedRecord(t, "appointment", `{"status":"scheduled"}`)

	t.Run("matching base version applies", func(t *testing.T) {
		resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
			DeviceID: "exam-room-3",
			Operations: []PushOperationRequest{{
				ClientToken: "tok-upd-1",
				Type:        "UPDATE",
				EntityType:  "appointment",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"status":"completed"}`),
				BaseVersion: int64Ptr(1),
			}},
		})
		require.NoError(t, err)

		result := resp.Results[0]
		assert.Equal(t, ResultCompleted, result.Result)
		require.NotNil(t, result.NewVersion)
		assert.Equal(t, int64(2), *result.NewVersion)

		updated, err := f.records.Find(context.Background(), f.orgID, "appointment", record.EntityID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"completed"}`, string(updated.Data))
	})

	t.Run("stale base version under manual strategy holds a conflict", func(t *testing.T) {
		resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
			DeviceID: "tablet-7",
			Operations: []PushOperationRequest{{
				ClientToken: "tok-upd-stale",
				Type:        "UPDATE",
				EntityType:  "appointment",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"status":"cancelled"}`),
				BaseVersion: int64Ptr(1), // server is now at 2
			}},
		})
		require.NoError(t, err)

		result := resp.Results[0]
		assert.Equal(t, ResultConflict, result.Result)
		require.NotNil(t, result.Conflict)
		assert.Equal(t, "detected", result.Conflict.Status)

		// server state untouched
		current, err := f.records.Find(context.Background(), f.orgID, "appointment", record.EntityID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"completed"}`, string(current.Data))

		stored, err := f.operations.FindByClientToken(context.Background(), f.orgID, "tok-upd-stale")
		require.NoError(t, err)
		assert.Equal(t, syncdomain.OperationStatusConflict, stored.Status)
	})

	t.Run("later operations against the conflicted entity stay blocked", func(t *testing.T) {
		resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
			DeviceID: "exam-room-3",
			Operations: []PushOperationRequest{{
				ClientToken: "tok-upd-blocked",
				Type:        "UPDATE",
				EntityType:  "appointment",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"status":"no_show"}`),
				BaseVersion: int64Ptr(2),
			}},
		})
		require.NoError(t, err)

		result := resp.Results[0]
		assert.Equal(t, ResultBlocked, result.Result)

		stored, err := f.operations.FindByClientToken(context.Background(), f.orgID, "tok-upd-blocked")
		require.NoError(t, err)
		assert.Equal(t, syncdomain.OperationStatusPending, stored.Status)
	})
}

func TestSyncService_Push_ClientWins(t *testing.T) {
	f := newServiceFixture(t)
	record := f.seedRecord(t, "note", `{"text":"server"}`)
	record.ApplyUpdate(json.RawMessage(`{"text":"server v2"}`))
	require.NoError(t, f.records.Update(context.Background(), record))

	resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Strategy: "client_wins",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-cw",
			Type:        "UPDATE",
			EntityType:  "note",
			EntityID:    &record.EntityID,
			Payload:     json.RawMessage(`{"text":"client"}`),
			BaseVersion: int64Ptr(1), // stale
		}},
	})
	require.NoError(t, err)

	result := resp.Results[0]
	assert.Equal(t, ResultCompleted, result.Result)
	assert.Nil(t, result.Conflict)

	current, err := f.records.Find(context.Background(), f.orgID, "note", record.EntityID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"client"}`, string(current.Data))
	assert.Equal(t, int64(3), current.Version)

	// no conflict row, but the overwritten state is kept for audit
	unresolved, err := f.conflicts.FindUnresolved(context.Background(), f.orgID, "")
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	stored, err := f.operations.FindByClientToken(context.Background(), f.orgID, "tok-cw")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PriorServerData)
}

func TestSyncService_Push_ServerWins(t *testing.T) {
	f := newServiceFixture(t)
	record := f.seedRecord(t, "note", `{"text":"server"}`)
	record.ApplyUpdate(json.RawMessage(`{"text":"server v2"}`))
	require.NoError(t, f.records.Update(context.Background(), record))

	resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Strategy: "server_wins",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-sw",
			Type:        "UPDATE",
			EntityType:  "note",
			EntityID:    &record.EntityID,
			Payload:     json.RawMessage(`{"text":"client"}`),
			BaseVersion: int64Ptr(1),
		}},
	})
	require.NoError(t, err)

	result := resp.Results[0]
	assert.Equal(t, ResultCompleted, result.Result)

	// server state stands, version unchanged
	current, err := f.records.Find(context.Background(), f.orgID, "note", record.EntityID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"server v2"}`, string(current.Data))
	assert.Equal(t, int64(2), current.Version)
}

func TestSyncService_Push_BestEffort(t *testing.T) {
	f := newServiceFixture(t)
	record := f.seedRecord(t, "note", `{"text":"server"}`)
	record.ApplyUpdate(json.RawMessage(`{"text":"server v2"}`))
	require.NoError(t, f.records.Update(context.Background(), record))

	// no base version: applies unconditionally even though the server moved
	resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-be",
			Type:        "UPDATE",
			EntityType:  "note",
			EntityID:    &record.EntityID,
			Payload:     json.RawMessage(`{"text":"best effort"}`),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, resp.Results[0].Result)

	current, err := f.records.Find(context.Background(), f.orgID, "note", record.EntityID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"best effort"}`, string(current.Data))
}

func TestSyncService_Push_BatchOrderPreserved(t *testing.T) {
	f := newServiceFixture(t)
	record := f.seedRecord(t, "note", `{"text":"draft"}`)

	// two updates to the same entity in one batch apply in array order
	resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{
			{
				ClientToken: "tok-order-a",
				Type:        "UPDATE",
				EntityType:  "note",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"text":"first edit"}`),
			},
			{
				ClientToken: "tok-order-b",
				Type:        "UPDATE",
				EntityType:  "note",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"text":"second edit"}`),
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, ResultCompleted, resp.Results[0].Result)
	assert.Equal(t, ResultCompleted, resp.Results[1].Result)

	// the later operation's write is the final state
	current, err := f.records.Find(context.Background(), f.orgID, "note", record.EntityID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"second edit"}`, string(current.Data))
	assert.Equal(t, int64(3), current.Version)
}

func TestSyncService_Push_DeleteMissingEntity(t *testing.T) {
	f := newServiceFixture(t)
	missingID := uuid.New()

	resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-del-missing",
			Type:        "DELETE",
			EntityType:  "appointment",
			EntityID:    &missingID,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, resp.Results[0].Result)
}

func TestSyncService_Push_InvalidOperation(t *testing.T) {
	f := newServiceFixture(t)

	resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-bad-type",
			Type:        "PATCH",
			EntityType:  "appointment",
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, ResultInvalid, resp.Results[0].Result)
	assert.Equal(t, 1, resp.Failed)
}

func TestSyncService_Push_BatchTooLarge(t *testing.T) {
	f := newServiceFixture(t)

	ops := make([]PushOperationRequest, 0, 101)
	for i := 0; i < 101; i++ {
		ops = append(ops, PushOperationRequest{
			ClientToken: uuid.NewString(),
			Type:        "CREATE",
			EntityType:  "note",
		})
	}

	_, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID:   "exam-room-3",
		Operations: ops,
	})
	require.Error(t, err)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "BATCH_TOO_LARGE", domainErr.Code)
}

func TestSyncService_Push_UpdatesDeviceState(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-device",
			Type:        "CREATE",
			EntityType:  "note",
			Payload:     json.RawMessage(`{}`),
		}},
	})
	require.NoError(t, err)

	state, err := f.devices.Find(context.Background(), f.orgID, "exam-room-3")
	require.NoError(t, err)
	assert.True(t, state.IsOnline)
	assert.NotNil(t, state.LastOnlineAt)
	assert.Equal(t, f.userID, state.UserID)
}

func TestSyncService_Pull(t *testing.T) {
	f := newServiceFixture(t)

	// device A pushes two changes
	_, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{
			{ClientToken: "tok-pull-1", Type: "CREATE", EntityType: "appointment", Payload: json.RawMessage(`{"n":1}`)},
			{ClientToken: "tok-pull-2", Type: "CREATE", EntityType: "prescription", Payload: json.RawMessage(`{"n":2}`)},
		},
	})
	require.NoError(t, err)

	t.Run("another device sees the changes", func(t *testing.T) {
		resp, err := f.service.Pull(context.Background(), f.orgID, f.userID, PullRequest{
			DeviceID: "tablet-7",
		})
		require.NoError(t, err)
		assert.Len(t, resp.Changes, 2)
		assert.False(t, resp.HasMore)
	})

	t.Run("the originating device does not echo its own changes", func(t *testing.T) {
		resp, err := f.service.Pull(context.Background(), f.orgID, f.userID, PullRequest{
			DeviceID: "exam-room-3",
		})
		require.NoError(t, err)
		assert.Empty(t, resp.Changes)
	})

	t.Run("entity type filter narrows the feed", func(t *testing.T) {
		resp, err := f.service.Pull(context.Background(), f.orgID, f.userID, PullRequest{
			DeviceID:    "tablet-7",
			EntityTypes: []string{"prescription"},
		})
		require.NoError(t, err)
		require.Len(t, resp.Changes, 1)
		assert.Equal(t, "prescription", resp.Changes[0].EntityType)
	})

	t.Run("watermark excludes already-seen changes", func(t *testing.T) {
		future := time.Now().Add(time.Minute)
		resp, err := f.service.Pull(context.Background(), f.orgID, f.userID, PullRequest{
			DeviceID: "tablet-7",
			Since:    &future,
		})
		require.NoError(t, err)
		assert.Empty(t, resp.Changes)
	})

	t.Run("saturated page signals a further pull", func(t *testing.T) {
		resp, err := f.service.Pull(context.Background(), f.orgID, f.userID, PullRequest{
			DeviceID: "tablet-7",
			Limit:    2,
		})
		require.NoError(t, err)
		assert.Len(t, resp.Changes, 2)
		assert.True(t, resp.HasMore)
	})

	t.Run("short page ends the feed", func(t *testing.T) {
		resp, err := f.service.Pull(context.Background(), f.orgID, f.userID, PullRequest{
			DeviceID: "tablet-7",
			Limit:    5,
		})
		require.NoError(t, err)
		assert.Len(t, resp.Changes, 2)
		assert.False(t, resp.HasMore)
	})

	t.Run("pull stamps the incremental sync time", func(t *testing.T) {
		state, err := f.devices.Find(context.Background(), f.orgID, "tablet-7")
		require.NoError(t, err)
		assert.NotNil(t, state.LastIncrementalSyncAt)
	})
}

func TestSyncService_ResolveConflict(t *testing.T) {
	newConflictFixture := func(t *testing.T) (*serviceFixture, *syncdomain.EntityRecord, string) {
		f := newServiceFixture(t)
		record := f.seedRecord(t, "appointment", `{"status":"scheduled"}`)
		record.ApplyUpdate(json.RawMessage(`{"status":"completed"}`))
		require.NoError(t, f.records.Update(context.Background(), record))

		token := "tok-conflict"
		resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
			DeviceID: "tablet-7",
			Operations: []PushOperationRequest{{
				ClientToken: token,
				Type:        "UPDATE",
				EntityType:  "appointment",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"status":"cancelled"}`),
				BaseVersion: int64Ptr(1),
			}},
		})
		require.NoError(t, err)
		require.Equal(t, ResultConflict, resp.Results[0].Result)
		return f, record, token
	}

	t.Run("use_client writes the client payload", func(t *testing.T) {
		f, record, token := newConflictFixture(t)

		resolved, err := f.service.ResolveConflict(context.Background(), f.orgID, token,
			ResolveConflictRequest{Resolution: "use_client"}, f.userID)
		require.NoError(t, err)
		assert.Equal(t, "resolved_use_client", resolved.Status)

		current, err := f.records.Find(context.Background(), f.orgID, "appointment", record.EntityID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"cancelled"}`, string(current.Data))
		assert.Equal(t, int64(3), current.Version)

		op, err := f.operations.FindByClientToken(context.Background(), f.orgID, token)
		require.NoError(t, err)
		assert.Equal(t, syncdomain.OperationStatusCompleted, op.Status)
	})

	t.Run("use_server keeps the server state", func(t *testing.T) {
		f, record, token := newConflictFixture(t)

		resolved, err := f.service.ResolveConflict(context.Background(), f.orgID, token,
			ResolveConflictRequest{Resolution: "use_server"}, f.userID)
		require.NoError(t, err)
		assert.Equal(t, "resolved_use_server", resolved.Status)

		current, err := f.records.Find(context.Background(), f.orgID, "appointment", record.EntityID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"completed"}`, string(current.Data))
		assert.Equal(t, int64(2), current.Version)
	})

	t.Run("merge writes the merged payload", func(t *testing.T) {
		f, record, token := newConflictFixture(t)

		merged := json.RawMessage(`{"status":"completed","note":"cancelled by patient"}`)
		resolved, err := f.service.ResolveConflict(context.Background(), f.orgID, token,
			ResolveConflictRequest{Resolution: "merge", MergedData: merged}, f.userID)
		require.NoError(t, err)
		assert.Equal(t, "resolved_merge", resolved.Status)
		assert.JSONEq(t, string(merged), string(resolved.ResolvedData))

		current, err := f.records.Find(context.Background(), f.orgID, "appointment", record.EntityID)
		require.NoError(t, err)
		assert.JSONEq(t, string(merged), string(current.Data))
	})

	t.Run("merge without merged data is rejected", func(t *testing.T) {
		f, _, token := newConflictFixture(t)

		_, err := f.service.ResolveConflict(context.Background(), f.orgID, token,
			ResolveConflictRequest{Resolution: "merge"}, f.userID)
		require.Error(t, err)
	})

	t.Run("resolving twice reports the conflict as gone", func(t *testing.T) {
		f, _, token := newConflictFixture(t)

		_, err := f.service.ResolveConflict(context.Background(), f.orgID, token,
			ResolveConflictRequest{Resolution: "use_server"}, f.userID)
		require.NoError(t, err)

		_, err = f.service.ResolveConflict(context.Background(), f.orgID, token,
			ResolveConflictRequest{Resolution: "use_client"}, f.userID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("resolution unblocks pushes against the entity", func(t *testing.T) {
		f, record, token := newConflictFixture(t)

		_, err := f.service.ResolveConflict(context.Background(), f.orgID, token,
			ResolveConflictRequest{Resolution: "use_server"}, f.userID)
		require.NoError(t, err)

		resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
			DeviceID: "exam-room-3",
			Operations: []PushOperationRequest{{
				ClientToken: "tok-after-resolve",
				Type:        "UPDATE",
				EntityType:  "appointment",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"status":"rescheduled"}`),
				BaseVersion: int64Ptr(2),
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, ResultCompleted, resp.Results[0].Result)
	})
}

func TestSyncService_RetryFailed(t *testing.T) {
	t.Run("requeues and reprocesses failed operations", func(t *testing.T) {
		f := newServiceFixture(t)
		record := f.seedRecord(t, "note", `{"text":"v1"}`)

		// first attempt fails at the record store
		f.records.failUpdate = assert.AnError
		resp, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
			DeviceID: "exam-room-3",
			Operations: []PushOperationRequest{{
				ClientToken: "tok-retry",
				Type:        "UPDATE",
				EntityType:  "note",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"text":"v2"}`),
				BaseVersion: int64Ptr(1),
			}},
		})
		require.NoError(t, err)
		require.Equal(t, ResultFailed, resp.Results[0].Result)

		// store recovers; retry pass succeeds
		f.records.failUpdate = nil
		retry, err := f.service.RetryFailed(context.Background(), f.orgID, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, retry.Requeued)
		assert.Equal(t, 0, retry.Skipped)

		op, err := f.operations.FindByClientToken(context.Background(), f.orgID, "tok-retry")
		require.NoError(t, err)
		assert.Equal(t, syncdomain.OperationStatusCompleted, op.Status)

		current, err := f.records.Find(context.Background(), f.orgID, "note", record.EntityID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"text":"v2"}`, string(current.Data))
	})

	t.Run("operations at the attempt cap stay failed", func(t *testing.T) {
		f := newServiceFixture(t)
		record := f.seedRecord(t, "note", `{"text":"v1"}`)
		f.records.failUpdate = assert.AnError

		_, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
			DeviceID: "exam-room-3",
			Operations: []PushOperationRequest{{
				ClientToken: "tok-exhausted",
				Type:        "UPDATE",
				EntityType:  "note",
				EntityID:    &record.EntityID,
				Payload:     json.RawMessage(`{"text":"v2"}`),
				BaseVersion: int64Ptr(1),
			}},
		})
		require.NoError(t, err)

		// cap of 1: the single recorded attempt exhausts the budget
		retry, err := f.service.RetryFailed(context.Background(), f.orgID, 1)
		require.NoError(t, err)
		assert.Equal(t, 0, retry.Requeued)

		op, err := f.operations.FindByClientToken(context.Background(), f.orgID, "tok-exhausted")
		require.NoError(t, err)
		assert.Equal(t, syncdomain.OperationStatusFailed, op.Status)
	})
}

func TestSyncService_CleanupCompleted(t *testing.T) {
	f := newServiceFixture(t)

	// seed a completed operation synced 40 days ago
	op, err := syncdomain.NewSyncOperation(f.orgID, "tok-old", "exam-room-3", f.userID,
		syncdomain.OperationTypeCreate, "note")
	require.NoError(t, err)
	require.NoError(t, op.MarkProcessing())
	require.NoError(t, op.Complete())
	old := time.Now().AddDate(0, 0, -40)
	op.SyncedAt = &old
	require.NoError(t, f.operations.Save(context.Background(), op))

	t.Run("removes operations past the retention window", func(t *testing.T) {
		resp, err := f.service.CleanupCompleted(context.Background(), f.orgID, 30)
		require.NoError(t, err)
		assert.Equal(t, int64(1), resp.Removed)

		_, err = f.operations.FindByClientToken(context.Background(), f.orgID, "tok-old")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("rejects a non-positive window", func(t *testing.T) {
		_, err := f.service.CleanupCompleted(context.Background(), f.orgID, 0)
		assert.Error(t, err)
	})
}

func TestSyncService_GetPendingAndConflicts(t *testing.T) {
	f := newServiceFixture(t)
	record := f.seedRecord(t, "appointment", `{"status":"scheduled"}`)
	record.ApplyUpdate(json.RawMessage(`{"status":"completed"}`))
	require.NoError(t, f.records.Update(context.Background(), record))

	_, err := f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "tablet-7",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-c1",
			Type:        "UPDATE",
			EntityType:  "appointment",
			EntityID:    &record.EntityID,
			Payload:     json.RawMessage(`{"status":"cancelled"}`),
			BaseVersion: int64Ptr(1),
		}},
	})
	require.NoError(t, err)

	conflicts, err := f.service.GetConflicts(context.Background(), f.orgID, "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "tok-c1", conflicts[0].ClientToken)

	// a blocked follow-up stays pending and is listed
	_, err = f.service.Push(context.Background(), f.orgID, f.userID, PushRequest{
		DeviceID: "exam-room-3",
		Operations: []PushOperationRequest{{
			ClientToken: "tok-c2",
			Type:        "UPDATE",
			EntityType:  "appointment",
			EntityID:    &record.EntityID,
			Payload:     json.RawMessage(`{"status":"no_show"}`),
			BaseVersion: int64Ptr(2),
		}},
	})
	require.NoError(t, err)

	pending, err := f.service.GetPendingOperations(context.Background(), f.orgID, "", 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "tok-c2", pending[0].ClientToken)
}
