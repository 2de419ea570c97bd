package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	cacheapp "github.com/medpoint/backend/internal/application/cache"
	cachedomain "github.com/medpoint/backend/internal/domain/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTTLPolicy() cachedomain.TTLPolicy {
	policy := cachedomain.NewTTLPolicy(time.Hour)
	policy.PerType["schedule"] = time.Minute
	return policy
}

type cacheHandlerFixture struct {
	router  *gin.Engine
	entries *fakeCacheRepo
	orgID   uuid.UUID
}

func newCacheHandlerFixture(t *testing.T) *cacheHandlerFixture {
	t.Helper()

	entries := newFakeCacheRepo()
	devices := newFakeDeviceRepo()
	service := cacheapp.NewCacheService(entries, devices, newTestTTLPolicy(), zap.NewNop())
	h := NewCacheHandler(service)

	router := gin.New()
	api := router.Group("/api/v1")
	api.PUT("/cache/entities", h.CacheEntity)
	api.GET("/cache/entities/:type/:id", h.GetCachedEntity)
	api.GET("/cache/devices/:deviceId", h.GetDeviceCache)
	api.DELETE("/cache/devices/:deviceId", h.ClearDeviceCache)
	api.POST("/cache/sweep", h.SweepExpired)

	return &cacheHandlerFixture{
		router:  router,
		entries: entries,
		orgID:   uuid.New(),
	}
}

func (f *cacheHandlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-ID", f.orgID.String())

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCacheHandlerCacheAndGet(t *testing.T) {
	f := newCacheHandlerFixture(t)
	entityID := uuid.New()

	w := f.do(t, http.MethodPut, "/api/v1/cache/entities", cacheapp.CacheEntityRequest{
		DeviceID:   "exam-room-3",
		EntityType: "patient",
		EntityID:   entityID,
		Data:       json.RawMessage(`{"name":"Lee"}`),
		Version:    3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored := decodeData[cacheapp.CacheEntryResponse](t, w)
	assert.Equal(t, int64(3), stored.Version)
	assert.False(t, stored.Expired)

	w = f.do(t, http.MethodGet, "/api/v1/cache/entities/patient/"+entityID.String()+"?device_id=exam-room-3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fetched := decodeData[cacheapp.CacheEntryResponse](t, w)
	assert.JSONEq(t, `{"name":"Lee"}`, string(fetched.Data))
}

func TestCacheHandlerGetValidation(t *testing.T) {
	f := newCacheHandlerFixture(t)

	t.Run("missing entry returns 404", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/cache/entities/patient/"+uuid.NewString()+"?device_id=exam-room-3", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing device_id returns 400", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/cache/entities/patient/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed entity id returns 400", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/cache/entities/patient/abc?device_id=exam-room-3", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCacheHandlerDeviceCacheLifecycle(t *testing.T) {
	f := newCacheHandlerFixture(t)

	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodPut, "/api/v1/cache/entities", cacheapp.CacheEntityRequest{
			DeviceID:   "exam-room-3",
			EntityType: "appointment",
			EntityID:   uuid.New(),
			Data:       json.RawMessage(`{"status":"scheduled"}`),
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/cache/devices/exam-room-3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decodeData[cacheapp.DeviceCacheResponse](t, w)
	assert.Equal(t, int64(3), listing.Count)
	assert.Len(t, listing.Entries, 3)
	assert.Positive(t, listing.TotalSize)

	w = f.do(t, http.MethodDelete, "/api/v1/cache/devices/exam-room-3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := decodeData[cacheapp.ClearCacheResponse](t, w)
	assert.Equal(t, int64(3), cleared.Removed)

	w = f.do(t, http.MethodGet, "/api/v1/cache/devices/exam-room-3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing = decodeData[cacheapp.DeviceCacheResponse](t, w)
	assert.Zero(t, listing.Count)
}

func TestCacheHandlerSweepExpired(t *testing.T) {
	f := newCacheHandlerFixture(t)

	// Expired entry seeded directly; the schedule type TTL is one minute.
	expired := cachedomain.NewCacheEntry(f.orgID, "exam-room-3", "schedule",
		uuid.New(), json.RawMessage(`{}`), 1, -time.Minute)
	require.NoError(t, f.entries.Upsert(context.Background(), expired))

	live := cachedomain.NewCacheEntry(f.orgID, "exam-room-3", "patient",
		uuid.New(), json.RawMessage(`{}`), 1, time.Hour)
	require.NoError(t, f.entries.Upsert(context.Background(), live))

	w := f.do(t, http.MethodPost, "/api/v1/cache/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	swept := decodeData[cacheapp.SweepResponse](t, w)
	assert.Equal(t, int64(1), swept.Removed)
}
