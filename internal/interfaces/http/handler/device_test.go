package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	deviceapp "github.com/medpoint/backend/internal/application/device"
	devicedomain "github.com/medpoint/backend/internal/domain/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type deviceHandlerFixture struct {
	router *gin.Engine
	states *fakeDeviceRepo
	orgID  uuid.UUID
}

func newDeviceHandlerFixture(t *testing.T) *deviceHandlerFixture {
	t.Helper()

	states := newFakeDeviceRepo()
	service := deviceapp.NewDeviceService(states, zap.NewNop())
	h := NewDeviceHandler(service)

	router := gin.New()
	api := router.Group("/api/v1")
	api.GET("/devices", h.List)
	api.GET("/devices/:deviceId", h.Get)
	api.POST("/devices/:deviceId/offline", h.MarkOffline)

	return &deviceHandlerFixture{
		router: router,
		states: states,
		orgID:  uuid.New(),
	}
}

func (f *deviceHandlerFixture) seedState(t *testing.T, deviceID string, online bool) {
	t.Helper()
	state := devicedomain.NewDeviceSyncState(f.orgID, deviceID, uuid.New())
	if online {
		state.TouchOnline()
	}
	require.NoError(t, f.states.Upsert(context.Background(), state))
}

func (f *deviceHandlerFixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Organization-ID", f.orgID.String())

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestDeviceHandlerList(t *testing.T) {
	f := newDeviceHandlerFixture(t)
	f.seedState(t, "exam-room-1", true)
	f.seedState(t, "exam-room-2", false)

	w := f.do(t, http.MethodGet, "/api/v1/devices")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	states := decodeData[[]deviceapp.DeviceStateResponse](t, w)
	assert.Len(t, states, 2)
}

func TestDeviceHandlerGet(t *testing.T) {
	f := newDeviceHandlerFixture(t)
	f.seedState(t, "exam-room-1", true)

	w := f.do(t, http.MethodGet, "/api/v1/devices/exam-room-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decodeData[deviceapp.DeviceStateResponse](t, w)
	assert.Equal(t, "exam-room-1", state.DeviceID)
	assert.True(t, state.IsOnline)

	t.Run("unknown device returns 404", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/devices/no-such-device")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeviceHandlerMarkOffline(t *testing.T) {
	f := newDeviceHandlerFixture(t)
	f.seedState(t, "exam-room-1", true)

	w := f.do(t, http.MethodPost, "/api/v1/devices/exam-room-1/offline")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/devices/exam-room-1")
	require.Equal(t, http.StatusOK, w.Code)
	state := decodeData[deviceapp.DeviceStateResponse](t, w)
	assert.False(t, state.IsOnline)
}
