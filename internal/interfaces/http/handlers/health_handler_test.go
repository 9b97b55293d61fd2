package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SynthonScout/internal/application/screening"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChecker struct {
	name  string
	err   error
	delay time.Duration
}

func (f fakeChecker) Name() string { return f.name }

func (f fakeChecker) Check(ctx context.Context) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func serve(t *testing.T, register func(gin.IRoutes), path string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler("1.2.3")
	w := serve(t, h.RegisterRoutes, "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHealthHandler_ReadinessAllHealthy(t *testing.T) {
	h := NewHealthHandler("dev", fakeChecker{name: "redis"}, nil, fakeChecker{name: "kafka"})
	w := serve(t, h.RegisterRoutes, "/readyz")

	require.Equal(t, http.StatusOK, w.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Components, 2)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
	assert.NotEmpty(t, resp.Components["kafka"].Latency)
}

func TestHealthHandler_ReadinessOneUnhealthy(t *testing.T) {
	h := NewHealthHandler("dev", fakeChecker{name: "redis", err: errors.New("connection refused")}, fakeChecker{name: "kafka"})
	w := serve(t, h.RegisterRoutes, "/readyz")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["redis"].Status)
	assert.Equal(t, "connection refused", resp.Components["redis"].Error)
	assert.Equal(t, "healthy", resp.Components["kafka"].Status)
}

func TestHealthHandler_ReadinessTimeout(t *testing.T) {
	h := NewHealthHandler("dev", fakeChecker{name: "slow", delay: time.Second})
	h.timeout = 10 * time.Millisecond
	w := serve(t, h.RegisterRoutes, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "deadline exceeded")
}

type fixedProgress struct{ snap screening.Snapshot }

func (f fixedProgress) Progress() screening.Snapshot { return f.snap }

func TestProgressHandler_IdleUntilAttached(t *testing.T) {
	h := NewProgressHandler()
	w := serve(t, h.RegisterRoutes, "/progress")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"idle"}`, w.Body.String())

	h.Attach(fixedProgress{snap: screening.Snapshot{RunID: "run-9", Sampled: 12, Hits: 3}})
	w = serve(t, h.RegisterRoutes, "/progress")
	require.Equal(t, http.StatusOK, w.Code)

	var snap screening.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "run-9", snap.RunID)
	assert.Equal(t, int64(12), snap.Sampled)
	assert.Equal(t, int64(3), snap.Hits)
}

func TestProgressHandler_AttachNilStaysIdle(t *testing.T) {
	h := NewProgressHandler()
	h.Attach(nil)
	w := serve(t, h.RegisterRoutes, "/progress")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
