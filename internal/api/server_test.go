package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidflex-worker-go/internal/config"
	"vidflex-worker-go/internal/framestore"
	"vidflex-worker-go/internal/metrics"
	"vidflex-worker-go/internal/services/capture"
	"vidflex-worker-go/internal/services/detect"
	"vidflex-worker-go/internal/store"
)

type apiFixture struct {
	server  *Server
	configs *store.ConfigStore
	detect  *detect.Service
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)

	cfg := &config.Config{WorkerID: "worker-test", Version: "test", Port: 0}
	frames := framestore.NewMemoryStore()
	configs := store.NewConfigStore(db)

	captureSvc := capture.NewService(cfg, configs, store.NewClipStore(db), frames, nil, nil)
	detectSvc := detect.NewService(cfg, configs, store.NewDetectionStore(db), frames,
		detect.NewPlaceholderDetector(nil), nil, nil)

	t.Cleanup(detectSvc.StopAll)

	return &apiFixture{
		server:  NewServer(cfg, captureSvc, detectSvc, metrics.New()),
		configs: configs,
		detect:  detectSvc,
	}
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"worker_id":"worker-test"`)

	rec = f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stream_capture")
	assert.Contains(t, rec.Body.String(), "object_detection")
}

func TestCaptureEndpoints_Validation(t *testing.T) {
	f := newAPIFixture(t)

	// Missing stream_id fails binding.
	rec := f.do(http.MethodPost, "/capture/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/capture/start", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/capture/stop", `{"stream_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server not running")

	rec = f.do(http.MethodGet, "/capture/status", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/capture/status?stream_id=ghost", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)

	rec = f.do(http.MethodGet, "/capture/list", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"supervisors":[]`)
}

func TestDetectionEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	// Unknown stream: detection requires an existing configuration.
	rec := f.do(http.MethodPost, "/detection/start", `{"stream_id":"cam1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No configuration found")

	_, err := f.configs.ResolveOrCreate("cam1", 10)
	require.NoError(t, err)

	rec = f.do(http.MethodPost, "/detection/start", `{"stream_id":"cam1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/detection/start", `{"stream_id":"cam1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Detection already running")

	rec = f.do(http.MethodGet, "/detection/status?stream_id=cam1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":true`)

	rec = f.do(http.MethodGet, "/detection/list", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stream_id":"cam1"`)

	rec = f.do(http.MethodPost, "/detection/stop", `{"stream_id":"cam1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/detection/stop", `{"stream_id":"cam1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Detection not running")
}

func TestSystemReset(t *testing.T) {
	f := newAPIFixture(t)

	_, err := f.configs.ResolveOrCreate("cam1", 10)
	require.NoError(t, err)
	require.NoError(t, f.configs.SetActive("cam1", true))
	require.NoError(t, f.detect.Start("cam1"))

	rec := f.do(http.MethodPost, "/system/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0, f.detect.ActiveCount())
	active, err := f.configs.ListActive()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "capture_active_supervisors")
	assert.Contains(t, rec.Body.String(), "detection_active_consumers")
}
