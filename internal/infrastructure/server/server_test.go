package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/GriffinCanCode/SameFileServer/backend/internal/api/middleware"
	"github.com/GriffinCanCode/SameFileServer/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Root = filepath.Join(t.TempDir(), "data")
	cfg.Storage.StatePath = ""
	cfg.Storage.TrashEnabled = true
	cfg.Storage.TrashDir = filepath.Join(t.TempDir(), "trash")
	cfg.Logging.Level = "error"
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	w := serve(srv, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), srv.instanceID)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = serve(srv, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fileserver_http_requests_total")
}

func TestNewServerCreatesRoot(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)
	assert.DirExists(t, cfg.Storage.Root)
	assert.True(t, srv.Filesystem().Config().TrashEnabled)
}

func TestNewServerRejectsBadPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestNewServerRejectsTrashInsideRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.TrashDir = filepath.Join(cfg.Storage.Root, ".trash")
	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestFileRoutesRequireIdentity(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	w := serve(srv, httptest.NewRequest("GET", "/api/files", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHomeProvisioningAndRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	srv := newTestServer(t, cfg)

	req := httptest.NewRequest("GET", "/api/files?path=users/alice", nil)
	req.Header.Set(middleware.UserIDHeader, "alice")
	req.Header.Set(middleware.UserRoleHeader, "user")
	w := serve(srv, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.DirExists(t, filepath.Join(cfg.Storage.Root, "users", "alice"))

	body, _ := json.Marshal(map[string]string{"path": "users/alice", "folderName": "Taxes"})
	req = httptest.NewRequest("POST", "/api/files/folder", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "alice")
	req.Header.Set(middleware.UserRoleHeader, "user")
	w = serve(srv, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body, _ = json.Marshal(map[string]string{"path": "users/alice/Taxes"})
	req = httptest.NewRequest("DELETE", "/api/files", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "alice")
	req.Header.Set(middleware.UserRoleHeader, "user")
	w = serve(srv, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	entries, err := os.ReadDir(cfg.Storage.TrashDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	w = serve(srv, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, w.Body.String(), `fileserver_operations_total{operation="delete",status="success"} 1`)
}

func TestProvisioningDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.ProvisionHomes = false
	srv := newTestServer(t, cfg)

	req := httptest.NewRequest("GET", "/api/files?path=users/bob", nil)
	req.Header.Set(middleware.UserIDHeader, "bob")
	req.Header.Set(middleware.UserRoleHeader, "user")
	w := serve(srv, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
