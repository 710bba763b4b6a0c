package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplab/courtreel/internal/media"
)

func newServer(t *testing.T) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &Server{
		Redis:    rdb,
		Store:    media.NewMemoryStore(),
		BlobRoot: t.TempDir(),
		Version:  "v0.1.0-test",
	}, mr
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body HealthResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthzAlwaysHealthy(t *testing.T) {
	s, _ := newServer(t)
	rec, body := get(t, s.Router(), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, body.Status)
	assert.Equal(t, "v0.1.0-test", body.Version)
	assert.Empty(t, body.Checks)
}

func TestReadyzAllDependenciesUp(t *testing.T) {
	s, _ := newServer(t)
	rec, body := get(t, s.Router(), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, body.Status)
	for _, name := range []string{"redis", "store", "blobs"} {
		require.Contains(t, body.Checks, name)
		assert.Equal(t, StatusHealthy, body.Checks[name].Status, name)
	}
}

func TestReadyzRedisDown(t *testing.T) {
	s, mr := newServer(t)
	mr.Close()

	rec, body := get(t, s.Router(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusUnhealthy, body.Status)
	assert.Equal(t, StatusUnhealthy, body.Checks["redis"].Status)
	assert.NotEmpty(t, body.Checks["redis"].Error)
}

func TestReadyzBlobRootNotWritable(t *testing.T) {
	s, _ := newServer(t)
	s.BlobRoot = "/proc/definitely-not-writable"

	rec, body := get(t, s.Router(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusUnhealthy, body.Checks["blobs"].Status)
}

func TestReadyzMissingDependencies(t *testing.T) {
	s := &Server{}
	rec, body := get(t, s.Router(), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not configured", body.Checks["redis"].Error)
	assert.Equal(t, "not configured", body.Checks["store"].Error)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newServer(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
