package gin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ginpkg "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infragin "github.com/jonesrussell/north-cloud/chimera/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
)

func newServer(t *testing.T, dbErr error) *infragin.Server {
	t.Helper()

	return infragin.NewServerBuilder("chimera-test", 0).
		WithLogger(logger.NewNop()).
		WithVersion("1.2.3").
		WithDatabaseHealthCheck(func(context.Context) error { return dbErr }).
		WithRoutes(func(r *ginpkg.Engine) {
			r.GET("/ping", func(c *ginpkg.Context) {
				id, _ := c.Get(infragin.RequestIDKey)
				c.String(http.StatusOK, "%v", id)
			})
			r.GET("/panic", func(*ginpkg.Context) { panic("boom") })
		}).
		Build()
}

func do(t *testing.T, s *infragin.Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	healthy := do(t, newServer(t, nil), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	require.Equal(t, http.StatusOK, healthy.Code)

	var resp infragin.HealthResponse
	require.NoError(t, json.Unmarshal(healthy.Body.Bytes(), &resp))
	assert.Equal(t, infragin.HealthStatusHealthy, resp.Status)
	assert.Equal(t, "chimera-test", resp.Service)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Contains(t, resp.Checks, "database")

	unhealthy := do(t, newServer(t, errors.New("down")), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, unhealthy.Code)

	head := do(t, newServer(t, nil), httptest.NewRequest(http.MethodHead, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, head.Code)
}

func TestRequestID(t *testing.T) {
	s := newServer(t, nil)

	generated := do(t, s, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	id := generated.Header().Get(infragin.RequestIDHeader)
	assert.Len(t, id, 32)
	assert.Equal(t, id, generated.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set(infragin.RequestIDHeader, "upstream-abc")
	assert.Equal(t, "upstream-abc", do(t, s, req).Header().Get(infragin.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set(infragin.RequestIDHeader, strings.Repeat("x", 200))
	assert.Len(t, do(t, s, req).Header().Get(infragin.RequestIDHeader), 32)
}

func TestRecovery(t *testing.T) {
	w := do(t, newServer(t, nil), httptest.NewRequest(http.MethodGet, "/panic", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/ping", http.NoBody)
	req.Header.Set("Origin", "https://studio.example.com")
	w := do(t, newServer(t, nil), req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedGroup(t *testing.T) {
	ginpkg.SetMode(ginpkg.TestMode)
	r := ginpkg.New()
	infragin.ProtectedGroup(r, "/api/v1", "secret").GET("/x", func(c *ginpkg.Context) { c.Status(http.StatusOK) })
	infragin.ProtectedGroup(r, "/open", "").GET("/x", func(c *ginpkg.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/x", http.NoBody))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open/x", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
}
