package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharmony/window-window-manager-sub028/internal/broker"
	"github.com/openharmony/window-window-manager-sub028/internal/broker/brokertest"
	"github.com/openharmony/window-window-manager-sub028/internal/infrastructure/monitoring"
	"github.com/openharmony/window-window-manager-sub028/internal/locator"
	"github.com/openharmony/window-window-manager-sub028/internal/remote"
)

func newTestRouter(metrics *monitoring.Metrics, gatherer prometheus.Gatherer, routes ...Routes) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{Development: true}, nil, metrics, gatherer, routes...)
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newTestRouter(monitoring.NewMetrics(reg), reg)

	w := do(t, router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, router, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `admin_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestLocatorRoutes(t *testing.T) {
	world := brokertest.NewWorld(t, locator.VariantFull)
	require.NoError(t, world.Server.AddUser(t.Context(), 100, 0))

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	router := newTestRouter(metrics, nil, NewLocatorHandlers(world.Registry, metrics, 2*time.Second))

	type locatorReply struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Locator locator.Status `json:"locator"`
	}

	w := do(t, router, "GET", "/locators/100", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "reading does not create a locator")

	w = do(t, router, "POST", "/locators/100/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := decode[struct {
		Layer      string         `json:"layer"`
		Descriptor string         `json:"descriptor"`
		Locator    locator.Status `json:"locator"`
	}](t, w)
	assert.Equal(t, "domain", resolved.Layer)
	assert.Equal(t, remote.DomainServiceDescriptor, resolved.Descriptor)
	assert.Equal(t, "registered", resolved.Locator.Recovery)

	w = do(t, router, "POST", "/locators/100/resolve?layer=session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, remote.SessionBrokerDescriptor, decode[struct {
		Descriptor string `json:"descriptor"`
	}](t, w).Descriptor)

	w = do(t, router, "POST", "/locators/100/resolve?layer=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/locators/300/resolve", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "user 300 has no session")
	assert.False(t, decode[locatorReply](t, w).Success)

	w = do(t, router, "GET", "/locators", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[struct {
		Locators []locator.Status `json:"locators"`
	}](t, w).Locators
	require.Len(t, all, 2)
	assert.Equal(t, int32(100), all[0].UserID)
	assert.Equal(t, int32(300), all[1].UserID)

	w = do(t, router, "POST", "/locators/100/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := decode[locatorReply](t, w).Locator
	assert.Empty(t, cleared.Cached["bootstrap"])
	assert.Empty(t, cleared.Cached["domain"])

	w = do(t, router, "GET", "/locators/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "GET", "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[struct {
		Variant  string              `json:"variant"`
		Locators int                 `json:"locators"`
		Metrics  monitoring.Snapshot `json:"metrics"`
	}](t, w)
	assert.Equal(t, "full", status.Variant)
	assert.Equal(t, 2, status.Locators)
}

func TestBrokerRoutes(t *testing.T) {
	world := brokertest.NewWorld(t, locator.VariantFull)
	router := newTestRouter(nil, prometheus.NewRegistry(), NewBrokerHandlers(world.Server))

	type sessionsReply struct {
		DefaultUser int32            `json:"default_user"`
		Sessions    []broker.Session `json:"sessions"`
	}

	w := do(t, router, "POST", "/users", gin.H{"user_id": 100, "screen_id": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, "POST", "/users", gin.H{"user_id": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate user")
	w = do(t, router, "POST", "/users", gin.H{"screen_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing user")
	w = do(t, router, "POST", "/users", gin.H{"user_id": -3})
	assert.Equal(t, http.StatusBadRequest, w.Code, "default ids are not tenants")

	w = do(t, router, "GET", "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode[sessionsReply](t, w)
	assert.Equal(t, int32(100), sessions.DefaultUser)
	assert.Equal(t, []broker.Session{{UserID: 100, ScreenID: 2, Connected: true, Default: true}}, sessions.Sessions)

	require.NotNil(t, world.Registry.Get(100).GetDomainProxy(t.Context()))
	w = do(t, router, "GET", "/listeners", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listeners := decode[struct {
		Listeners []broker.ListenerInfo `json:"listeners"`
	}](t, w).Listeners
	require.Len(t, listeners, 1)
	assert.Equal(t, int32(100), listeners[0].UserID)
	assert.False(t, listeners[0].RegisteredAt.IsZero(), "registration time is reported")

	w = do(t, router, "GET", "/users/100/session_listeners", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		SessionListeners []any `json:"session_listeners"`
	}](t, w).SessionListeners)
	w = do(t, router, "GET", "/users/200/session_listeners", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "POST", "/users/200/switch", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, router, "POST", "/users/x/switch", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/users/100/restart", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, "POST", "/users/100/disconnect", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, router, "POST", "/users/100/disconnect", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, "GET", "/sessions", nil)
	sessions = decode[sessionsReply](t, w)
	require.Len(t, sessions.Sessions, 1)
	assert.False(t, sessions.Sessions[0].Connected)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{broker.ErrNoSession, http.StatusNotFound},
		{remote.ErrInvalidArgument, http.StatusBadRequest},
		{remote.ErrUnavailable, http.StatusServiceUnavailable},
		{remote.ErrDeadObject, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(strings.ToLower(http.StatusText(tt.want)), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
