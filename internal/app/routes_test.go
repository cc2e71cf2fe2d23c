package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ClearMeasureLabs/onion8-flyway/internal/errors"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/services"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/shared/testutil"
	handlers "github.com/ClearMeasureLabs/onion8-flyway/internal/transport/http"
)

func testRouteHandlers(t *testing.T) routeHandlers {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	health := services.NewHealthCheckService(logger, 0)
	return routeHandlers{
		pages:      handlers.NewPageHandler("ChurchBulletin", false, logger),
		health:     handlers.NewHealthHandler(health, true, logger),
		version:    handlers.NewVersionHandler(handlers.VersionInfo{Service: "ChurchBulletin"}),
		metrics:    handlers.NewMetricsHandler(nil, logger),
		clientLogs: handlers.NewClientLogHandler(logger),
		fallback: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("entry"))
		}),
		errors: apperrors.NewErrorHandler(logger, false),
	}
}

func TestRouteTable(t *testing.T) {
	table := RouteTable()

	assert.Equal(t, []RouteEntry{
		{Pattern: "/Error", Kind: PageRouter},
		{Pattern: "/api", Kind: APIController},
		{Pattern: "/_healthcheck", Kind: HealthEndpoint},
		{Pattern: "/*", Kind: StaticFallback},
	}, table)
	assert.Equal(t, StaticFallback, table[len(table)-1].Kind, "fallback is registered last")
}

func TestHandlerKind_String(t *testing.T) {
	assert.Equal(t, "PageRouter", PageRouter.String())
	assert.Equal(t, "APIController", APIController.String())
	assert.Equal(t, "StaticFallback", StaticFallback.String())
	assert.Equal(t, "HealthEndpoint", HealthEndpoint.String())
	assert.Equal(t, "HandlerKind(9)", HandlerKind(9).String())
}

func TestBuildRouter(t *testing.T) {
	router, err := buildRouter(RouteTable(), testRouteHandlers(t))
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "health endpoint", method: http.MethodGet, path: "/_healthcheck", wantStatus: http.StatusOK},
		{name: "error page", method: http.MethodGet, path: "/Error", wantStatus: http.StatusOK},
		{name: "api version", method: http.MethodGet, path: "/api/version", wantStatus: http.StatusOK},
		{name: "api miss is not the fallback", method: http.MethodGet, path: "/api/nothing", wantStatus: http.StatusNotFound},
		{name: "api wrong method", method: http.MethodDelete, path: "/api/version", wantStatus: http.StatusMethodNotAllowed},
		{name: "unmapped path", method: http.MethodGet, path: "/some/unmapped/path", wantStatus: http.StatusOK, wantBody: "entry"},
		{name: "client logs reject empty body", method: http.MethodPost, path: "/api/client-logs", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.NotEqual(t, "entry", rec.Body.String())
			}
		})
	}
}

func TestBuildRouter_InvalidTable(t *testing.T) {
	tests := []struct {
		name  string
		table []RouteEntry
	}{
		{name: "unknown kind", table: []RouteEntry{{Pattern: "/x", Kind: HandlerKind(42)}}},
		{name: "fallback on a fixed path", table: []RouteEntry{{Pattern: "/app", Kind: StaticFallback}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, err := buildRouter(tt.table, testRouteHandlers(t))
			assert.Error(t, err)
			assert.Nil(t, router)
		})
	}
}
