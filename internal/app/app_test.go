package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/infrastructure"
	customMiddleware "github.com/ClearMeasureLabs/onion8-flyway/internal/middleware"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/services"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/shared/testutil"
)

const indexHTML = `<!DOCTYPE html><html><head><base href="/" /></head><body><div id="app">Loading...</div></body></html>`

func testWebRoot() fstest.MapFS {
	return fstest.MapFS{
		"index.html":                         {Data: []byte(indexHTML)},
		"css/app.css":                        {Data: []byte("body { margin: 0; }")},
		"_framework/blazor.webassembly.js":   {Data: []byte("// loader")},
		"_framework/ChurchBulletin.UI.wasm":  {Data: []byte("\x00asm")},
		"_framework/blazor.boot.json":        {Data: []byte(`{"entryAssembly":"ChurchBulletin.UI"}`)},
		"_framework/dotnet.native.js.gz":     {Data: []byte("gz")},
		"favicon.png":                        {Data: []byte("png")},
		"sample-data/bulletins/archive.json": {Data: []byte("[]")},
	}
}

func testConfig(environment, credential string) *config.Config {
	return &config.Config{
		Environment: environment,
		Server: config.ServerConfig{
			Port:            8080,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Security: config.SecurityConfig{HSTSMaxAge: config.DefaultHSTSMaxAge},
		Logging:  config.LoggingConfig{Level: "debug", Output: "console"},
		Telemetry: config.TelemetryConfig{
			ConnectionString: credential,
			ServiceName:      config.DefaultServiceName,
			ServiceVersion:   "test",
			DefaultEndpoint:  "localhost:4317",
			HeaderName:       "x-api-key",
			ExportInterval:   time.Hour,
			SampleRatio:      1,
		},
		Web: config.WebConfig{
			Root:            "wwwroot",
			EntryDocument:   "index.html",
			FrameworkPrefix: "/_framework",
		},
		Health: config.HealthConfig{
			GatePolicy:   config.GatePolicyEnforce,
			CheckTimeout: time.Second,
		},
	}
}

func newTestApplication(t *testing.T, cfg *config.Config, root fstest.MapFS, factory *testutil.FakeExporterFactory) (*Application, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, logs := testutil.NewTestLogger(t)
	a, err := NewApplication(context.Background(), cfg, Options{
		WebRoot:   root,
		Exporters: factory,
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, a.Stop(context.Background()))
	})
	return a, logs
}

func TestNewApplication_DevelopmentWithoutCredential(t *testing.T) {
	factory := testutil.NewFakeExporterFactory()
	a, _ := newTestApplication(t, testConfig("Development", ""), testWebRoot(), factory)

	assert.Equal(t, config.Development, a.Mode)
	assert.Nil(t, a.Pipelines)
	assert.Equal(t, 0, factory.Calls(), "no exporter may be constructed without a credential")
	assert.Equal(t, []customMiddleware.StageKind{
		customMiddleware.ClientDebuggingSupport,
		customMiddleware.HTTPSRedirect,
		customMiddleware.StaticServing,
		customMiddleware.Routing,
	}, a.Chain.Kinds())
	assert.Equal(t, services.Healthy, a.StartupReport.Status)
}

func TestNewApplication_ProductionWithCredential(t *testing.T) {
	factory := testutil.NewFakeExporterFactory()
	a, _ := newTestApplication(t, testConfig("Production", "abc123"), testWebRoot(), factory)

	assert.Equal(t, config.Production, a.Mode)
	require.NotNil(t, a.Pipelines)
	assert.Equal(t, 3, factory.Calls(), "exactly one exporter per signal")

	assert.Same(t, a.Pipelines.Logs.Resource, a.Pipelines.Metrics.Resource)
	assert.Same(t, a.Pipelines.Metrics.Resource, a.Pipelines.Traces.Resource)
	name, ok := a.Pipelines.Traces.Resource.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "ChurchBulletin", name.AsString())

	assert.Equal(t, []customMiddleware.StageKind{
		customMiddleware.ExceptionRedirect,
		customMiddleware.HSTS,
		customMiddleware.HTTPSRedirect,
		customMiddleware.StaticServing,
		customMiddleware.Routing,
	}, a.Chain.Kinds())
	assert.Equal(t, "/Error", a.Chain[0].Param)
	assert.Contains(t, a.StartupReport.Entries, CheckTelemetry)
}

func TestNewApplication_ChainIndependentOfCredential(t *testing.T) {
	for _, env := range []string{"Development", "Production"} {
		t.Run(env, func(t *testing.T) {
			without, _ := newTestApplication(t, testConfig(env, ""), testWebRoot(), testutil.NewFakeExporterFactory())
			with, _ := newTestApplication(t, testConfig(env, "abc123"), testWebRoot(), testutil.NewFakeExporterFactory())
			assert.Equal(t, without.Chain.Kinds(), with.Chain.Kinds())
		})
	}
}

func TestNewApplication_InvalidCredential(t *testing.T) {
	factory := testutil.NewFakeExporterFactory()
	logger, logs := testutil.NewTestLogger(t)

	a, err := NewApplication(context.Background(), testConfig("Production", "   "), Options{
		WebRoot:   testWebRoot(),
		Exporters: factory,
		Logger:    logger,
	})

	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, infrastructure.ErrInvalidCredential))
	assert.Equal(t, 0, factory.Calls())
	assert.True(t, logs.ContainsMessage("Failed to build telemetry pipelines"))
}

func TestNewApplication_ExporterFailure(t *testing.T) {
	factory := testutil.NewFakeExporterFactory()
	factory.FailOn = "trace"
	logger, _ := testutil.NewTestLogger(t)

	a, err := NewApplication(context.Background(), testConfig("Production", "abc123"), Options{
		WebRoot:   testWebRoot(),
		Exporters: factory,
		Logger:    logger,
	})

	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, testutil.ErrExporterUnavailable))
}

func TestNewApplication_StartupGate(t *testing.T) {
	tests := []struct {
		name       string
		policy     string
		wantErr    bool
		wantStatus int
	}{
		{name: "enforce aborts", policy: config.GatePolicyEnforce, wantErr: true},
		{name: "report continues", policy: config.GatePolicyReport, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("Production", "abc123")
			cfg.Health.GatePolicy = tt.policy
			factory := testutil.NewFakeExporterFactory()
			logger, _ := testutil.NewTestLogger(t)

			// web root without the entry document
			root := testWebRoot()
			delete(root, "index.html")

			a, err := NewApplication(context.Background(), cfg, Options{
				WebRoot:   root,
				Exporters: factory,
				Logger:    logger,
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrStartupUnhealthy))
				assert.Contains(t, err.Error(), CheckEntryDocument)
				assert.Nil(t, a)
				assert.True(t, factory.Logs.IsShutdown(), "pipelines must be released on abort")
				assert.True(t, factory.Metrics.IsShutdown())
				return
			}

			require.NoError(t, err)
			defer func() { assert.NoError(t, a.Stop(context.Background())) }()
			assert.Equal(t, services.Unhealthy, a.StartupReport.Status)

			rec := httptest.NewRecorder()
			a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_healthcheck", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestApplication_Handler(t *testing.T) {
	for _, env := range []string{"Development", "Production"} {
		t.Run(env, func(t *testing.T) {
			a, _ := newTestApplication(t, testConfig(env, ""), testWebRoot(), testutil.NewFakeExporterFactory())

			tests := []struct {
				name        string
				method      string
				path        string
				wantStatus  int
				wantBody    string
				wantType    string
				wantProblem bool
			}{
				{name: "client route falls back to entry document", method: http.MethodGet, path: "/some/unmapped/path", wantStatus: http.StatusOK, wantBody: indexHTML, wantType: "text/html"},
				{name: "static file", method: http.MethodGet, path: "/css/app.css", wantStatus: http.StatusOK, wantBody: "body { margin: 0; }", wantType: "text/css"},
				{name: "framework file", method: http.MethodGet, path: "/_framework/ChurchBulletin.UI.wasm", wantStatus: http.StatusOK, wantType: "application/wasm"},
				{name: "missing file", method: http.MethodGet, path: "/css/missing.css", wantStatus: http.StatusNotFound, wantProblem: true},
				{name: "error page", method: http.MethodGet, path: "/Error", wantStatus: http.StatusOK, wantType: "text/html"},
				{name: "version", method: http.MethodGet, path: "/api/version", wantStatus: http.StatusOK, wantType: "json"},
				{name: "liveness", method: http.MethodGet, path: "/api/health/live", wantStatus: http.StatusOK, wantType: "json"},
				{name: "unknown api route", method: http.MethodGet, path: "/api/bulletins", wantStatus: http.StatusNotFound, wantProblem: true},
				{name: "metrics disabled", method: http.MethodGet, path: "/api/metrics", wantStatus: http.StatusNotFound, wantProblem: true},
				{name: "wrong method on health", method: http.MethodPost, path: "/_healthcheck", wantStatus: http.StatusMethodNotAllowed, wantProblem: true},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					rec := httptest.NewRecorder()
					a.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

					assert.Equal(t, tt.wantStatus, rec.Code)
					assert.NotEmpty(t, rec.Header().Get(customMiddleware.RequestIDHeader))
					assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
					if tt.wantBody != "" {
						assert.Equal(t, tt.wantBody, rec.Body.String())
					}
					if tt.wantType != "" {
						assert.Contains(t, rec.Header().Get("Content-Type"), tt.wantType)
					}
					if tt.wantProblem {
						var problem map[string]interface{}
						require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
						assert.Equal(t, float64(tt.wantStatus), problem["status"])
					}
				})
			}
		})
	}
}

func TestApplication_DevelopmentProfiler(t *testing.T) {
	a, _ := newTestApplication(t, testConfig("Development", ""), testWebRoot(), testutil.NewFakeExporterFactory())

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: "/_framework/debug/pprof/", wantStatus: http.StatusOK, wantBody: "Types of profiles available"},
		{path: "/_framework/debug/pprof/cmdline", wantStatus: http.StatusOK},
		{path: "/_framework/debug/pprof/heap?debug=1", wantStatus: http.StatusOK, wantBody: "heap profile"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestApplication_HealthReportEndpoint(t *testing.T) {
	a, _ := newTestApplication(t, testConfig("Production", "abc123"), testWebRoot(), testutil.NewFakeExporterFactory())

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_healthcheck", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var report services.HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, services.Healthy, report.Status)
	assert.ElementsMatch(t, []string{CheckEntryDocument, CheckTelemetry}, report.Names())
}

func TestApplication_UpstreamCheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	cfg := testConfig("Production", "")
	cfg.Health.UpstreamURL = upstream.URL
	a, logs := newTestApplication(t, cfg, testWebRoot(), testutil.NewFakeExporterFactory())

	assert.Equal(t, services.Degraded, a.StartupReport.Status)
	assert.Equal(t, services.Degraded, a.StartupReport.Entries[CheckUpstream].Status)
	assert.True(t, logs.ContainsMessage("startup health check degraded"))
}

func TestApplication_RateLimitedAPI(t *testing.T) {
	cfg := testConfig("Production", "")
	cfg.Security.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}
	a, _ := newTestApplication(t, cfg, testWebRoot(), testutil.NewFakeExporterFactory())

	first := httptest.NewRecorder()
	a.Handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	second := httptest.NewRecorder()
	a.Handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// outside /api the limiter does not apply
	page := httptest.NewRecorder()
	a.Handler.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/bulletins", nil))
	assert.Equal(t, http.StatusOK, page.Code)
}

func TestApplication_ServeAndStop(t *testing.T) {
	factory := testutil.NewFakeExporterFactory()
	a, logs := newTestApplication(t, testConfig("Production", "abc123"), testWebRoot(), factory)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln, nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/some/unmapped/path")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, indexHTML, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.True(t, factory.Logs.IsShutdown(), "pipelines are flushed on stop")
	assert.True(t, logs.ContainsMessage("Application shutdown complete"))
	assert.NoError(t, a.Stop(context.Background()), "second Stop is a no-op")
	assert.Equal(t, 1, logs.CountMessage("Application shutdown complete"))
}

func TestNewApplication_NilConfig(t *testing.T) {
	a, err := NewApplication(context.Background(), nil, Options{})
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestApplication_LogsMatchedRoute(t *testing.T) {
	a, logs := newTestApplication(t, testConfig("Production", ""), testWebRoot(), testutil.NewFakeExporterFactory())

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	record, ok := logs.FindRecord("request completed")
	require.True(t, ok)
	assert.Equal(t, "/api/version", record.Attrs["route"])
	assert.Equal(t, int64(http.StatusOK), record.Attrs["status"])
}
