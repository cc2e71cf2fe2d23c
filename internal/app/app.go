package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
	apperrors "github.com/ClearMeasureLabs/onion8-flyway/internal/errors"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/infrastructure"
	customMiddleware "github.com/ClearMeasureLabs/onion8-flyway/internal/middleware"
	"github.com/ClearMeasureLabs/onion8-flyway/internal/services"
	handlers "github.com/ClearMeasureLabs/onion8-flyway/internal/transport/http"
)

// Health check names registered at startup
const (
	CheckEntryDocument = "entry_document"
	CheckTelemetry     = "telemetry"
	CheckUpstream      = "upstream"
)

const defaultShutdownTimeout = 30 * time.Second

// Options carries the collaborators NewApplication does not derive from Config
type Options struct {
	// WebRoot holds the published client assets; nil opens Config.Web.Root
	WebRoot fs.FS
	// Exporters constructs telemetry exporters; nil selects OTLP over gRPC
	Exporters infrastructure.ExporterFactory
	// Version is reported by GET /api/version
	Version handlers.VersionInfo
	// Logger replaces the logger built from Config.Logging
	Logger *slog.Logger
}

// Application is the assembled host. Every field is fixed once
// NewApplication returns.
type Application struct {
	Config    *config.Config
	Mode      config.RuntimeMode
	Logger    *slog.Logger
	Pipelines *infrastructure.Pipelines
	Chain     customMiddleware.Chain
	Router    *chi.Mux
	// Handler is the full request path: ambient middleware, the stage chain and the router
	Handler       http.Handler
	Health        *services.HealthCheckService
	StartupReport services.HealthReport

	ownsLogger bool

	mu       sync.Mutex
	servers  []*http.Server
	stopOnce sync.Once
	stopErr  error
}

// NewApplication performs the startup sequence: mode and credential
// resolution, resource description, telemetry pipelines, middleware chain,
// route table and the startup health gate. No port is opened. On failure
// anything already acquired is released.
func NewApplication(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	mode := cfg.Mode()
	obs := cfg.Observability()

	logger := opts.Logger
	ownsLogger := false
	if logger == nil {
		var err error
		logger, err = infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		ownsLogger = true
	}

	logger.InfoContext(ctx, "Application starting",
		slog.String("service", cfg.Telemetry.ServiceName),
		slog.String("version", cfg.Telemetry.ServiceVersion),
		slog.String("mode", mode.String()),
		slog.Bool("telemetry", obs.Enabled))

	desc := infrastructure.NewResourceDescriptor(cfg.Telemetry.ServiceName).
		WithVersion(cfg.Telemetry.ServiceVersion).
		WithEnvironment(mode.String())

	pipelineOpts := infrastructure.PipelineOptionsFromConfig(cfg.Telemetry, logger)
	pipelineOpts.Factory = opts.Exporters
	pipelines, err := infrastructure.BuildPipelines(ctx, obs, desc, pipelineOpts)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to build telemetry pipelines", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to build telemetry pipelines: %w", err)
	}
	logger = pipelines.Logger(logger)
	if ownsLogger {
		infrastructure.SetLogger(logger)
	}

	a := &Application{
		Config:     cfg,
		Mode:       mode,
		Logger:     logger,
		Pipelines:  pipelines,
		ownsLogger: ownsLogger,
	}

	if err := a.assemble(ctx, opts); err != nil {
		a.release(ctx)
		return nil, err
	}
	return a, nil
}

// assemble covers the steps after the pipelines exist
func (a *Application) assemble(ctx context.Context, opts Options) error {
	cfg := a.Config

	webRoot := opts.WebRoot
	if webRoot == nil {
		paths, err := cfg.ResolvePaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}
		paths.LogPathResolution(a.Logger)
		webRoot = os.DirFS(paths.WebRoot)
	}

	a.Chain = customMiddleware.AssembleChain(a.Mode, customMiddleware.StageDeps{
		Logger:          a.Logger,
		WebRoot:         webRoot,
		FrameworkPrefix: cfg.Web.FrameworkPrefix,
		ErrorPath:       config.ErrorPagePath,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		HSTSSubdomains:  cfg.Security.HSTSIncludeSubdomains,
		HTTPSPort:       cfg.HTTPSPort(),
	})

	a.Health = services.NewHealthCheckService(a.Logger, cfg.Health.CheckTimeout)
	if err := a.registerChecks(webRoot); err != nil {
		return fmt.Errorf("failed to register health checks: %w", err)
	}

	errHandler := apperrors.NewErrorHandler(a.Logger, a.Mode.IsDevelopment())
	rh := routeHandlers{
		pages:      handlers.NewPageHandler(cfg.Telemetry.ServiceName, a.Mode.IsDevelopment(), a.Logger),
		health:     handlers.NewHealthHandler(a.Health, cfg.EnforceHealthGate(), a.Logger),
		version:    handlers.NewVersionHandler(a.versionInfo(opts.Version)),
		metrics:    handlers.NewMetricsHandler(a.Pipelines.PrometheusHandler(), a.Logger),
		clientLogs: handlers.NewClientLogHandler(a.Logger),
		fallback:   handlers.NewFallbackHandler(webRoot, cfg.Web.EntryDocument, a.Logger),
		errors:     errHandler,
	}
	if cfg.Security.RateLimit.Enabled {
		rh.rateLimiter = customMiddleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, a.Logger)
	}

	router, err := buildRouter(RouteTable(), rh)
	if err != nil {
		return fmt.Errorf("failed to build routes: %w", err)
	}
	a.Router = router

	// RequestID → RealIP → OTel → Logger → Recoverer → SecurityHeaders → stages
	a.Handler = chi.Chain(
		customMiddleware.RequestID,
		customMiddleware.RealIP,
		func(next http.Handler) http.Handler {
			return a.Pipelines.InstrumentHandler(next, "http.server")
		},
		customMiddleware.StructuredLogger(a.Logger),
		customMiddleware.Recoverer(errHandler),
		customMiddleware.SecurityHeaders,
	).Handler(a.Chain.Then(a.Router))

	report, err := RunStartupGate(ctx, a.Health, cfg.Health.GatePolicy, a.Logger)
	a.StartupReport = report
	return err
}

func (a *Application) registerChecks(webRoot fs.FS) error {
	cfg := a.Config
	if err := a.Health.Register(CheckEntryDocument,
		services.EntryDocumentCheck(webRoot, cfg.Web.EntryDocument), services.Unhealthy); err != nil {
		return err
	}
	if err := a.Health.Register(CheckTelemetry,
		services.TelemetryCheck(a.Pipelines), services.Degraded); err != nil {
		return err
	}
	if cfg.Health.UpstreamURL != "" {
		client := resty.NewWithClient(a.Pipelines.HTTPClient()).
			SetTimeout(cfg.Health.CheckTimeout).
			SetHeader("User-Agent", cfg.Telemetry.ServiceName)
		if err := a.Health.Register(CheckUpstream,
			services.UpstreamCheck(client, cfg.Health.UpstreamURL), services.Degraded); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) versionInfo(info handlers.VersionInfo) handlers.VersionInfo {
	if info.Service == "" {
		info.Service = a.Config.Telemetry.ServiceName
	}
	if info.Version == "" {
		info.Version = a.Config.Telemetry.ServiceVersion
	}
	if info.Environment == "" {
		info.Environment = a.Mode.String()
	}
	return info
}

func (a *Application) newServer() *http.Server {
	return &http.Server{
		Handler:      a.Handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(a.Logger.Handler(), slog.LevelError),
	}
}

// Serve accepts connections on ln, and on tlsLn with the configured
// certificate when tlsLn is non-nil. It returns once ctx is cancelled or a
// listener fails, after Stop has completed.
func (a *Application) Serve(ctx context.Context, ln, tlsLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := a.newServer()
	a.track(srv)
	g.Go(func() error {
		a.Logger.InfoContext(ctx, "HTTP listener started", slog.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})

	if tlsLn != nil {
		tlsSrv := a.newServer()
		a.track(tlsSrv)
		g.Go(func() error {
			a.Logger.InfoContext(ctx, "HTTPS listener started", slog.String("address", tlsLn.Addr().String()))
			err := tlsSrv.ServeTLS(tlsLn, a.Config.Server.CertFile, a.Config.Server.KeyFile)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("https listener: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.WithoutCancel(ctx))
	})

	return g.Wait()
}

// Run opens the configured ports and serves until SIGINT or SIGTERM
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.Config.Server.Port))
	if err != nil {
		a.release(ctx)
		return fmt.Errorf("failed to listen on port %d: %w", a.Config.Server.Port, err)
	}

	var tlsLn net.Listener
	if port := a.Config.HTTPSPort(); port != 0 {
		tlsLn, err = net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			_ = ln.Close()
			a.release(ctx)
			return fmt.Errorf("failed to listen on port %d: %w", port, err)
		}
	}

	return a.Serve(ctx, ln, tlsLn)
}

// Stop shuts the listeners down gracefully, then flushes and releases the
// telemetry pipelines. Only the first call has any effect.
func (a *Application) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.Logger.InfoContext(ctx, "Shutting down application")

		shutdownCtx, cancel := context.WithTimeout(ctx, a.shutdownTimeout())
		defer cancel()

		var errs []error
		a.mu.Lock()
		servers := a.servers
		a.mu.Unlock()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if err := a.Pipelines.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("telemetry shutdown error: %w", err))
		}

		a.Logger.InfoContext(ctx, "Application shutdown complete")
		if a.ownsLogger {
			if err := infrastructure.CloseLogFile(); err != nil {
				errs = append(errs, err)
			}
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}

func (a *Application) shutdownTimeout() time.Duration {
	if a.Config.Server.ShutdownTimeout > 0 {
		return a.Config.Server.ShutdownTimeout
	}
	return defaultShutdownTimeout
}

func (a *Application) track(srv *http.Server) {
	a.mu.Lock()
	a.servers = append(a.servers, srv)
	a.mu.Unlock()
}

// release undoes a partial startup
func (a *Application) release(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	if err := a.Pipelines.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Error releasing telemetry pipelines", slog.String("error", err.Error()))
	}
	if a.ownsLogger {
		_ = infrastructure.CloseLogFile()
	}
}
