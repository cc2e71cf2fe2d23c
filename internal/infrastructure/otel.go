package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	logglobal "go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
)

// ScopeName is the instrumentation scope used for the host's own telemetry
const ScopeName = "github.com/ClearMeasureLabs/onion8-flyway"

// ErrPipelinesClosed is reported by Check after Shutdown
var ErrPipelinesClosed = errors.New("telemetry pipelines are shut down")

// PipelineOptions tunes how the pipelines are built. The zero value is usable.
type PipelineOptions struct {
	// Factory constructs the exporters; nil selects OTLP over gRPC
	Factory         ExporterFactory
	DefaultEndpoint string
	HeaderName      string
	Insecure        bool
	ExportInterval  time.Duration
	SampleRatio     float64
	Prometheus      bool
	Logger          *slog.Logger
}

// PipelineOptionsFromConfig maps the telemetry section onto PipelineOptions
func PipelineOptionsFromConfig(cfg config.TelemetryConfig, logger *slog.Logger) PipelineOptions {
	return PipelineOptions{
		DefaultEndpoint: cfg.DefaultEndpoint,
		HeaderName:      cfg.HeaderName,
		Insecure:        cfg.Insecure,
		ExportInterval:  cfg.ExportInterval,
		SampleRatio:     cfg.SampleRatio,
		Prometheus:      cfg.PrometheusEnabled,
		Logger:          logger,
	}
}

func (o PipelineOptions) withDefaults() PipelineOptions {
	if o.DefaultEndpoint == "" {
		o.DefaultEndpoint = "localhost:4317"
	}
	if o.HeaderName == "" {
		o.HeaderName = "x-api-key"
	}
	if o.ExportInterval <= 0 {
		o.ExportInterval = 60 * time.Second
	}
	if o.SampleRatio <= 0 || o.SampleRatio > 1 {
		o.SampleRatio = 1.0
	}
	if o.Logger == nil {
		o.Logger = GetLogger()
	}
	if o.Factory == nil {
		o.Factory = &OTLPExporterFactory{HeaderName: o.HeaderName, Insecure: o.Insecure}
	}
	return o
}

// LogPipeline carries structured log records to the backend
type LogPipeline struct {
	Provider *sdklog.LoggerProvider
	Exporter sdklog.Exporter
	Resource *resource.Resource
}

// MetricPipeline carries measurements to the backend
type MetricPipeline struct {
	Provider *sdkmetric.MeterProvider
	Exporter sdkmetric.Exporter
	Resource *resource.Resource
	// PrometheusHandler serves the pull endpoint when the Prometheus reader is enabled
	PrometheusHandler http.Handler
}

// TracePipeline carries spans to the backend
type TracePipeline struct {
	Provider *sdktrace.TracerProvider
	Exporter sdktrace.SpanExporter
	Resource *resource.Resource
}

// Pipelines is the result of BuildPipelines. A nil *Pipelines means telemetry
// is disabled; every method is safe to call on nil. A non-nil value always
// has all three pipelines.
type Pipelines struct {
	Logs    *LogPipeline
	Metrics *MetricPipeline
	Traces  *TracePipeline

	Credential Credential

	logger       *slog.Logger
	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// BuildPipelines constructs the log, metric and trace pipelines when the
// credential is present. With no credential it returns (nil, nil) without
// touching the exporter factory or the global providers. Construction is
// all-or-nothing: on failure everything already built is shut down.
func BuildPipelines(ctx context.Context, obs config.ObservabilityConfig, desc ResourceDescriptor, opts PipelineOptions) (*Pipelines, error) {
	if !obs.Enabled {
		return nil, nil
	}
	opts = opts.withDefaults()
	logger := opts.Logger

	cred, err := ParseCredential(obs.EndpointCredential, opts.DefaultEndpoint)
	if err != nil {
		return nil, err
	}

	res, err := desc.Resource()
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", desc.ServiceName),
		slog.String("endpoint", cred.Endpoint))

	var cleanups []func(context.Context) error
	fail := func(err error) (*Pipelines, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cerr := cleanups[i](ctx); cerr != nil {
				logger.WarnContext(ctx, "Failed to release partial telemetry pipeline", slog.String("error", cerr.Error()))
			}
		}
		return nil, err
	}

	logExp, err := opts.Factory.LogExporter(ctx, cred)
	if err != nil {
		return fail(fmt.Errorf("failed to create log exporter: %w", err))
	}
	cleanups = append(cleanups, logExp.Shutdown)

	metricExp, err := opts.Factory.MetricExporter(ctx, cred)
	if err != nil {
		return fail(fmt.Errorf("failed to create metric exporter: %w", err))
	}
	cleanups = append(cleanups, metricExp.Shutdown)

	spanExp, err := opts.Factory.SpanExporter(ctx, cred)
	if err != nil {
		return fail(fmt.Errorf("failed to create trace exporter: %w", err))
	}
	cleanups = append(cleanups, spanExp.Shutdown)

	// from here on the providers own the exporters
	cleanups = cleanups[:0]

	logs := &LogPipeline{
		Provider: sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		),
		Exporter: logExp,
		Resource: res,
	}
	cleanups = append(cleanups, logs.Provider.Shutdown)

	metrics, err := buildMetricPipeline(metricExp, res, opts)
	if err != nil {
		metricExp.Shutdown(ctx)
		spanExp.Shutdown(ctx)
		return fail(err)
	}
	cleanups = append(cleanups, metrics.Provider.Shutdown)

	traces := &TracePipeline{
		Provider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spanExp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
		),
		Exporter: spanExp,
		Resource: res,
	}
	cleanups = append(cleanups, traces.Provider.Shutdown)

	if err := runtime.Start(
		runtime.WithMeterProvider(metrics.Provider),
		runtime.WithMinimumReadMemStatsInterval(time.Second),
	); err != nil {
		return fail(fmt.Errorf("failed to start runtime metrics: %w", err))
	}

	p := &Pipelines{
		Logs:       logs,
		Metrics:    metrics,
		Traces:     traces,
		Credential: cred,
		logger:     logger,
	}
	p.installGlobals()

	logger.InfoContext(ctx, "OpenTelemetry initialization complete",
		slog.Float64("sample_ratio", opts.SampleRatio),
		slog.Duration("export_interval", opts.ExportInterval),
		slog.Bool("prometheus", metrics.PrometheusHandler != nil))

	return p, nil
}

func buildMetricPipeline(exp sdkmetric.Exporter, res *resource.Resource, opts PipelineOptions) (*MetricPipeline, error) {
	mp := &MetricPipeline{Exporter: exp, Resource: res}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(opts.ExportInterval))),
	}

	if opts.Prometheus {
		// a private registry keeps repeated builds from colliding on registration
		registry := prometheus.NewRegistry()
		reader, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
		mp.PrometheusHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	mp.Provider = sdkmetric.NewMeterProvider(providerOpts...)
	return mp, nil
}

func (p *Pipelines) installGlobals() {
	otel.SetTracerProvider(p.Traces.Provider)
	otel.SetMeterProvider(p.Metrics.Provider)
	logglobal.SetLoggerProvider(p.Logs.Provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger := p.logger
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("OpenTelemetry export error", slog.String("error", err.Error()))
	}))
}

// Enabled reports whether telemetry pipelines exist
func (p *Pipelines) Enabled() bool {
	return p != nil
}

// Shutdown flushes and releases all three pipelines. It is safe to call on
// nil and more than once; later calls return the first result.
func (p *Pipelines) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.shutdownOnce.Do(func() {
		p.closed.Store(true)
		var errs []error
		if err := p.Traces.Provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
		if err := p.Metrics.Provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
		if err := p.Logs.Provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
		p.shutdownErr = errors.Join(errs...)
		if p.shutdownErr == nil {
			p.logger.InfoContext(ctx, "OpenTelemetry shutdown complete")
		}
	})
	return p.shutdownErr
}

// Check reports whether the pipelines can still accept telemetry
func (p *Pipelines) Check(context.Context) error {
	if p != nil && p.closed.Load() {
		return ErrPipelinesClosed
	}
	return nil
}

// Logger returns base extended so that every record is also sent through the
// log pipeline. Attributes and groups added later reach both destinations.
func (p *Pipelines) Logger(base *slog.Logger) *slog.Logger {
	if p == nil {
		return base
	}
	bridge := otelslog.NewHandler(ScopeName, otelslog.WithLoggerProvider(p.Logs.Provider))
	return slog.New(newFanoutHandler(base.Handler(), bridge))
}

// InstrumentHandler wraps h with server spans and request metrics
func (p *Pipelines) InstrumentHandler(h http.Handler, operation string) http.Handler {
	if p == nil {
		return h
	}
	return otelhttp.NewHandler(h, operation,
		otelhttp.WithTracerProvider(p.Traces.Provider),
		otelhttp.WithMeterProvider(p.Metrics.Provider),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	)
}

// HTTPClient returns a client whose outbound calls produce client spans and metrics
func (p *Pipelines) HTTPClient() *http.Client {
	if p == nil {
		return &http.Client{}
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(p.Traces.Provider),
			otelhttp.WithMeterProvider(p.Metrics.Provider),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		),
	}
}

// PrometheusHandler returns the pull endpoint, or nil when not configured
func (p *Pipelines) PrometheusHandler() http.Handler {
	if p == nil {
		return nil
	}
	return p.Metrics.PrometheusHandler
}
