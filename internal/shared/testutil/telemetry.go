package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/infrastructure"
)

// ErrExporterUnavailable is returned by a FakeExporterFactory configured to fail
var ErrExporterUnavailable = errors.New("exporter unavailable")

// FakeExporterFactory hands out in-memory exporters and records how it was used
type FakeExporterFactory struct {
	// FailOn names the signal ("log", "metric" or "trace") whose exporter fails
	FailOn string

	Logs    *LogExporter
	Metrics *MetricExporter
	Spans   *tracetest.InMemoryExporter

	calls       atomic.Int32
	mu          sync.Mutex
	credentials []infrastructure.Credential
}

// NewFakeExporterFactory creates a factory with fresh exporters
func NewFakeExporterFactory() *FakeExporterFactory {
	return &FakeExporterFactory{
		Logs:    &LogExporter{},
		Metrics: &MetricExporter{},
		Spans:   tracetest.NewInMemoryExporter(),
	}
}

// Calls returns how many exporters were requested
func (f *FakeExporterFactory) Calls() int {
	return int(f.calls.Load())
}

// Credentials returns the credentials passed to the factory
func (f *FakeExporterFactory) Credentials() []infrastructure.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]infrastructure.Credential(nil), f.credentials...)
}

func (f *FakeExporterFactory) record(cred infrastructure.Credential) {
	f.calls.Add(1)
	f.mu.Lock()
	f.credentials = append(f.credentials, cred)
	f.mu.Unlock()
}

func (f *FakeExporterFactory) LogExporter(_ context.Context, cred infrastructure.Credential) (sdklog.Exporter, error) {
	f.record(cred)
	if f.FailOn == "log" {
		return nil, ErrExporterUnavailable
	}
	return f.Logs, nil
}

func (f *FakeExporterFactory) MetricExporter(_ context.Context, cred infrastructure.Credential) (sdkmetric.Exporter, error) {
	f.record(cred)
	if f.FailOn == "metric" {
		return nil, ErrExporterUnavailable
	}
	return f.Metrics, nil
}

func (f *FakeExporterFactory) SpanExporter(_ context.Context, cred infrastructure.Credential) (sdktrace.SpanExporter, error) {
	f.record(cred)
	if f.FailOn == "trace" {
		return nil, ErrExporterUnavailable
	}
	return f.Spans, nil
}

// ExportedLog is a copy of an exported log record
type ExportedLog struct {
	Body  string
	Scope string
	Attrs map[string]string
}

// LogExporter keeps exported log records in memory
type LogExporter struct {
	mu       sync.Mutex
	records  []ExportedLog
	shutdown atomic.Bool
}

func (e *LogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		r := &records[i]
		attrs := make(map[string]string)
		r.WalkAttributes(func(kv otellog.KeyValue) bool {
			attrs[kv.Key] = kv.Value.String()
			return true
		})
		e.records = append(e.records, ExportedLog{
			Body:  r.Body().String(),
			Scope: r.InstrumentationScope().Name,
			Attrs: attrs,
		})
	}
	return nil
}

func (e *LogExporter) ForceFlush(context.Context) error { return nil }

func (e *LogExporter) Shutdown(context.Context) error {
	e.shutdown.Store(true)
	return nil
}

// Records returns the exported records
func (e *LogExporter) Records() []ExportedLog {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExportedLog(nil), e.records...)
}

// IsShutdown reports whether Shutdown was called
func (e *LogExporter) IsShutdown() bool {
	return e.shutdown.Load()
}

// MetricExporter keeps exported metric names and resources in memory
type MetricExporter struct {
	mu        sync.Mutex
	names     map[string]struct{}
	resources []*resource.Resource
	shutdown  atomic.Bool
}

func (e *MetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *MetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *MetricExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.names == nil {
		e.names = make(map[string]struct{})
	}
	e.resources = append(e.resources, rm.Resource)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			e.names[m.Name] = struct{}{}
		}
	}
	return nil
}

func (e *MetricExporter) ForceFlush(context.Context) error { return nil }

func (e *MetricExporter) Shutdown(context.Context) error {
	e.shutdown.Store(true)
	return nil
}

// HasMetric reports whether a metric with the given name was exported
func (e *MetricExporter) HasMetric(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.names[name]
	return ok
}

// Resources returns the resource of every export
func (e *MetricExporter) Resources() []*resource.Resource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*resource.Resource(nil), e.resources...)
}

// IsShutdown reports whether Shutdown was called
func (e *MetricExporter) IsShutdown() bool {
	return e.shutdown.Load()
}
