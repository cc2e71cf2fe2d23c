package infrastructure

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// ExporterFactory constructs one exporter per telemetry signal
type ExporterFactory interface {
	LogExporter(ctx context.Context, cred Credential) (sdklog.Exporter, error)
	MetricExporter(ctx context.Context, cred Credential) (sdkmetric.Exporter, error)
	SpanExporter(ctx context.Context, cred Credential) (sdktrace.SpanExporter, error)
}

// OTLPExporterFactory builds OTLP/gRPC exporters. The instrumentation key is
// sent on every export as the HeaderName metadata entry. Connections are
// established lazily, so construction does not block on the collector.
type OTLPExporterFactory struct {
	HeaderName string
	// Insecure forces plaintext even for an https ingestion endpoint
	Insecure bool
}

func (f *OTLPExporterFactory) headers(cred Credential) map[string]string {
	return map[string]string{f.HeaderName: cred.InstrumentationKey}
}

func (f *OTLPExporterFactory) insecure(cred Credential) bool {
	return f.Insecure || cred.Insecure
}

// LogExporter builds the OTLP log exporter
func (f *OTLPExporterFactory) LogExporter(ctx context.Context, cred Credential) (sdklog.Exporter, error) {
	opts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(cred.Endpoint),
		otlploggrpc.WithHeaders(f.headers(cred)),
	}
	if f.insecure(cred) {
		opts = append(opts, otlploggrpc.WithInsecure())
	} else {
		opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return otlploggrpc.New(ctx, opts...)
}

// MetricExporter builds the OTLP metric exporter
func (f *OTLPExporterFactory) MetricExporter(ctx context.Context, cred Credential) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cred.Endpoint),
		otlpmetricgrpc.WithHeaders(f.headers(cred)),
	}
	if f.insecure(cred) {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

// SpanExporter builds the OTLP trace exporter
func (f *OTLPExporterFactory) SpanExporter(ctx context.Context, cred Credential) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cred.Endpoint),
		otlptracegrpc.WithHeaders(f.headers(cred)),
	}
	if f.insecure(cred) {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return otlptracegrpc.New(ctx, opts...)
}
