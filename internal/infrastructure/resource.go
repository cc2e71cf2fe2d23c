package infrastructure

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"

	"github.com/ClearMeasureLabs/onion8-flyway/internal/config"
)

// ResourceDescriptor names the service in every telemetry signal.
// It is a value; the With* methods return modified copies.
type ResourceDescriptor struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// NewResourceDescriptor builds a descriptor, defaulting the name to ChurchBulletin
func NewResourceDescriptor(serviceName string) ResourceDescriptor {
	if serviceName == "" {
		serviceName = config.DefaultServiceName
	}
	return ResourceDescriptor{ServiceName: serviceName}
}

// WithVersion returns a copy carrying the service version
func (d ResourceDescriptor) WithVersion(version string) ResourceDescriptor {
	d.ServiceVersion = version
	return d
}

// WithEnvironment returns a copy carrying the deployment environment
func (d ResourceDescriptor) WithEnvironment(env string) ResourceDescriptor {
	d.Environment = env
	return d
}

// Resource builds the SDK resource shared by the log, metric and trace pipelines
func (d ResourceDescriptor) Resource() (*resource.Resource, error) {
	if d.ServiceName == "" {
		return nil, fmt.Errorf("resource descriptor has no service name")
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(d.ServiceName),
		semconv.ServiceInstanceID(generateInstanceID()),
	}
	if d.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(d.ServiceVersion))
	}
	if d.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(d.Environment))
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...), nil
}

// generateInstanceID generates a unique instance identifier
func generateInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return uuid.New().String()
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}
