package tracing

import (
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Resource holds the process-wide attributes attached to every exported
// batch. It is built once at startup and never mutated.
type Resource struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	extra          []KeyValue
}

// NewResource builds the resource for this process
func NewResource(serviceName, serviceVersion, environment string, extra ...KeyValue) Resource {
	return Resource{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    environment,
		extra:          append([]KeyValue(nil), extra...),
	}
}

// Attributes returns the resource as an ordered attribute list
func (r Resource) Attributes() []KeyValue {
	attrs := []KeyValue{
		Attr(string(semconv.ServiceNameKey), r.ServiceName),
	}
	if r.ServiceVersion != "" {
		attrs = append(attrs, Attr(string(semconv.ServiceVersionKey), r.ServiceVersion))
	}
	if r.Environment != "" {
		attrs = append(attrs, Attr(string(semconv.DeploymentEnvironmentKey), r.Environment))
	}
	return append(attrs, r.extra...)
}
