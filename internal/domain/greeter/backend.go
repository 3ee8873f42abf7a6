package greeter

import (
	"context"
	"time"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
)

// Default latencies of the simulated backends
const (
	DefaultDBLatency    = 250 * time.Millisecond
	DefaultCacheLatency = 75 * time.Millisecond
)

// Backend stands in for a dependency that answers after a fixed delay
type Backend struct {
	name      string
	operation string
	latency   time.Duration
	tracer    *tracing.Tracer
	metrics   *monitoring.Metrics
}

// NewBackend creates a simulated backend. Its calls are recorded as spans
// named "<name>.<operation>".
func NewBackend(name, operation string, latency time.Duration, tracer *tracing.Tracer, metrics *monitoring.Metrics) *Backend {
	return &Backend{
		name:      name,
		operation: operation,
		latency:   latency,
		tracer:    tracer,
		metrics:   metrics,
	}
}

// Call waits for the backend's latency inside a child span. It returns early
// with ctx's error when the request goes away.
func (b *Backend) Call(ctx context.Context) error {
	ctx, scope := b.tracer.Start(ctx, b.name+"."+b.operation,
		tracing.WithAttributes(tracing.Attr("backend.latency_ms", b.latency.Milliseconds())),
	)
	defer scope.End()

	timer := monitoring.NewTimer(b.metrics, b.name, b.operation)

	t := time.NewTimer(b.latency)
	defer t.Stop()

	select {
	case <-t.C:
		timer.Stop("success")
		return nil
	case <-ctx.Done():
		timer.Stop("canceled")
		_ = scope.Span().RecordError(ctx.Err())
		return ctx.Err()
	}
}
