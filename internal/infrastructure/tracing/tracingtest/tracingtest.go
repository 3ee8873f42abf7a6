// Package tracingtest provides an in-memory collector for tests of code that
// opens spans.
package tracingtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
)

// Collector is a tracing.Client that keeps every exported span
type Collector struct {
	mu      sync.Mutex
	batches [][]tracing.SpanRecord
	closed  bool
}

// Export implements tracing.Client
func (c *Collector) Export(ctx context.Context, resource tracing.Resource, batch []tracing.SpanRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]tracing.SpanRecord(nil), batch...))
	return nil
}

// Close implements tracing.Client
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Spans returns every span exported so far, in export order
func (c *Collector) Spans() []tracing.SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []tracing.SpanRecord
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

// Batches returns the number of batches received
func (c *Collector) Batches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

// Closed reports whether the exporter closed the collector
func (c *Collector) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// NewTracer returns a started tracer sampling every trace into a Collector.
// Call Flush before inspecting the collector.
func NewTracer(t testing.TB, serviceName string) (*tracing.Tracer, *Collector) {
	t.Helper()

	collector := &Collector{}
	resource := tracing.NewResource(serviceName, "test", "test")
	exporter := tracing.NewExporter(collector, resource, tracing.ExporterOptions{
		BatchSize:     64,
		FlushInterval: time.Hour,
	}, zap.NewNop(), nil)
	exporter.Start()

	tracer := tracing.New(resource, tracing.ParentBased(tracing.AlwaysOn()), exporter, zap.NewNop(), nil)
	t.Cleanup(func() {
		_ = tracer.Shutdown(context.Background())
	})
	return tracer, collector
}

// Flush drains the tracer's exporter and returns every span it delivered
func Flush(t testing.TB, tracer *tracing.Tracer, collector *Collector) []tracing.SpanRecord {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracer.Shutdown(ctx); err != nil && !errors.Is(err, tracing.ErrExporterStopped) {
		t.Fatalf("flush spans: %v", err)
	}
	return collector.Spans()
}

// ByName returns the spans named name
func ByName(spans []tracing.SpanRecord, name string) []tracing.SpanRecord {
	var out []tracing.SpanRecord
	for _, s := range spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
