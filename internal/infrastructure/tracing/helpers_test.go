package tracing

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// memorySink collects every enqueued record
type memorySink struct {
	mu      sync.Mutex
	records []SpanRecord
}

func (s *memorySink) Enqueue(rec SpanRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return true
}

func (s *memorySink) Records() []SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpanRecord(nil), s.records...)
}

func (s *memorySink) byName(name string) []SpanRecord {
	var out []SpanRecord
	for _, r := range s.Records() {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// newTestTracer builds a tracer whose sampled spans land in a memorySink
func newTestTracer(sampler Sampler, logger *zap.Logger, metrics *Metrics) (*Tracer, *memorySink) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := &memorySink{}
	resource := NewResource("test-service", "1.0.0", "test")
	return &Tracer{
		recorder: NewRecorder(resource, sampler, sink, logger, metrics),
		registry: NewRegistry(),
		resource: resource,
		logger:   logger,
		metrics:  metrics,
		enabled:  true,
	}, sink
}

func newObservedLogger(level zap.AtomicLevel) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// fakeClient is a scripted collector
type fakeClient struct {
	mu      sync.Mutex
	errs    []error // returned by successive calls, the last one repeating
	calls   int
	batches [][]SpanRecord
	closed  bool
	block   chan struct{} // when set, Export waits for it or ctx

	inFlight     int
	closedInUse  bool // Close ran while an Export was still running
	usedAfterEnd bool // Export ran after Close
}

func (c *fakeClient) Export(ctx context.Context, resource Resource, batch []SpanRecord) error {
	c.mu.Lock()
	c.inFlight++
	if c.closed {
		c.usedAfterEnd = true
	}
	block := c.block
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			c.mu.Lock()
			c.calls++
			c.mu.Unlock()
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		if len(c.errs) > 1 {
			c.errs = c.errs[1:]
		}
		if err != nil {
			return err
		}
	}
	c.batches = append(c.batches, append([]SpanRecord(nil), batch...))
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.closedInUse = true
	}
	c.closed = true
	return nil
}

// Misuse reports whether Close and Export ever overlapped
func (c *fakeClient) Misuse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedInUse || c.usedAfterEnd
}

func (c *fakeClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeClient) Batches() [][]SpanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]SpanRecord(nil), c.batches...)
}

func (c *fakeClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testRecord(name string) SpanRecord {
	ids := NewIDGenerator()
	return SpanRecord{
		TraceID: ids.NewTraceID(),
		SpanID:  ids.NewSpanID(),
		Name:    name,
		Sampled: true,
	}
}
