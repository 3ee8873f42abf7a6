package tracing

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Tracer ties the recorder, the registry and the exporter together. It is
// created once per process and passed explicitly to everything that opens
// spans.
type Tracer struct {
	recorder *Recorder
	registry *Registry
	exporter *Exporter
	resource Resource
	logger   *zap.Logger
	metrics  *Metrics
	enabled  bool
}

// New creates a tracer. exporter may be nil, in which case spans are
// recorded but never delivered.
func New(resource Resource, sampler Sampler, exporter *Exporter, logger *zap.Logger, metrics *Metrics) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sink SpanSink
	if exporter != nil {
		sink = exporter
	}
	return &Tracer{
		recorder: NewRecorder(resource, sampler, sink, logger, metrics),
		registry: NewRegistry(),
		exporter: exporter,
		resource: resource,
		logger:   logger,
		metrics:  metrics,
		enabled:  true,
	}
}

// NewDisabled creates a tracer that never samples and has no exporter.
// Spans opened through it are valid handles that go nowhere.
func NewDisabled(resource Resource, logger *zap.Logger) *Tracer {
	t := New(resource, AlwaysOff(), nil, logger, nil)
	t.enabled = false
	return t
}

// Enabled reports whether interceptors should be installed
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// Resource returns the process resource
func (t *Tracer) Resource() Resource {
	return t.resource
}

// Recorder returns the span recorder
func (t *Tracer) Recorder() *Recorder {
	return t.recorder
}

// Registry returns the active-context registry
func (t *Tracer) Registry() *Registry {
	return t.registry
}

// Exporter returns the exporter, or nil
func (t *Tracer) Exporter() *Exporter {
	return t.exporter
}

// Start opens a child of the current context of ctx, or a root when nothing
// is current, and makes it current. The returned context must be used for
// work nested under the span. End the scope with defer.
func (t *Tracer) Start(ctx context.Context, name string, opts ...StartOption) (context.Context, *Scope) {
	var parent *TraceContext
	if tc, ok := t.registry.Current(ctx); ok {
		parent = &tc
	}
	if _, ok := ctx.Value(slotKey{t.registry}).(*slot); !ok {
		ctx = t.registry.Attach(ctx)
	}
	return ctx, t.enter(ctx, parent, name, opts...)
}

// startRequest opens the span of an inbound call on a fresh execution slot
func (t *Tracer) startRequest(ctx context.Context, parent *TraceContext, name string, opts ...StartOption) (context.Context, *Scope) {
	ctx = t.registry.Attach(ctx)
	return ctx, t.enter(ctx, parent, name, opts...)
}

func (t *Tracer) enter(ctx context.Context, parent *TraceContext, name string, opts ...StartOption) *Scope {
	span, tc := t.recorder.Start(parent, name, opts...)
	return &Scope{
		tracer: t,
		span:   span,
		guard:  t.registry.Enter(ctx, tc),
	}
}

// Fork returns a context for work handed to another goroutine. The new
// execution starts from the context current in ctx at the time of the call
// and keeps its own guard stack.
func (t *Tracer) Fork(ctx context.Context) context.Context {
	return t.registry.Attach(ctx)
}

// Current returns the current trace context of ctx
func (t *Tracer) Current(ctx context.Context) (TraceContext, bool) {
	return t.registry.Current(ctx)
}

// LogFields returns trace_id and span_id fields for the current context of
// ctx, or nothing
func (t *Tracer) LogFields(ctx context.Context) []zap.Field {
	tc, ok := t.registry.Current(ctx)
	if !ok {
		return nil
	}
	return tc.LogFields()
}

// SampledTraceID returns the trace id of the current context of ctx when that
// trace is being recorded
func (t *Tracer) SampledTraceID(ctx context.Context) (string, bool) {
	tc, ok := t.registry.Current(ctx)
	if !ok || !tc.Sampled {
		return "", false
	}
	return tc.TraceID.String(), true
}

// Shutdown drains the exporter
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.exporter == nil {
		return nil
	}
	return t.exporter.Shutdown(ctx)
}

// Scope is an open span that is also the current context of its execution.
// End closes the span and restores the previous context.
type Scope struct {
	tracer *Tracer
	span   *Span
	guard  *Guard
	once   sync.Once
}

// Span returns the span handle
func (s *Scope) Span() *Span {
	return s.span
}

// Context returns the trace context of the span
func (s *Scope) Context() TraceContext {
	return s.span.Context()
}

// End ends the span, then releases its guard. Only the first call has an
// effect; later calls return nil.
func (s *Scope) End() error {
	var err error
	s.once.Do(func() {
		endErr := s.tracer.recorder.End(s.span)
		releaseErr := s.guard.Release()
		if releaseErr != nil {
			s.tracer.logger.Warn("trace context released out of order",
				append(s.span.Context().LogFields(),
					zap.String("span", s.span.Name()),
					zap.Error(releaseErr),
				)...,
			)
		}
		err = errors.Join(endErr, releaseErr)
	})
	return err
}

// Fail records err on the span and ends the scope
func (s *Scope) Fail(err error) error {
	if recErr := s.span.RecordError(err); recErr != nil {
		return recErr
	}
	return s.End()
}
