package tracing

import (
	"time"

	"go.uber.org/zap"
)

// SpanSink receives sampled, closed spans. Enqueue must not block.
type SpanSink interface {
	Enqueue(rec SpanRecord) bool
}

// StartOption customizes a span at creation
type StartOption func(*startConfig)

type startConfig struct {
	kind       SpanKind
	attributes []KeyValue
	startTime  time.Time
}

// WithKind sets the span kind
func WithKind(kind SpanKind) StartOption {
	return func(c *startConfig) { c.kind = kind }
}

// WithAttributes sets attributes at creation, before any sampling
func WithAttributes(attrs ...KeyValue) StartOption {
	return func(c *startConfig) { c.attributes = append(c.attributes, attrs...) }
}

// WithStartTime overrides the start timestamp
func WithStartTime(t time.Time) StartOption {
	return func(c *startConfig) { c.startTime = t }
}

// Recorder creates spans and hands sampled ones to a sink when they end
type Recorder struct {
	resource Resource
	sampler  Sampler
	ids      IDGenerator
	sink     SpanSink
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
}

// NewRecorder creates a recorder. sink may be nil, in which case sampled
// spans are discarded on End.
func NewRecorder(resource Resource, sampler Sampler, sink SpanSink, logger *zap.Logger, metrics *Metrics) *Recorder {
	if sampler == nil {
		sampler = ParentBased(AlwaysOn())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		resource: resource,
		sampler:  sampler,
		ids:      NewIDGenerator(),
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Sampler returns the configured sampler
func (r *Recorder) Sampler() Sampler {
	return r.sampler
}

// Start opens a span. With a local parent the trace id and sampling decision
// are inherited; a remote parent or no parent consults the sampler, which is
// the single point where a trace's decision is made in this process.
func (r *Recorder) Start(parent *TraceContext, name string, opts ...StartOption) (*Span, TraceContext) {
	cfg := startConfig{kind: SpanKindInternal}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.startTime.IsZero() {
		cfg.startTime = r.now()
	}

	tc := TraceContext{SpanID: r.ids.NewSpanID()}
	switch {
	case parent != nil && parent.IsValid() && !parent.Remote:
		tc.TraceID = parent.TraceID
		tc.ParentSpanID = parent.SpanID
		tc.Sampled = parent.Sampled
	case parent != nil && parent.IsValid():
		tc.TraceID = parent.TraceID
		tc.ParentSpanID = parent.SpanID
		tc.Sampled = r.sampler.ShouldSample(SamplingParameters{Parent: parent, TraceID: parent.TraceID, Name: name})
	default:
		tc.TraceID = r.ids.NewTraceID()
		tc.Sampled = r.sampler.ShouldSample(SamplingParameters{TraceID: tc.TraceID, Name: name})
	}

	span := &Span{
		record: SpanRecord{
			TraceID:      tc.TraceID,
			SpanID:       tc.SpanID,
			ParentSpanID: tc.ParentSpanID,
			Name:         name,
			Kind:         cfg.kind,
			StartTime:    cfg.startTime,
			ServiceName:  r.resource.ServiceName,
			Sampled:      tc.Sampled,
		},
	}
	for _, kv := range cfg.attributes {
		span.setLocked(kv.Key, kv.Value)
	}

	r.metrics.spanStarted(tc.Sampled)
	return span, tc
}

// End closes the span and enqueues it when sampled. Ending twice returns a
// SpanStateError and leaves the first record untouched.
func (r *Recorder) End(span *Span) error {
	rec, err := span.finish(r.now())
	if err != nil {
		r.logger.DPanic("span ended twice",
			zap.String("span", span.Name()),
			zap.Error(err),
		)
		return err
	}
	r.metrics.spanEnded(rec.Status.Code)

	if rec.Sampled && r.sink != nil {
		r.sink.Enqueue(rec)
	}
	return nil
}
