package tracing

import (
	"go.uber.org/zap"
)

// TraceContext is the identity of one span as seen by its descendants
type TraceContext struct {
	TraceID      TraceID
	SpanID       SpanID
	ParentSpanID SpanID // zero for a root
	Sampled      bool
	Remote       bool // decoded from an inbound header rather than started here
}

// IsValid reports whether both identifiers are set
func (tc TraceContext) IsValid() bool {
	return tc.TraceID.IsValid() && tc.SpanID.IsValid()
}

// IsRoot reports whether the context has no parent span
func (tc TraceContext) IsRoot() bool {
	return !tc.ParentSpanID.IsValid()
}

// LogFields returns zap fields correlating a log line with the context
func (tc TraceContext) LogFields() []zap.Field {
	if !tc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String(LogFieldTraceID, tc.TraceID.String()),
		zap.String(LogFieldSpanID, tc.SpanID.String()),
	}
}

// Log field keys
const (
	LogFieldTraceID = "trace_id"
	LogFieldSpanID  = "span_id"
)
