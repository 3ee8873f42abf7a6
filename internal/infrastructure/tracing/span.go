package tracing

import (
	"fmt"
	"sync"
	"time"
)

// StatusCode is the outcome of a span
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// String returns the string representation of the code
func (c StatusCode) String() string {
	switch c {
	case StatusUnset:
		return "unset"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a code plus, for errors, the reason
type Status struct {
	Code        StatusCode
	Description string
}

// Ok returns a successful status
func Ok() Status { return Status{Code: StatusOK} }

// Error returns a failed status with a reason
func Error(reason string) Status { return Status{Code: StatusError, Description: reason} }

// SpanKind describes the role of a span in a call
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
)

// String returns the string representation of the kind
func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "server"
	case SpanKindClient:
		return "client"
	default:
		return "internal"
	}
}

// ValueType tags the scalar held by a Value
type ValueType int

const (
	StringValue ValueType = iota
	BoolValue
	Int64Value
	Float64Value
)

// Value is a scalar attribute value
type Value struct {
	Type    ValueType
	String  string
	Bool    bool
	Int64   int64
	Float64 float64
}

// ValueOf converts a Go value into a scalar. Unsupported types are rendered
// with fmt.Sprint.
func ValueOf(v any) Value {
	switch val := v.(type) {
	case string:
		return Value{Type: StringValue, String: val}
	case bool:
		return Value{Type: BoolValue, Bool: val}
	case int:
		return Value{Type: Int64Value, Int64: int64(val)}
	case int32:
		return Value{Type: Int64Value, Int64: int64(val)}
	case int64:
		return Value{Type: Int64Value, Int64: val}
	case uint32:
		return Value{Type: Int64Value, Int64: int64(val)}
	case float32:
		return Value{Type: Float64Value, Float64: float64(val)}
	case float64:
		return Value{Type: Float64Value, Float64: val}
	case Value:
		return val
	default:
		return Value{Type: StringValue, String: fmt.Sprint(val)}
	}
}

// AsAny returns the scalar as a plain Go value
func (v Value) AsAny() any {
	switch v.Type {
	case BoolValue:
		return v.Bool
	case Int64Value:
		return v.Int64
	case Float64Value:
		return v.Float64
	default:
		return v.String
	}
}

// KeyValue is one attribute
type KeyValue struct {
	Key   string
	Value Value
}

// Attr builds a KeyValue from any scalar
func Attr(key string, value any) KeyValue {
	return KeyValue{Key: key, Value: ValueOf(value)}
}

// SpanRecord is the immutable snapshot of a closed span
type SpanRecord struct {
	TraceID      TraceID
	SpanID       SpanID
	ParentSpanID SpanID
	Name         string
	Kind         SpanKind
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	Attributes   []KeyValue
	ServiceName  string
	Sampled      bool
}

// Duration returns how long the span was open
func (r SpanRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Span is the mutable handle of an open span. It is owned by the operation
// that started it; once ended every mutator returns a SpanStateError.
type Span struct {
	mu     sync.Mutex
	ended  bool
	record SpanRecord
	index  map[string]int // attribute key -> position in record.Attributes
}

// Context returns the identity of the span
func (s *Span) Context() TraceContext {
	return TraceContext{
		TraceID:      s.record.TraceID,
		SpanID:       s.record.SpanID,
		ParentSpanID: s.record.ParentSpanID,
		Sampled:      s.record.Sampled,
	}
}

// Name returns the span name
func (s *Span) Name() string {
	return s.record.Name
}

// IsEnded reports whether End has been called
func (s *Span) IsEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// SetAttribute sets or overwrites one attribute, keeping insertion order
func (s *Span) SetAttribute(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.stateError("SetAttribute")
	}
	s.setLocked(key, ValueOf(value))
	return nil
}

// SetAttributes sets several attributes in order
func (s *Span) SetAttributes(attrs ...KeyValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.stateError("SetAttributes")
	}
	for _, kv := range attrs {
		s.setLocked(kv.Key, kv.Value)
	}
	return nil
}

// SetStatus replaces the span status
func (s *Span) SetStatus(status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.stateError("SetStatus")
	}
	s.record.Status = status
	return nil
}

// RecordError marks the span failed with err as the reason
func (s *Span) RecordError(err error) error {
	if err == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return s.stateError("RecordError")
	}
	s.record.Status = Error(err.Error())
	s.setLocked(AttrErrorType, ValueOf(fmt.Sprintf("%T", err)))
	return nil
}

func (s *Span) setLocked(key string, v Value) {
	if i, ok := s.index[key]; ok {
		s.record.Attributes[i].Value = v
		return
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[key] = len(s.record.Attributes)
	s.record.Attributes = append(s.record.Attributes, KeyValue{Key: key, Value: v})
}

// finish closes the span and returns its snapshot
func (s *Span) finish(end time.Time) (SpanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return SpanRecord{}, s.stateError("End")
	}
	s.ended = true
	s.record.EndTime = end
	rec := s.record
	rec.Attributes = append([]KeyValue(nil), s.record.Attributes...)
	return rec, nil
}

func (s *Span) stateError(op string) error {
	return &SpanStateError{SpanID: s.record.SpanID, Name: s.record.Name, Op: op}
}
