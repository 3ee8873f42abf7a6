package tracing

import (
	"crypto/rand"
	"encoding/hex"
)

// TraceID identifies every span of one end-to-end request chain
type TraceID [16]byte

// SpanID identifies a single span within a trace
type SpanID [8]byte

var (
	nilTraceID TraceID
	nilSpanID  SpanID
)

// IsValid reports whether the trace ID is non-zero
func (t TraceID) IsValid() bool {
	return t != nilTraceID
}

// String returns the lowercase hex form used on the wire
func (t TraceID) String() string {
	return hex.EncodeToString(t[:])
}

// IsValid reports whether the span ID is non-zero
func (s SpanID) IsValid() bool {
	return s != nilSpanID
}

// String returns the lowercase hex form used on the wire
func (s SpanID) String() string {
	return hex.EncodeToString(s[:])
}

// IDGenerator produces random trace and span identifiers
type IDGenerator interface {
	NewTraceID() TraceID
	NewSpanID() SpanID
}

type randomIDGenerator struct{}

// NewIDGenerator returns a generator backed by crypto/rand
func NewIDGenerator() IDGenerator {
	return randomIDGenerator{}
}

// NewTraceID retries on the all-zero value, which the wire format forbids
func (randomIDGenerator) NewTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		_, _ = rand.Read(id[:]) // never returns an error since Go 1.24
	}
	return id
}

// NewSpanID retries on the all-zero value, which the wire format forbids
func (randomIDGenerator) NewSpanID() SpanID {
	var id SpanID
	for !id.IsValid() {
		_, _ = rand.Read(id[:])
	}
	return id
}
