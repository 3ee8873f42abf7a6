package tracing

import (
	"errors"
	"fmt"
)

var (
	// ErrContextNotFound is returned when no trace context header is present.
	ErrContextNotFound = errors.New("tracing context not found")

	// ErrInvalidTraceParent is matched by every ContextDecodeError.
	ErrInvalidTraceParent = errors.New("invalid traceparent")

	// ErrSpanClosed is matched by every SpanStateError.
	ErrSpanClosed = errors.New("span already ended")

	// ErrUnbalancedRelease is returned when a guard is released while
	// guards entered after it are still active.
	ErrUnbalancedRelease = errors.New("guard released out of order")

	// ErrGuardReleased is returned when a guard is released twice.
	ErrGuardReleased = errors.New("guard already released")

	// ErrExporterStopped is returned by Shutdown when called more than once.
	ErrExporterStopped = errors.New("exporter already stopped")
)

// ContextDecodeError describes why an inbound header was rejected.
// Callers recover by starting a fresh root context.
type ContextDecodeError struct {
	Value  string
	Reason string
}

func (e *ContextDecodeError) Error() string {
	return fmt.Sprintf("invalid traceparent %q: %s", e.Value, e.Reason)
}

func (e *ContextDecodeError) Is(target error) bool {
	return target == ErrInvalidTraceParent
}

// SpanStateError reports a mutation or close of an already closed span.
// It signals a programming error in the caller.
type SpanStateError struct {
	SpanID SpanID
	Name   string
	Op     string
}

func (e *SpanStateError) Error() string {
	return fmt.Sprintf("%s on ended span %q (%s)", e.Op, e.Name, e.SpanID)
}

func (e *SpanStateError) Is(target error) bool {
	return target == ErrSpanClosed
}

// ExportError wraps a collector failure. Transient errors are retried.
type ExportError struct {
	Transient bool
	Err       error
}

func (e *ExportError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("export failed (%s): %v", kind, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return exportErr.Transient
	}
	return false
}
