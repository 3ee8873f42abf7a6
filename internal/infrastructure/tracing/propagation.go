package tracing

import (
	"encoding/hex"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	// TraceParentHeader is the header carrying the trace context on every
	// inbound and outbound request.
	TraceParentHeader = "traceparent"

	// TraceIDResponseHeader echoes the trace id back to HTTP clients.
	TraceIDResponseHeader = "X-Trace-ID"

	traceParentVersion = "00"
	flagSampled        = 0x01

	// version(2) + trace id(32) + span id(16) + flags(2) + 3 dashes
	traceParentLen = 55
)

// Encode renders the context as a traceparent header value
func Encode(tc TraceContext) string {
	var flags byte
	if tc.Sampled {
		flags |= flagSampled
	}

	var b strings.Builder
	b.Grow(traceParentLen)
	b.WriteString(traceParentVersion)
	b.WriteByte('-')
	b.WriteString(tc.TraceID.String())
	b.WriteByte('-')
	b.WriteString(tc.SpanID.String())
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString([]byte{flags}))
	return b.String()
}

// Decode parses a traceparent header value. The span id of the result is the
// caller's span; the returned context is marked Remote.
func Decode(value string) (TraceContext, error) {
	fail := func(reason string) (TraceContext, error) {
		return TraceContext{}, &ContextDecodeError{Value: value, Reason: reason}
	}

	if len(value) != traceParentLen {
		return fail("wrong length")
	}
	parts := strings.Split(value, "-")
	if len(parts) != 4 {
		return fail("wrong number of fields")
	}
	version, traceHex, spanHex, flagsHex := parts[0], parts[1], parts[2], parts[3]

	if len(version) != 2 || !isLowerHex(version) {
		return fail("malformed version")
	}
	if version != traceParentVersion {
		return fail("unsupported version " + version)
	}

	var tc TraceContext
	if len(traceHex) != 32 || !isLowerHex(traceHex) {
		return fail("malformed trace id")
	}
	if _, err := hex.Decode(tc.TraceID[:], []byte(traceHex)); err != nil {
		return fail("malformed trace id")
	}
	if !tc.TraceID.IsValid() {
		return fail("all-zero trace id")
	}

	if len(spanHex) != 16 || !isLowerHex(spanHex) {
		return fail("malformed span id")
	}
	if _, err := hex.Decode(tc.SpanID[:], []byte(spanHex)); err != nil {
		return fail("malformed span id")
	}
	if !tc.SpanID.IsValid() {
		return fail("all-zero span id")
	}

	if len(flagsHex) != 2 || !isLowerHex(flagsHex) {
		return fail("malformed flags")
	}
	var flags [1]byte
	if _, err := hex.Decode(flags[:], []byte(flagsHex)); err != nil {
		return fail("malformed flags")
	}
	if flags[0]&^flagSampled != 0 {
		return fail("unknown flag bits")
	}

	tc.Sampled = flags[0]&flagSampled != 0
	tc.Remote = true
	return tc, nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// Inject writes the context into HTTP headers
func Inject(tc TraceContext, headers http.Header) {
	headers.Set(TraceParentHeader, Encode(tc))
}

// Extract reads the context from HTTP headers. ErrContextNotFound is returned
// when the header is absent, a ContextDecodeError when it is malformed.
func Extract(headers http.Header) (TraceContext, error) {
	v := headers.Get(TraceParentHeader)
	if v == "" {
		return TraceContext{}, ErrContextNotFound
	}
	return Decode(v)
}

// InjectMetadata writes the context into gRPC metadata
func InjectMetadata(tc TraceContext, md metadata.MD) {
	md.Set(TraceParentHeader, Encode(tc))
}

// ExtractMetadata reads the context from gRPC metadata
func ExtractMetadata(md metadata.MD) (TraceContext, error) {
	vals := md.Get(TraceParentHeader)
	if len(vals) == 0 || vals[0] == "" {
		return TraceContext{}, ErrContextNotFound
	}
	return Decode(vals[0])
}
