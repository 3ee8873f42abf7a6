package tracing

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Transport is an http.RoundTripper that opens a client span around each
// outbound request and propagates it in the traceparent header. Responses
// and errors of the wrapped transport are returned unchanged.
type Transport struct {
	tracer *Tracer
	base   http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil
func NewTransport(t *Tracer, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{tracer: t, base: base}
}

// RoundTrip implements http.RoundTripper
func (tr *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t := tr.tracer
	scope := t.startOutbound(req.Context(), req.Method+" "+req.URL.Host,
		Attr(AttrHTTPMethod, req.Method),
		Attr(AttrURLFull, req.URL.String()),
		Attr(AttrServerAddress, req.URL.Hostname()),
	)

	// RoundTrippers must not modify the caller's request
	out := req.Clone(req.Context())
	Inject(scope.Context(), out.Header)

	defer t.endOnPanic(scope)
	resp, err := tr.base.RoundTrip(out)

	span := scope.span
	switch {
	case err != nil:
		_ = span.RecordError(err)
	case resp.StatusCode >= http.StatusInternalServerError:
		_ = span.SetAttribute(AttrHTTPStatusCode, resp.StatusCode)
		_ = span.SetStatus(Error(http.StatusText(resp.StatusCode)))
	default:
		_ = span.SetAttribute(AttrHTTPStatusCode, resp.StatusCode)
	}
	t.endScope(scope)

	return resp, err
}

// UnaryClientInterceptor creates a gRPC client interceptor that opens a
// client span around each call and propagates it in metadata
func UnaryClientInterceptor(t *Tracer) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		service, name := splitMethod(method)
		scope := t.startOutbound(ctx, strings.TrimPrefix(method, "/"),
			Attr(AttrRPCSystem, "grpc"),
			Attr(AttrRPCService, service),
			Attr(AttrRPCMethod, name),
		)

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		InjectMetadata(scope.Context(), md)

		defer t.endOnPanic(scope)
		err := invoker(metadata.NewOutgoingContext(ctx, md), method, req, reply, cc, opts...)

		st, _ := status.FromError(err)
		_ = scope.span.SetAttribute(AttrRPCStatusCode, int64(st.Code()))
		if err != nil {
			_ = scope.span.SetStatus(Error(st.Message()))
		}
		t.endScope(scope)

		return err
	}
}

// startOutbound opens a client span as a child of the current context. The
// span is not entered into the registry: nothing runs nested under it in
// this process.
func (t *Tracer) startOutbound(ctx context.Context, name string, attrs ...KeyValue) *Scope {
	var parent *TraceContext
	if tc, ok := t.registry.Current(ctx); ok {
		parent = &tc
	}
	span, _ := t.recorder.Start(parent, name, WithKind(SpanKindClient), WithAttributes(attrs...))
	return &Scope{tracer: t, span: span, guard: &Guard{}}
}
