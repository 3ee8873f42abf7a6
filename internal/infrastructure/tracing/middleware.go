package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const statusRequestCanceled = "request canceled"

// HTTPMiddleware creates Gin middleware that opens a server span around each
// request. A valid traceparent header continues the caller's trace; a missing
// or malformed one starts a new root. The response is never altered apart
// from the X-Trace-ID header. Register it after gin.Recovery so a panicking
// handler still ends its span.
func HTTPMiddleware(t *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := c.Request
		tc, err := Extract(req.Header)
		parent := t.inboundParent(tc, err)

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}

		ctx, scope := t.startRequest(req.Context(), parent, req.Method+" "+route,
			WithKind(SpanKindServer),
			WithAttributes(
				Attr(AttrHTTPMethod, req.Method),
				Attr(AttrHTTPRoute, route),
				Attr(AttrURLPath, req.URL.Path),
			),
		)
		c.Request = req.WithContext(ctx)
		c.Header(TraceIDResponseHeader, scope.Context().TraceID.String())

		defer t.endOnPanic(scope)

		c.Next()

		code := c.Writer.Status()
		span := scope.span
		_ = span.SetAttribute(AttrHTTPStatusCode, code)
		switch {
		case len(c.Errors) > 0:
			_ = span.SetStatus(Error(c.Errors.Last().Error()))
		case ctx.Err() != nil:
			_ = span.SetStatus(Error(statusRequestCanceled))
		case code >= http.StatusInternalServerError:
			_ = span.SetStatus(Error(http.StatusText(code)))
		}
		t.endScope(scope)
	}
}

// UnaryServerInterceptor creates a gRPC unary interceptor that opens a
// server span around each call
func UnaryServerInterceptor(t *Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		ctx, scope := t.startRPC(ctx, info.FullMethod)
		defer func() {
			if r := recover(); r != nil {
				_ = scope.span.SetStatus(Error(fmt.Sprintf("panic: %v", r)))
				t.endScope(scope)
				panic(r)
			}
			t.endRPC(ctx, scope, err)
		}()

		return handler(ctx, req)
	}
}

// StreamServerInterceptor creates a gRPC stream interceptor that opens a
// server span spanning the whole stream
func StreamServerInterceptor(t *Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		ctx, scope := t.startRPC(ss.Context(), info.FullMethod)
		_ = scope.span.SetAttribute("rpc.streaming", true)
		defer func() {
			if r := recover(); r != nil {
				_ = scope.span.SetStatus(Error(fmt.Sprintf("panic: %v", r)))
				t.endScope(scope)
				panic(r)
			}
			t.endRPC(ctx, scope, err)
		}()

		return handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// tracedServerStream wraps grpc.ServerStream with the traced context
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

func (t *Tracer) startRPC(ctx context.Context, fullMethod string) (context.Context, *Scope) {
	var parent *TraceContext
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		tc, err := ExtractMetadata(md)
		parent = t.inboundParent(tc, err)
	}

	service, method := splitMethod(fullMethod)
	return t.startRequest(ctx, parent, strings.TrimPrefix(fullMethod, "/"),
		WithKind(SpanKindServer),
		WithAttributes(
			Attr(AttrRPCSystem, "grpc"),
			Attr(AttrRPCService, service),
			Attr(AttrRPCMethod, method),
		),
	)
}

func (t *Tracer) endRPC(ctx context.Context, scope *Scope, err error) {
	span := scope.span
	st, _ := status.FromError(err)
	_ = span.SetAttribute(AttrRPCStatusCode, int64(st.Code()))
	switch {
	case err != nil:
		_ = span.SetStatus(Error(st.Message()))
	case ctx.Err() != nil:
		_ = span.SetStatus(Error(statusRequestCanceled))
	}
	t.endScope(scope)
}

// inboundParent turns the result of extracting an inbound header into the
// parent of the server span. Malformed headers are counted and otherwise
// treated as absent.
func (t *Tracer) inboundParent(tc TraceContext, err error) *TraceContext {
	if err == nil {
		return &tc
	}
	if !errors.Is(err, ErrContextNotFound) {
		t.metrics.decodeError()
		t.logger.Debug("ignoring malformed trace context", zap.Error(err))
	}
	return nil
}

// endScope ends a scope opened by an interceptor. Failures are bookkeeping
// problems of the tracer and never reach the caller.
func (t *Tracer) endScope(scope *Scope) {
	if err := scope.End(); err != nil {
		t.logger.Warn("failed to end span",
			append(scope.Context().LogFields(), zap.Error(err))...,
		)
	}
}

// endOnPanic ends scope with an error status when the surrounding call
// panics, then lets the panic continue. It must be deferred directly.
func (t *Tracer) endOnPanic(scope *Scope) {
	if r := recover(); r != nil {
		_ = scope.span.SetStatus(Error(fmt.Sprintf("panic: %v", r)))
		t.endScope(scope)
		panic(r)
	}
}

func splitMethod(fullMethod string) (service, method string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
