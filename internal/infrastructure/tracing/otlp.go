package tracing

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// InstrumentationName identifies this library in exported scope spans
const InstrumentationName = "github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"

// CollectorOptions configures a collector client
type CollectorOptions struct {
	Endpoint string
	Token    string
	Insecure bool
	// DialOptions are appended to the gRPC dial options; used by tests to
	// install an in-memory dialer
	DialOptions []grpc.DialOption
}

// GRPCClient exports batches with the OTLP TraceService over one long-lived
// channel. The bearer token travels as per-RPC metadata.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client collectortracepb.TraceServiceClient
	logger *zap.Logger
}

// NewGRPCClient creates the collector channel. The connection is
// established lazily on the first export.
func NewGRPCClient(opts CollectorOptions, logger *zap.Logger) (*GRPCClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if opts.Insecure {
		transport = insecure.NewCredentials()
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(transport),
		grpc.WithPerRPCCredentials(bearerToken{token: opts.Token, secure: !opts.Insecure}),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create collector channel: %w", err)
	}

	return &GRPCClient{
		conn:   conn,
		client: collectortracepb.NewTraceServiceClient(conn),
		logger: logger.Named("otlp"),
	}, nil
}

// Export implements Client
func (c *GRPCClient) Export(ctx context.Context, resource Resource, batch []SpanRecord) error {
	resp, err := c.client.Export(ctx, newExportRequest(resource, batch))
	if err != nil {
		return &ExportError{Transient: isTransientCode(status.Code(err)), Err: err}
	}
	logPartialSuccess(c.logger, resp.GetPartialSuccess())
	return nil
}

// Close tears down the channel
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func isTransientCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// bearerToken attaches the collector credential to every call
type bearerToken struct {
	token  string
	secure bool
}

func (b bearerToken) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b bearerToken) RequireTransportSecurity() bool {
	return b.secure
}

func logPartialSuccess(logger *zap.Logger, ps *collectortracepb.ExportTracePartialSuccess) {
	if ps.GetRejectedSpans() > 0 || ps.GetErrorMessage() != "" {
		logger.Warn("collector rejected part of a batch",
			zap.Int64("rejected_spans", ps.GetRejectedSpans()),
			zap.String("message", ps.GetErrorMessage()),
		)
	}
}

func newExportRequest(resource Resource, batch []SpanRecord) *collectortracepb.ExportTraceServiceRequest {
	spans := make([]*tracepb.Span, len(batch))
	for i := range batch {
		spans[i] = spanToProto(&batch[i])
	}

	return &collectortracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: attributesToProto(resource.Attributes()),
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: InstrumentationName},
				Spans: spans,
			}},
			SchemaUrl: semconv.SchemaURL,
		}},
	}
}

func spanToProto(rec *SpanRecord) *tracepb.Span {
	span := &tracepb.Span{
		TraceId:           append([]byte(nil), rec.TraceID[:]...),
		SpanId:            append([]byte(nil), rec.SpanID[:]...),
		Name:              rec.Name,
		Kind:              spanKindToProto(rec.Kind),
		StartTimeUnixNano: uint64(rec.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(rec.EndTime.UnixNano()),
		Attributes:        attributesToProto(rec.Attributes),
		Status: &tracepb.Status{
			Code:    statusCodeToProto(rec.Status.Code),
			Message: rec.Status.Description,
		},
	}
	if rec.ParentSpanID.IsValid() {
		span.ParentSpanId = append([]byte(nil), rec.ParentSpanID[:]...)
	}
	return span
}

func spanKindToProto(kind SpanKind) tracepb.Span_SpanKind {
	switch kind {
	case SpanKindServer:
		return tracepb.Span_SPAN_KIND_SERVER
	case SpanKindClient:
		return tracepb.Span_SPAN_KIND_CLIENT
	default:
		return tracepb.Span_SPAN_KIND_INTERNAL
	}
}

func statusCodeToProto(code StatusCode) tracepb.Status_StatusCode {
	switch code {
	case StatusOK:
		return tracepb.Status_STATUS_CODE_OK
	case StatusError:
		return tracepb.Status_STATUS_CODE_ERROR
	default:
		return tracepb.Status_STATUS_CODE_UNSET
	}
}

func attributesToProto(attrs []KeyValue) []*commonpb.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]*commonpb.KeyValue, len(attrs))
	for i, kv := range attrs {
		out[i] = &commonpb.KeyValue{Key: kv.Key, Value: valueToProto(kv.Value)}
	}
	return out
}

func valueToProto(v Value) *commonpb.AnyValue {
	switch v.Type {
	case BoolValue:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_BoolValue{BoolValue: v.Bool}}
	case Int64Value:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v.Int64}}
	case Float64Value:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v.Float64}}
	default:
		return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v.String}}
	}
}
