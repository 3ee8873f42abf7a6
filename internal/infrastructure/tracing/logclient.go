package tracing

import (
	"context"

	"go.uber.org/zap"
)

// LogClient writes every exported span as a structured log line. It is the
// collector of choice for local development.
type LogClient struct {
	logger *zap.Logger
}

// NewLogClient creates a client logging through logger
func NewLogClient(logger *zap.Logger) *LogClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogClient{logger: logger.Named("spans")}
}

// Export implements Client
func (c *LogClient) Export(ctx context.Context, resource Resource, batch []SpanRecord) error {
	for i := range batch {
		c.processSpan(resource, &batch[i])
	}
	return nil
}

// Close implements Client
func (c *LogClient) Close() error {
	return nil
}

func (c *LogClient) processSpan(resource Resource, span *SpanRecord) {
	fields := []zap.Field{
		zap.String(LogFieldTraceID, span.TraceID.String()),
		zap.String(LogFieldSpanID, span.SpanID.String()),
		zap.String("operation", span.Name),
		zap.Stringer("kind", span.Kind),
		zap.Duration("duration", span.Duration()),
		zap.String("service", resource.ServiceName),
	}

	if span.ParentSpanID.IsValid() {
		fields = append(fields, zap.String("parent_id", span.ParentSpanID.String()))
	}
	for _, kv := range span.Attributes {
		fields = append(fields, zap.Any(kv.Key, kv.Value.AsAny()))
	}

	if span.Status.Code == StatusError {
		fields = append(fields, zap.String("error", span.Status.Description))
		c.logger.Error("span completed with error", fields...)
	} else {
		c.logger.Info("span completed", fields...)
	}
}
