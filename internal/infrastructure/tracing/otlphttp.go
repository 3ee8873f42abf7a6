package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"
)

const (
	otlpTracesPath      = "/v1/traces"
	protobufContentType = "application/x-protobuf"
)

// HTTPClient exports batches as protobuf over OTLP/HTTP. Retries are left to
// the exporter, so resty's own retry is disabled.
type HTTPClient struct {
	resty  *resty.Client
	logger *zap.Logger
}

// NewHTTPClient creates a client posting to <endpoint>/v1/traces
func NewHTTPClient(opts CollectorOptions, logger *zap.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := strings.TrimSuffix(opts.Endpoint, "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https://"
		if opts.Insecure {
			scheme = "http://"
		}
		endpoint = scheme + endpoint
	}

	client := resty.New().
		SetBaseURL(endpoint).
		SetRetryCount(0).
		SetAuthToken(opts.Token).
		SetHeader("Content-Type", protobufContentType).
		SetHeader("User-Agent", "tracechain-otlp/1.0")

	return &HTTPClient{
		resty:  client,
		logger: logger.Named("otlphttp"),
	}, nil
}

// Export implements Client
func (c *HTTPClient) Export(ctx context.Context, resource Resource, batch []SpanRecord) error {
	body, err := proto.Marshal(newExportRequest(resource, batch))
	if err != nil {
		return &ExportError{Err: fmt.Errorf("failed to marshal export request: %w", err)}
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		SetBody(body).
		Post(otlpTracesPath)
	if err != nil {
		return &ExportError{Transient: !errors.Is(err, context.Canceled), Err: err}
	}

	if !resp.IsSuccess() {
		return &ExportError{
			Transient: isTransientStatus(resp.StatusCode()),
			Err:       fmt.Errorf("collector responded %s", resp.Status()),
		}
	}

	var out collectortracepb.ExportTraceServiceResponse
	if len(resp.Body()) > 0 {
		if err := proto.Unmarshal(resp.Body(), &out); err != nil {
			c.logger.Debug("ignoring undecodable collector response", zap.Error(err))
			return nil
		}
	}
	logPartialSuccess(c.logger, out.GetPartialSuccess())
	return nil
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.resty.GetClient().CloseIdleConnections()
	return nil
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
