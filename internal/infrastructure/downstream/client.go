package downstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
)

// ErrNotConfigured is returned when no downstream URL is set
var ErrNotConfigured = errors.New("downstream service not configured")

// maxBodySize caps how much of a downstream response is read
const maxBodySize = 1 << 20

// Response is what the next service in the chain answered
type Response struct {
	StatusCode int
	Body       string
	TraceID    string
}

// Client calls the next service in the chain. Every attempt, retries
// included, goes through the tracing transport and gets its own client span.
type Client struct {
	url     string
	http    *retryablehttp.Client
	metrics *monitoring.Metrics
}

// Options configures the retry behavior
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// DefaultOptions returns the options used by the service
func DefaultOptions() Options {
	return Options{
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: time.Second,
		Timeout:      10 * time.Second,
	}
}

// NewClient creates a client for url. An empty url yields a client whose
// calls fail with ErrNotConfigured.
func NewClient(url string, opts Options, tracer *tracing.Tracer, logger *zap.Logger, metrics *monitoring.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = leveledLogger{logger.Named("downstream").Sugar()}
	if tracer != nil && tracer.Enabled() {
		retryClient.HTTPClient.Transport = tracing.NewTransport(tracer, retryClient.HTTPClient.Transport)
	}

	return &Client{
		url:     url,
		http:    retryClient,
		metrics: metrics,
	}
}

// Configured reports whether a downstream URL is set
func (c *Client) Configured() bool {
	return c.url != ""
}

// Get calls the downstream root endpoint
func (c *Client) Get(ctx context.Context) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	timer := monitoring.NewTimer(c.metrics, "downstream", "get")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		timer.Stop("error")
		return nil, fmt.Errorf("failed to build downstream request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		timer.Stop("error")
		return nil, fmt.Errorf("downstream call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		timer.Stop("error")
		return nil, fmt.Errorf("failed to read downstream response: %w", err)
	}

	timer.Stop(strconv.Itoa(resp.StatusCode))
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		TraceID:    resp.Header.Get(tracing.TraceIDResponseHeader),
	}, nil
}

// leveledLogger adapts zap to retryablehttp's logger interface
type leveledLogger struct {
	*zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.Warnw(msg, keysAndValues...)
}

// Module provides the *Client for DOWNSTREAM_URL
var Module = fx.Module("downstream",
	fx.Provide(func(cfg config.DownstreamConfig, tracer *tracing.Tracer, logger *zap.Logger, metrics *monitoring.Metrics) *Client {
		return NewClient(cfg.URL, DefaultOptions(), tracer, logger, metrics)
	}),
)
