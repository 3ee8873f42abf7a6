package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apihttp "github.com/GriffinCanCode/tracechain/internal/api/http"
	"github.com/GriffinCanCode/tracechain/internal/domain/greeter"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/downstream"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing/tracingtest"
)

// testService is one instance of the service with fast simulated backends
type testService struct {
	router    *gin.Engine
	tracer    *tracing.Tracer
	collector *tracingtest.Collector
	registry  *prometheus.Registry
}

func newTestService(t *testing.T, name, downstreamURL string) *testService {
	t.Helper()
	tracer, collector := tracingtest.NewTracer(t, name)
	svc := newTestServiceWithTracer(t, name, downstreamURL, tracer)
	svc.collector = collector
	return svc
}

func newTestServiceWithTracer(t *testing.T, name, downstreamURL string, tracer *tracing.Tracer) *testService {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Service.Name = name
	cfg.RateLimit.Enabled = false

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	g := greeter.New(
		greeter.NewBackend("db", "query", 2*time.Millisecond, tracer, metrics),
		greeter.NewBackend("cache", "update", time.Millisecond, tracer, metrics),
	)
	ds := downstream.NewClient(downstreamURL, downstream.Options{
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
		Timeout:      5 * time.Second,
	}, tracer, zap.NewNop(), metrics)

	handlers := apihttp.NewHandlers(g, ds, tracer, zap.NewNop())
	router := NewRouter(cfg, handlers, tracer, metrics, reg, zap.NewNop())

	return &testService{router: router, tracer: tracer, registry: reg}
}

func (s *testService) spans(t *testing.T) []tracing.SpanRecord {
	return tracingtest.Flush(t, s.tracer, s.collector)
}

func TestRootEndpoint(t *testing.T) {
	svc := newTestService(t, "service-a", "")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(tracing.TraceParentHeader, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	svc.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, greeter.Greeting, w.Body.String())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Header().Get(tracing.TraceIDResponseHeader))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	spans := svc.spans(t)
	require.Len(t, spans, 3)
	server := tracingtest.ByName(spans, "GET /")[0]
	assert.Equal(t, "00f067aa0ba902b7", server.ParentSpanID.String())
	for _, name := range []string{"db.query", "cache.update"} {
		child := tracingtest.ByName(spans, name)
		require.Len(t, child, 1, name)
		assert.Equal(t, server.SpanID, child[0].ParentSpanID, name)
		assert.Equal(t, server.TraceID, child[0].TraceID, name)
	}
	assert.EqualValues(t, 0, svc.tracer.Registry().Active())
}

func TestChainPropagatesAcrossServices(t *testing.T) {
	b := newTestService(t, "service-b", "")
	srvB := httptest.NewServer(b.router)
	defer srvB.Close()

	a := newTestService(t, "service-a", srvB.URL+"/")

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chain", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		TraceID    string `json:"trace_id"`
		Downstream struct {
			Status  int    `json:"status"`
			Body    string `json:"body"`
			TraceID string `json:"trace_id"`
		} `json:"downstream"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Downstream.Status)
	assert.Equal(t, greeter.Greeting, body.Downstream.Body)
	assert.Equal(t, body.TraceID, body.Downstream.TraceID, "both services report the same trace")

	spansA := a.spans(t)
	spansB := b.spans(t)

	chain := tracingtest.ByName(spansA, "GET /chain")
	require.Len(t, chain, 1)
	outbound := tracingtest.ByName(spansA, "GET "+srvB.Listener.Addr().String())
	require.Len(t, outbound, 1)
	rootB := tracingtest.ByName(spansB, "GET /")
	require.Len(t, rootB, 1)

	assert.Equal(t, chain[0].TraceID.String(), body.TraceID)
	assert.Equal(t, chain[0].SpanID, outbound[0].ParentSpanID)
	assert.Equal(t, chain[0].TraceID, rootB[0].TraceID)
	assert.Equal(t, outbound[0].SpanID, rootB[0].ParentSpanID, "B's server span is a child of A's client span")

	for _, s := range append(spansA, spansB...) {
		assert.Equal(t, chain[0].TraceID, s.TraceID, s.Name)
	}
	assert.Len(t, spansB, 3)
}

// unavailableCollector fails every export with a retryable error after a
// short delay
type unavailableCollector struct {
	calls atomic.Int32
}

func (c *unavailableCollector) Export(ctx context.Context, _ tracing.Resource, _ []tracing.SpanRecord) error {
	c.calls.Add(1)
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
	}
	return &tracing.ExportError{Transient: true, Err: errors.New("collector unavailable")}
}

func (c *unavailableCollector) Close() error { return nil }

func TestRequestsUnaffectedByFailingCollector(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	collector := &unavailableCollector{}
	resource := tracing.NewResource("service-a", "test", "test")
	exporter := tracing.NewExporter(collector, resource, tracing.ExporterOptions{
		BatchSize:     3,
		FlushInterval: 10 * time.Millisecond,
		ExportTimeout: time.Second,
		MaxRetries:    2,
		RetryInitial:  time.Millisecond,
		RetryMax:      5 * time.Millisecond,
	}, zap.New(core), nil)
	exporter.Start()
	tracer := tracing.New(resource, tracing.ParentBased(tracing.AlwaysOn()), exporter, zap.NewNop(), nil)

	svc := newTestServiceWithTracer(t, "service-a", "", tracer)

	const requests = 20
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			w := httptest.NewRecorder()
			svc.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, greeter.Greeting, w.Body.String())
			assert.Less(t, time.Since(start), 500*time.Millisecond, "a failing collector never slows a request")
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, tracer.Shutdown(ctx))

	assert.Positive(t, collector.calls.Load())
	assert.EqualValues(t, requests*3, exporter.Dropped(), "every span of every request was dropped")
	dropped := logs.FilterMessage("dropping span batch")
	require.Positive(t, dropped.Len())
	assert.Equal(t, "retries_exhausted", dropped.All()[0].ContextMap()["reason"])
}

func TestChainWithoutDownstream(t *testing.T) {
	svc := newTestService(t, "service-a", "")

	w := httptest.NewRecorder()
	svc.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chain", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChainDownstreamUnavailable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	svc := newTestService(t, "service-a", url)

	w := httptest.NewRecorder()
	svc.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chain", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	chain := tracingtest.ByName(svc.spans(t), "GET /chain")
	require.Len(t, chain, 1)
	assert.Equal(t, tracing.StatusError, chain[0].Status.Code)
}

func TestHealthEndpoint(t *testing.T) {
	svc := newTestService(t, "service-a", "")

	w := httptest.NewRecorder()
	svc.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "service-a", body["service"])

	tracingStatus, ok := body["tracing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, tracingStatus["enabled"])
	assert.Equal(t, "ParentBased{root:AlwaysOn}", tracingStatus["sampler"])
}

func TestMetricsEndpointIsNotTraced(t *testing.T) {
	svc := newTestService(t, "service-a", "")
	svc.router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	w := httptest.NewRecorder()
	svc.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `http_requests_total{method="GET",route="/",status="200"} 1`)
	assert.Empty(t, w.Header().Get(tracing.TraceIDResponseHeader))

	assert.Empty(t, tracingtest.ByName(svc.spans(t), "GET /metrics"))
}

func TestRouterWithTracingDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	tracer := tracing.NewDisabled(tracing.NewResource("service-a", "", ""), nil)
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	g := greeter.New(
		greeter.NewBackend("db", "query", time.Millisecond, tracer, metrics),
		greeter.NewBackend("cache", "update", time.Millisecond, tracer, metrics),
	)
	handlers := apihttp.NewHandlers(g, downstream.NewClient("", downstream.DefaultOptions(), tracer, nil, metrics), tracer, zap.NewNop())
	router := NewRouter(cfg, handlers, tracer, metrics, reg, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, greeter.Greeting, w.Body.String())
	assert.Empty(t, w.Header().Get(tracing.TraceIDResponseHeader))
}

func TestServerStartAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = "0"

	svc := newTestService(t, "service-a", "")
	srv := New(cfg, svc.router, zap.NewNop())
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
	assert.Equal(t, svc.router, srv.Handler())
}
