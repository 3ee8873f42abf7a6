package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tracechain/internal/api/middleware"
	"github.com/GriffinCanCode/tracechain/internal/domain/greeter"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/downstream"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	greeter    *greeter.Greeter
	downstream *downstream.Client
	tracer     *tracing.Tracer
	logger     *zap.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(g *greeter.Greeter, ds *downstream.Client, tracer *tracing.Tracer, logger *zap.Logger) *Handlers {
	return &Handlers{
		greeter:    g,
		downstream: ds,
		tracer:     tracer,
		logger:     logger,
	}
}

// Register mounts the handlers on router
func (h *Handlers) Register(router gin.IRoutes) {
	router.GET("/", h.Root)
	router.GET("/chain", h.Chain)
	router.GET("/health", h.Health)
}

// Root greets after querying the database and updating the cache
func (h *Handlers) Root(c *gin.Context) {
	ctx := c.Request.Context()

	msg, err := h.greeter.Greet(ctx)
	if err != nil {
		h.log(c).Warn("greeting failed", zap.Error(err))
		_ = c.AbortWithError(http.StatusServiceUnavailable, err)
		return
	}

	c.String(http.StatusOK, msg)
}

// Chain calls the next service and reports what it answered
func (h *Handlers) Chain(c *gin.Context) {
	ctx := c.Request.Context()

	resp, err := h.downstream.Get(ctx)
	if errors.Is(err, downstream.ErrNotConfigured) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log(c).Warn("downstream call failed", zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "downstream unavailable"})
		return
	}

	current, _ := h.tracer.Current(ctx)
	c.JSON(http.StatusOK, gin.H{
		"trace_id": current.TraceID.String(),
		"downstream": gin.H{
			"status":   resp.StatusCode,
			"body":     resp.Body,
			"trace_id": resp.TraceID,
		},
	})
}

// Health reports liveness and the state of the span pipeline
func (h *Handlers) Health(c *gin.Context) {
	res := h.tracer.Resource()
	tracingStatus := gin.H{
		"enabled": h.tracer.Enabled(),
		"sampler": h.tracer.Recorder().Sampler().Description(),
	}
	if exp := h.tracer.Exporter(); exp != nil {
		tracingStatus["queued"] = exp.Len()
		tracingStatus["dropped"] = exp.Dropped()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"service":    res.ServiceName,
		"version":    res.ServiceVersion,
		"downstream": gin.H{"configured": h.downstream.Configured()},
		"tracing":    tracingStatus,
	})
}

// log returns the handler logger tagged with the request and trace ids
func (h *Handlers) log(c *gin.Context) *zap.Logger {
	fields := append(h.tracer.LogFields(c.Request.Context()),
		zap.String("request_id", middleware.GetRequestID(c)),
	)
	return h.logger.With(fields...)
}
