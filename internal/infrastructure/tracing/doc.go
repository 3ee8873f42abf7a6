/*
Package tracing provides distributed tracing for a chain of HTTP services.

# Overview

A Tracer creates spans, keeps track of which span is current for each
request, and hands sampled spans to an Exporter that delivers them to a
collector in batches. Trace context crosses process boundaries in the W3C
traceparent header (gRPC metadata for gRPC calls).

There is no global tracer. Build one at startup and pass it to the
middleware, the outbound transport and any code that opens spans.

# Usage

	tracer, err := tracing.NewFromConfig(cfg.Tracing, cfg.Service, logger, metrics)
	if err != nil {
		return err
	}
	tracer.Exporter().Start()
	defer tracer.Shutdown(ctx)

	// Inbound
	router.Use(gin.Recovery(), tracing.HTTPMiddleware(tracer))

	// Outbound
	client := &http.Client{Transport: tracing.NewTransport(tracer, nil)}

	// Sub-operations
	ctx, scope := tracer.Start(ctx, "db.query")
	defer scope.End()

# Sampling

The sampling decision is made once, when a trace enters the process: for a
new root, or for a parent decoded from an inbound header. Child spans inherit
it. Unsampled spans are fully usable but never exported.

# Export

Enqueue never blocks. A batch is flushed when BatchSize spans are queued or
FlushInterval has passed since the last flush. Transient collector failures
are retried with exponential backoff; a batch that still fails is dropped
with a warning and counted in tracing_spans_dropped_total. A circuit breaker
stops retries against a collector that keeps failing.
*/
package tracing
