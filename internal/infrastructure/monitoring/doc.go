/*
Package monitoring provides Prometheus metrics for the HTTP service.

# Overview

Metrics are registered on an explicit registry rather than the global one,
so tests can build isolated instances. The registry also carries the Go
runtime and process collectors and is served on /metrics. Request metrics of
sampled traces carry the trace id as an exemplar, linking a latency bucket to
the trace that landed in it.

# Usage

	reg := monitoring.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics, tracer.SampledTraceID))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	timer := monitoring.NewTimer(metrics, "db", "query")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
