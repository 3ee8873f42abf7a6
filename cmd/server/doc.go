// Package main is the entry point of the greeter service.
//
// Each instance is one link in a chain of traced HTTP services:
//
//	client → greeter A → (GET /chain) → greeter B → ...
//
// GET / reads from a simulated database and cache and answers "Hello World!".
// GET /chain calls DOWNSTREAM_URL, propagating the trace. Spans are exported
// to the collector named by TRACING_ENDPOINT, authenticated with
// TRACING_TOKEN.
//
// Configuration:
//   - Environment variables only (12-factor)
//   - Startup fails when tracing is enabled and the credential is missing
//
// Usage:
//
//	TRACING_ENDPOINT=collector:4317 TRACING_TOKEN=secret ./server
//
//	# Two services in a chain, spans logged locally
//	TRACING_PROTOCOL=log PORT=8081 ./server &
//	TRACING_PROTOCOL=log DOWNSTREAM_URL=http://127.0.0.1:8081/ ./server
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, in-flight spans are flushed
package main
