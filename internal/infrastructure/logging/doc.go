// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Every entry carries the service name, version and environment. Spans are
// correlated with log lines through the trace_id and span_id fields added by
// the tracing package.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8080"))
//	logger.Error("Failed to connect", zap.Error(err))
package logging
