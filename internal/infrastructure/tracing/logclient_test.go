package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogClientExport(t *testing.T) {
	logger, logs := newObservedLogger(zap.NewAtomicLevelAt(zapcore.InfoLevel))
	client := NewLogClient(logger)

	ok := testRecord("GET /")
	ok.StartTime = time.Unix(0, 0)
	ok.EndTime = ok.StartTime.Add(time.Second)
	ok.Kind = SpanKindServer
	ok.Attributes = []KeyValue{Attr(AttrHTTPStatusCode, 200)}

	failed := testRecord("db.query")
	failed.ParentSpanID = ok.SpanID
	failed.Status = Error("timeout")

	require.NoError(t, client.Export(context.Background(), NewResource("greeter", "", ""), []SpanRecord{ok, failed}))
	require.NoError(t, client.Close())

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "span completed", first.Message)
	assert.Equal(t, zapcore.InfoLevel, first.Level)
	assert.Equal(t, "spans", first.LoggerName)
	fields := first.ContextMap()
	assert.Equal(t, ok.TraceID.String(), fields[LogFieldTraceID])
	assert.Equal(t, "GET /", fields["operation"])
	assert.Equal(t, "server", fields["kind"])
	assert.Equal(t, time.Second, fields["duration"])
	assert.Equal(t, "greeter", fields["service"])
	assert.EqualValues(t, 200, fields[AttrHTTPStatusCode])
	assert.NotContains(t, fields, "parent_id")

	second := entries[1]
	assert.Equal(t, "span completed with error", second.Message)
	assert.Equal(t, zapcore.ErrorLevel, second.Level)
	assert.Equal(t, ok.SpanID.String(), second.ContextMap()["parent_id"])
	assert.Equal(t, "timeout", second.ContextMap()["error"])
}
