package tracing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTracerNestedScopes(t *testing.T) {
	tracer, sink := newTestTracer(ParentBased(AlwaysOn()), nil, nil)

	ctx, root := tracer.Start(context.Background(), "root")
	ctx2, child := tracer.Start(ctx, "child")
	_, grandchild := tracer.Start(ctx2, "grandchild")

	cur, ok := tracer.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, grandchild.Context(), cur, "all scopes share one execution")

	require.NoError(t, grandchild.End())
	cur, _ = tracer.Current(ctx)
	assert.Equal(t, child.Context(), cur)

	require.NoError(t, child.End())
	require.NoError(t, root.End())
	_, ok = tracer.Current(ctx)
	assert.False(t, ok)
	assert.EqualValues(t, 0, tracer.Registry().Active())

	rootRec := sink.byName("root")[0]
	childRec := sink.byName("child")[0]
	grandRec := sink.byName("grandchild")[0]

	assert.False(t, rootRec.ParentSpanID.IsValid())
	assert.Equal(t, rootRec.SpanID, childRec.ParentSpanID)
	assert.Equal(t, childRec.SpanID, grandRec.ParentSpanID)
	assert.Equal(t, rootRec.TraceID, childRec.TraceID)
	assert.Equal(t, rootRec.TraceID, grandRec.TraceID)
}

func TestTracerSiblingRoots(t *testing.T) {
	tracer, _ := newTestTracer(AlwaysOn(), nil, nil)

	_, a := tracer.Start(context.Background(), "a")
	_, b := tracer.Start(context.Background(), "b")
	defer a.End()
	defer b.End()

	assert.NotEqual(t, a.Context().TraceID, b.Context().TraceID)
	assert.True(t, a.Context().IsRoot())
	assert.True(t, b.Context().IsRoot())
}

func TestScopeEndIdempotent(t *testing.T) {
	tracer, sink := newTestTracer(AlwaysOn(), nil, nil)

	_, scope := tracer.Start(context.Background(), "once")
	require.NoError(t, scope.End())
	assert.NoError(t, scope.End())
	assert.NoError(t, scope.End())

	assert.Len(t, sink.Records(), 1)
	assert.EqualValues(t, 0, tracer.Registry().Active())
}

func TestScopeEndOutOfOrder(t *testing.T) {
	logger, logs := newObservedLogger(zap.NewAtomicLevel())
	tracer, sink := newTestTracer(AlwaysOn(), logger, nil)

	ctx, outer := tracer.Start(context.Background(), "outer")
	_, inner := tracer.Start(ctx, "inner")

	err := outer.End()
	assert.ErrorIs(t, err, ErrUnbalancedRelease)
	assert.Equal(t, 1, logs.FilterMessage("trace context released out of order").Len())

	// inner's guard was popped with outer; its span still ends normally
	err = inner.End()
	assert.ErrorIs(t, err, ErrGuardReleased)
	assert.Len(t, sink.Records(), 2)
	assert.EqualValues(t, 0, tracer.Registry().Active())
}

func TestScopeFail(t *testing.T) {
	tracer, sink := newTestTracer(AlwaysOn(), nil, nil)

	_, scope := tracer.Start(context.Background(), "work")
	require.NoError(t, scope.Fail(errors.New("db down")))

	r := sink.byName("work")[0]
	assert.Equal(t, StatusError, r.Status.Code)
	assert.Equal(t, "db down", r.Status.Description)

	assert.ErrorIs(t, scope.Fail(errors.New("again")), ErrSpanClosed)
}

func TestTracerFork(t *testing.T) {
	tracer, sink := newTestTracer(AlwaysOn(), nil, nil)

	ctx, root := tracer.Start(context.Background(), "root")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(ctx context.Context) {
			defer wg.Done()
			_, scope := tracer.Start(ctx, "worker")
			defer scope.End()
		}(tracer.Fork(ctx))
	}
	wg.Wait()
	require.NoError(t, root.End())

	rootRec := sink.byName("root")[0]
	workers := sink.byName("worker")
	require.Len(t, workers, 5)
	for _, w := range workers {
		assert.Equal(t, rootRec.TraceID, w.TraceID)
		assert.Equal(t, rootRec.SpanID, w.ParentSpanID)
	}
	assert.EqualValues(t, 0, tracer.Registry().Active())
}

func TestTracerForkOutlivesParent(t *testing.T) {
	tracer, sink := newTestTracer(AlwaysOn(), nil, nil)

	ctx, root := tracer.Start(context.Background(), "root")
	forked := tracer.Fork(ctx)
	_, sibling := tracer.Start(ctx, "sibling")
	require.NoError(t, sibling.End())
	require.NoError(t, root.End())

	_, late := tracer.Start(forked, "late")
	require.NoError(t, late.End())

	rootRec := sink.byName("root")[0]
	lateRec := sink.byName("late")[0]
	assert.Equal(t, rootRec.TraceID, lateRec.TraceID, "forked work stays in the request's trace")
	assert.Equal(t, rootRec.SpanID, lateRec.ParentSpanID)
	assert.EqualValues(t, 0, tracer.Registry().Active())
}

func TestTracerLogFields(t *testing.T) {
	tracer, _ := newTestTracer(AlwaysOn(), nil, nil)

	assert.Empty(t, tracer.LogFields(context.Background()))

	ctx, scope := tracer.Start(context.Background(), "logged")
	defer scope.End()

	fields := tracer.LogFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, LogFieldTraceID, fields[0].Key)
	assert.Equal(t, scope.Context().TraceID.String(), fields[0].String)
	assert.Equal(t, LogFieldSpanID, fields[1].Key)
	assert.Equal(t, scope.Context().SpanID.String(), fields[1].String)
}

func TestTracerSampledTraceID(t *testing.T) {
	tracer, _ := newTestTracer(AlwaysOn(), nil, nil)

	_, ok := tracer.SampledTraceID(context.Background())
	assert.False(t, ok)

	ctx, scope := tracer.Start(context.Background(), "sampled")
	defer scope.End()
	id, ok := tracer.SampledTraceID(ctx)
	require.True(t, ok)
	assert.Equal(t, scope.Context().TraceID.String(), id)

	dropped, _ := newTestTracer(AlwaysOff(), nil, nil)
	ctx, scope = dropped.Start(context.Background(), "unsampled")
	defer scope.End()
	_, ok = dropped.SampledTraceID(ctx)
	assert.False(t, ok)
}

func TestDisabledTracer(t *testing.T) {
	tracer := NewDisabled(NewResource("svc", "", ""), nil)
	assert.False(t, tracer.Enabled())
	assert.Nil(t, tracer.Exporter())

	ctx, scope := tracer.Start(context.Background(), "noop")
	assert.False(t, scope.Context().Sampled)
	assert.True(t, scope.Context().IsValid())
	_, ok := tracer.Current(ctx)
	assert.True(t, ok)

	require.NoError(t, scope.End())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}
