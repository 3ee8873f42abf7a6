package tracing

import (
	"context"
	"sync"
	"sync/atomic"
)

// Registry tracks the current trace context of each logical execution.
// An execution gets its own slot through Attach; guards entered on that slot
// unwind in strict LIFO order. There is no process-wide instance: the
// registry travels inside a *Tracer.
type Registry struct {
	active atomic.Int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// slotKey is scoped to one registry so two registries never share slots
type slotKey struct {
	r *Registry
}

// slot is the guard stack of one execution. The mutex only protects against
// misuse from foreign goroutines; the owner is the sole writer.
type slot struct {
	mu    sync.Mutex
	stack []*Guard

	// base is what the attaching execution had current at Attach time
	base    TraceContext
	hasBase bool
}

// Guard restores the previous current context when released
type Guard struct {
	registry *Registry
	slot     *slot
	tc       TraceContext
	released bool
}

// Attach returns a context carrying a fresh execution slot. The slot starts
// from a copy of the context current in ctx at the time of the call, so work
// forked onto a new goroutine keeps its trace no matter what the parent
// enters or releases afterwards.
func (r *Registry) Attach(ctx context.Context) context.Context {
	s := &slot{}
	s.base, s.hasBase = r.Current(ctx)
	return context.WithValue(ctx, slotKey{r}, s)
}

// Enter installs tc as current for the execution attached to ctx. When ctx
// has no slot the guard is inert and Current keeps returning nothing.
func (r *Registry) Enter(ctx context.Context, tc TraceContext) *Guard {
	g := &Guard{registry: r, tc: tc}
	s, ok := ctx.Value(slotKey{r}).(*slot)
	if !ok {
		g.released = true
		return g
	}
	g.slot = s

	s.mu.Lock()
	s.stack = append(s.stack, g)
	s.mu.Unlock()
	r.active.Add(1)
	return g
}

// Current returns the innermost context entered for the execution of ctx
func (r *Registry) Current(ctx context.Context) (TraceContext, bool) {
	s, ok := ctx.Value(slotKey{r}).(*slot)
	if !ok {
		return TraceContext{}, false
	}
	if tc, ok := s.top(); ok {
		return tc, true
	}
	return s.base, s.hasBase
}

// Depth returns how many guards are open on the slot of ctx
func (r *Registry) Depth(ctx context.Context) int {
	s, ok := ctx.Value(slotKey{r}).(*slot)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// Active returns the number of open guards across all executions
func (r *Registry) Active() int64 {
	return r.active.Load()
}

func (s *slot) top() (TraceContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return TraceContext{}, false
	}
	return s.stack[len(s.stack)-1].tc, true
}

// Context returns the trace context the guard installed
func (g *Guard) Context() TraceContext {
	return g.tc
}

// Release pops the guard. Releasing a guard that is not innermost also pops
// every guard above it, so no inner context outlives its enclosing one, and
// reports ErrUnbalancedRelease.
func (g *Guard) Release() error {
	if g.slot == nil {
		return nil
	}

	s := g.slot
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.released {
		return ErrGuardReleased
	}

	idx := -1
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i] == g {
			idx = i
			break
		}
	}
	if idx < 0 {
		g.released = true
		return ErrGuardReleased
	}

	popped := len(s.stack) - idx
	for _, p := range s.stack[idx:] {
		p.released = true
	}
	clear(s.stack[idx:])
	s.stack = s.stack[:idx]
	g.registry.active.Add(-int64(popped))

	if popped > 1 {
		return ErrUnbalancedRelease
	}
	return nil
}
