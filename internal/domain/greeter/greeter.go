package greeter

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
)

// Greeting is the response of the root endpoint
const Greeting = "Hello World!"

// Greeter reads from the database, refreshes the cache and greets
type Greeter struct {
	db    *Backend
	cache *Backend
}

// New creates a greeter over the given backends
func New(db, cache *Backend) *Greeter {
	return &Greeter{db: db, cache: cache}
}

// NewDefault creates a greeter with the standard simulated latencies
func NewDefault(tracer *tracing.Tracer, metrics *monitoring.Metrics) *Greeter {
	return New(
		NewBackend("db", "query", DefaultDBLatency, tracer, metrics),
		NewBackend("cache", "update", DefaultCacheLatency, tracer, metrics),
	)
}

// Greet runs the database query, then the cache update
func (g *Greeter) Greet(ctx context.Context) (string, error) {
	if err := g.db.Call(ctx); err != nil {
		return "", fmt.Errorf("db query: %w", err)
	}
	if err := g.cache.Call(ctx); err != nil {
		return "", fmt.Errorf("cache update: %w", err)
	}
	return Greeting, nil
}

// Module provides the *Greeter
var Module = fx.Module("greeter",
	fx.Provide(NewDefault),
)
