/*
Package resilience provides a circuit breaker for calls to remote dependencies.

# Overview

The span exporter wraps every collector delivery in a Breaker. After a run of
consecutive failures the breaker opens and batches are dropped at once
instead of being retried against a collector that is known to be down.

# Usage

	breaker := resilience.New("collector", resilience.Settings{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	err := breaker.Execute(func() error {
		return client.Export(ctx, batch)
	})

# States

	Closed --[FailureThreshold failures]-> Open --[CoolDown]-> Half-Open --[Probes successes]-> Closed
	                                                               |
	                                                           [failure]
	                                                               v
	                                                             Open

Half-open admits one probe at a time; concurrent callers get ErrProbeInFlight.
*/
package resilience
