package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// Handler serves the metrics gathered by reg. Scrapers negotiating
// OpenMetrics also receive the trace_id exemplars.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	})
}

// Module provides the metrics registry, its Registerer view and the service
// metrics to the fx graph.
var Module = fx.Module("monitoring",
	fx.Provide(
		NewRegistry,
		func(reg *prometheus.Registry) prometheus.Registerer { return reg },
		NewMetrics,
	),
)
