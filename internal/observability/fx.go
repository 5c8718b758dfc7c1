package observability

import (
	"github.com/minghua-center/minghua/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module wires the Prometheus registry and application instruments.
var Module = fx.Module("observability",
	fx.Provide(
		newRegistry,
		provideRegisterer,
		metrics.New,
	),
)

func newRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer {
	return reg
}
