package tracing

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/config"
)

// NewFromConfig builds the tracer described by the environment. When tracing
// is disabled the tracer records nothing and no collector channel is opened.
// The exporter is not started; call Start on it or use Module.
func NewFromConfig(cfg config.TracingConfig, svc config.ServiceConfig, logger *zap.Logger, metrics *Metrics) (*Tracer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tracing")
	resource := NewResource(svc.Name, svc.Version, svc.Environment)

	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return NewDisabled(resource, logger), nil
	}

	sampler, err := SamplerFromName(cfg.Sampler, cfg.SamplerArg)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "TRACING_SAMPLER", Reason: err.Error()}
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	exporter := NewExporter(client, resource, ExporterOptions{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		ExportTimeout: cfg.ExportTimeout,
		MaxRetries:    cfg.MaxRetries,
		RetryInitial:  cfg.RetryInitial,
		RetryMax:      cfg.RetryMax,
		QueueWarnSize: cfg.QueueWarnSize,
	}, logger, metrics)

	logger.Info("tracing enabled",
		zap.String("protocol", cfg.Protocol),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("sampler", sampler.Description()),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)
	return New(resource, sampler, exporter, logger, metrics), nil
}

func newClient(cfg config.TracingConfig, logger *zap.Logger) (Client, error) {
	opts := CollectorOptions{
		Endpoint: cfg.Endpoint,
		Token:    cfg.Token,
		Insecure: cfg.Insecure,
	}
	switch cfg.Protocol {
	case config.ProtocolGRPC:
		return NewGRPCClient(opts, logger)
	case config.ProtocolHTTP:
		return NewHTTPClient(opts, logger)
	case config.ProtocolLog:
		return NewLogClient(logger), nil
	default:
		return nil, &config.ConfigurationError{Field: "TRACING_PROTOCOL", Reason: fmt.Sprintf("unknown protocol %q", cfg.Protocol)}
	}
}

// Module provides the *Tracer and its metrics. The exporter starts with the
// application and is drained when it stops; servers that register their hooks
// later are stopped first, so their in-flight spans are still delivered.
var Module = fx.Module("tracing",
	fx.Provide(
		NewMetrics,
		newLifecycleTracer,
	),
)

func newLifecycleTracer(lc fx.Lifecycle, cfg config.TracingConfig, svc config.ServiceConfig, logger *zap.Logger, metrics *Metrics) (*Tracer, error) {
	tracer, err := NewFromConfig(cfg, svc, logger, metrics)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if exp := tracer.Exporter(); exp != nil {
				exp.Start()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			exp := tracer.Exporter()
			if exp == nil {
				return nil
			}
			err := tracer.Shutdown(ctx)
			logger.Info("tracer shut down", zap.Int64("dropped_spans", exp.Dropped()))
			return err
		},
	})
	return tracer, nil
}
