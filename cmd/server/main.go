package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/GriffinCanCode/tracechain/internal/domain/greeter"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/config"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/downstream"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/logging"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/server"
	"github.com/GriffinCanCode/tracechain/internal/infrastructure/tracing"
)

func main() {
	fx.New(
		config.Module,
		logging.Module,
		monitoring.Module,
		tracing.Module,
		greeter.Module,
		downstream.Module,
		server.Module,
		fx.StopTimeout(30*time.Second),
	).Run()
}
