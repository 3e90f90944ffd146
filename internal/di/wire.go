//go:build wireinject
// +build wireinject

package di

import (
	"StratGov/internal/usecase"
	"StratGov/pkg/config"
	"StratGov/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,

		// Definitions and registry
		ProvideDefinitions,
		ProvideRegistry,

		// Repositories
		ProvideAuditStore,
		ProvideAlertSink,
		ProvideMetricStore,
		ProvideMetricFeed,
		ProvideMetricProvider,

		// Use cases
		ProvideResolver,
		ProvidePoolBuilder,
		ProvideFalsifierMonitor,
		ProvideRegimeDetector,

		// HTTP surface and application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeLifecycle wires the minimal graph for lifecycle commands.
func InitializeLifecycle(cfg *config.Config) (*usecase.Lifecycle, error) {
	wire.Build(
		ProvideLogger,
		ProvideClock,
		ProvideClickHouseClient,
		ProvideDefinitions,
		ProvideRegistry,
		ProvideAuditStore,
		ProvideLifecycle,
	)
	return &usecase.Lifecycle{}, nil
}

// InitializePoolBuilder wires the minimal graph for a one-shot pool build.
func InitializePoolBuilder(cfg *config.Config) (*usecase.PoolBuilder, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,
		ProvideClickHouseClient,
		ProvideDefinitions,
		ProvideRegistry,
		ProvideAuditStore,
		ProvideAlertSink,
		ProvidePoolBuilder,
	)
	return &usecase.PoolBuilder{}, nil
}
