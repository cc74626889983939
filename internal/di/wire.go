//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"QuotaGame/pkg/config"
	"QuotaGame/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideStorage,
		ProvidePublisher,
		ProvideEstimateCache,

		// Game
		ProvidePriceProcess,
		ProvideEngine,
		ProvideQuoter,
		ProvideRoundMachine,
		ProvideExporter,
		ProvideExportPipeline,
		ProvideSession,
		ProvideCommandHandler,

		// Transport
		ProvideLimiter,
		ProvideGameHandler,
		ProvideHTTPServer,

		// Application server
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return &server.App{}, nil
}
