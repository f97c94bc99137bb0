//go:build wireinject
// +build wireinject

package di

import (
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,
		ProvideNotifier,

		// Repositories
		ProvideTickArchive,
		ProvideHistorySource,
		ProvideSymbolSource,
		ProvideGateway,
		ProvideMarketStream,

		// Engine and use cases
		ProvideRegistry,
		ProvideArchiveWriter,
		ProvideIngestProcessor,
		ProvideTickIngestor,
		ProvideKafkaTicksHandler,
		ProvideDispatcher,
		ProvideStateStore,
		ProvideAnalysisCycle,
		ProvideHistoryUseCase,

		// HTTP
		ProvideAPIHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
