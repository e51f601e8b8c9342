//go:build wireinject
// +build wireinject

package di

import (
	"ChainCast/pkg/config"
	"ChainCast/pkg/server"

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
		ProvideRedisClient,

		// Repositories
		ProvideObservationStore,
		ProvideEventPublisher,
		ProvideSlotStore,

		// Models
		ProvidePreprocessor,
		ProvidePredictor,
		ProvideAgent,

		// Data plane
		ProvideCollector,
		ProvideLiveStream,
		ProvideIngestPipeline,
		ProvideTrainQueue,
		ProvideRetrainJob,
		ProvideCoordinator,

		// Use cases
		ProvidePipeline,
		ProvideHistory,
		ProvideObservationEvents,
		ProvideGate,
		ProvideExecutor,
		ProvideOracleBridge,
		ProvideArtifactStore,
		ProvideRegistry,

		// HTTP and application server
		ProvideHandlers,
		ProvideApp,
	)
	return &server.App{}, nil
}
