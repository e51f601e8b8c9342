package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"ChainCast/internal/agent"
	"ChainCast/internal/collector"
	"ChainCast/internal/domain/repository"
	"ChainCast/internal/handler/api"
	mid "ChainCast/internal/middleware"
	"ChainCast/internal/oracle"
	"ChainCast/internal/predictor"
	"ChainCast/internal/preprocess"
	"ChainCast/internal/registry"
	internalrepo "ChainCast/internal/repository"
	"ChainCast/internal/service/binancews"
	icache "ChainCast/internal/service/cache"
	"ChainCast/internal/stream"
	"ChainCast/internal/training"
	"ChainCast/internal/usecase"
	pkgcache "ChainCast/pkg/cache"
	pkgch "ChainCast/pkg/clickhouse"
	"ChainCast/pkg/config"
	xhttp "ChainCast/pkg/http"
	pkgkafka "ChainCast/pkg/kafka"
	applogger "ChainCast/pkg/logger"
	"ChainCast/pkg/metrics"
	"ChainCast/pkg/queue"
	"ChainCast/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger. Development environments
// get human-readable console output, everything else gets JSON.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "json"
	if cfg.Environment == "development" {
		format = "console"
	}
	return applogger.New(&applogger.Config{
		Level:  "info",
		Format: format,
		Output: "stdout",
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.ObservationSchema(cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideObservationStore creates ClickHouse observation storage.
func ProvideObservationStore(chClient *pkgch.Client, cfg *config.Config) repository.ObservationStore {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewCHObservationStore(chClient, cfg.ClickHouse.Table, cfg.Market.Symbol)
}

// ProvideKafkaProducer creates a Kafka producer when enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher creates the Kafka audit event publisher.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.ForecastTopic, cfg.Kafka.DecisionTopic)
}

// ProvideKafkaConsumer creates the observation feed consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideObservationEvents registers the handler for the external
// observation feed topic.
func ProvideObservationEvents(store repository.ObservationStore, m repository.Metrics, cfg *config.Config) *usecase.ObservationEventsHandler {
	if store == nil {
		return nil
	}
	return usecase.NewObservationEventsHandler(cfg.Kafka.Consumer.Topic, store, m)
}

// ProvideRedisClient creates a Redis client when enabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideSlotStore persists the oracle slot across restarts.
func ProvideSlotStore(client *redis.Client) repository.SlotStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewRedisSlotStore(client)
}

// ProvideCollector builds the prioritized multi-source collector.
func ProvideCollector(
	cfg *config.Config,
	m repository.Metrics,
	store repository.ObservationStore,
	l *applogger.Logger,
) *collector.Collector {
	slots := []collector.SourceSlot{
		{
			Source:      collector.NewBinanceSource(cfg.Sources.Binance.BaseURL, cfg.Sources.Binance.Interval, cfg.Sources.Binance.Timeout, l),
			MaxRequests: cfg.Sources.Binance.MaxRequests,
			Window:      cfg.Sources.Binance.Window,
		},
		{
			Source:      collector.NewCoinGeckoSource(cfg.Sources.CoinGecko.BaseURL, cfg.Market.CoinID, cfg.Sources.CoinGecko.Timeout, l),
			MaxRequests: cfg.Sources.CoinGecko.MaxRequests,
			Window:      cfg.Sources.CoinGecko.Window,
		},
	}
	var byteCache icache.BytesCache = icache.NewTTLCache()
	if cfg.Redis.Enabled {
		byteCache = icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	opts := []collector.Option{
		collector.WithCache(byteCache, cfg.Sources.CacheTTL),
		collector.WithMetrics(m),
		collector.WithLogger(l),
	}
	if cfg.Sources.MinViable > 0 {
		opts = append(opts, collector.WithMinViable(cfg.Sources.MinViable))
	}
	if store != nil {
		opts = append(opts, collector.WithStore(store))
	}
	stepSecs := int64(cfg.Market.Interval / time.Second)
	return collector.New(slots, collector.NewSyntheticSource(50000, stepSecs), opts...)
}

// ProvidePreprocessor creates the observation preprocessor.
func ProvidePreprocessor(cfg *config.Config) *preprocess.Preprocessor {
	return preprocess.New(cfg.Market.Interval)
}

// ProvidePredictor creates the price predictor.
func ProvidePredictor() *predictor.Predictor {
	return predictor.New()
}

// ProvideAgent creates the decision agent.
func ProvideAgent() *agent.Agent {
	return agent.New()
}

// ProvideLiveStream creates the Binance WebSocket stream.
func ProvideLiveStream(cfg *config.Config, l *applogger.Logger) repository.LiveStream {
	return binancews.New(
		cfg.Stream.WebSocketURL,
		cfg.Stream.Symbols,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
		l,
	)
}

// ProvideTrainQueue creates the training queue. Retrains mutate in-memory
// model state, so the in-process queue is the default; Redis is available
// for deployments that want queue visibility.
func ProvideTrainQueue(cfg *config.Config, redisClient *redis.Client, l *applogger.Logger) server.TrainQueue {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Training.Workers,
		QueueSize:  cfg.Training.QueueSize,
		RetryLimit: 1,
		RetryDelay: 10 * time.Second,
	}
	if cfg.Training.Queue == "redis" && redisClient != nil {
		return queue.NewRedisQueue(l, qcfg, redisClient, queue.ModeProducerConsumer)
	}
	return queue.NewMemoryQueue(l, qcfg)
}

// ProvideRetrainJob creates the queued retrain worker.
func ProvideRetrainJob(
	pre *preprocess.Preprocessor,
	pred *predictor.Predictor,
	ag *agent.Agent,
	reg *registry.Registry,
	l *applogger.Logger,
) queue.Job {
	return training.NewRetrainJob(pre, pred, ag, l, training.WithModelRegistry(reg))
}

// ProvideIngestPipeline wires stream persistence through the ingest
// middleware when a store is configured.
func ProvideIngestPipeline(store repository.ObservationStore, m repository.Metrics) *mid.IngestPipeline {
	if store == nil {
		return nil
	}
	return mid.NewIngestPipeline(store, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideCoordinator creates the streaming coordinator.
func ProvideCoordinator(
	live repository.LiveStream,
	trainQueue server.TrainQueue,
	ingest *mid.IngestPipeline,
	cfg *config.Config,
	l *applogger.Logger,
) *stream.Coordinator {
	opts := []stream.Option{stream.WithLogger(l)}
	if cfg.Stream.BufferCap > 0 {
		opts = append(opts, stream.WithBufferCap(cfg.Stream.BufferCap))
	}
	if cfg.Stream.Cycle > 0 {
		opts = append(opts, stream.WithCycle(cfg.Stream.Cycle))
	}
	if ingest != nil {
		ingest.Start(context.Background())
		opts = append(opts, stream.WithSink(ingest.Process))
	}
	return stream.New(live, trainQueue, opts...)
}

// ProvidePipeline wires the serving pipeline.
func ProvidePipeline(
	col *collector.Collector,
	pre *preprocess.Preprocessor,
	pred *predictor.Predictor,
	ag *agent.Agent,
	coord *stream.Coordinator,
	events repository.EventPublisher,
	m repository.Metrics,
	reg *registry.Registry,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(col, pre, pred, ag, coord, events, m, cfg.Market.Symbol, cfg.Market.Span, l,
		usecase.WithModelRegistry(reg))
}

// ProvideHistory creates the observation history usecase. Redis-backed
// deployments get a layered cache in front of the store.
func ProvideHistory(store repository.ObservationStore, redisClient *redis.Client, cfg *config.Config) *usecase.History {
	var opts []usecase.HistoryOption
	if redisClient != nil {
		if host, portStr, err := net.SplitHostPort(cfg.Redis.Addr); err == nil {
			port, _ := strconv.Atoi(portStr)
			rc, err := pkgcache.NewRedisCache(
				pkgcache.WithRedisHost(host),
				pkgcache.WithRedisPort(port),
				pkgcache.WithRedisPassword(cfg.Redis.Password),
				pkgcache.WithRedisDB(cfg.Redis.DB),
				pkgcache.WithRedisPrefix("chaincast"),
			)
			if err == nil {
				opts = append(opts, usecase.WithHistoryCache(pkgcache.NewLayeredCache(rc), time.Minute))
			}
		}
	} else {
		opts = append(opts, usecase.WithHistoryCache(pkgcache.NewMemoryCache(), time.Minute))
	}
	return usecase.NewHistory(store, cfg.Market.Symbol, opts...)
}

// ProvideGate creates the on-chain oracle gate, restoring any persisted
// slot so validity survives restarts.
func ProvideGate(slots repository.SlotStore, cfg *config.Config, l *applogger.Logger) *oracle.Gate {
	opts := []oracle.Option{oracle.WithLogger(l)}
	if slots != nil {
		opts = append(opts, oracle.WithSlotStore(slots))
	}
	g := oracle.NewGate(cfg.Oracle.PublisherKey, cfg.Oracle.OwnerKey, opts...)
	if slots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.Restore(ctx); err != nil {
			l.Warn("oracle slot restore failed", applogger.Error(err))
		}
	}
	return g
}

// ProvideExecutor creates the trade executor over the gate.
func ProvideExecutor(gate *oracle.Gate, cfg *config.Config) *oracle.Executor {
	return oracle.NewExecutor(gate, cfg.Oracle.OwnerKey)
}

// ProvideOracleBridge feeds pipeline forecasts into the oracle gate.
func ProvideOracleBridge(pipeline *usecase.Pipeline, gate *oracle.Gate, cfg *config.Config, l *applogger.Logger) *usecase.OracleBridge {
	return usecase.NewOracleBridge(pipeline, gate, cfg.Oracle.PublisherKey, cfg.Oracle.Validity, l)
}

// ProvideArtifactStore creates the model artifact store.
func ProvideArtifactStore(cfg *config.Config) (*registry.ArtifactStore, error) {
	dir := cfg.Training.Artifacts
	if dir == "" {
		dir = "artifacts"
	}
	return registry.NewArtifactStore(dir)
}

// ProvideRegistry creates the model version registry.
func ProvideRegistry(
	artifacts *registry.ArtifactStore,
	pred *predictor.Predictor,
	ag *agent.Agent,
	l *applogger.Logger,
) *registry.Registry {
	return registry.New(artifacts, pred, ag, l)
}

// ProvideHandlers bundles all HTTP route handlers.
func ProvideHandlers(
	l *applogger.Logger,
	pipeline *usecase.Pipeline,
	history *usecase.History,
	coord *stream.Coordinator,
	gate *oracle.Gate,
	exec *oracle.Executor,
	reg *registry.Registry,
	store repository.ObservationStore,
	redisClient *redis.Client,
) xhttp.Handler {
	return xhttp.Handlers{
		api.NewPipelineHandler(l, pipeline, history),
		api.NewStreamHandler(l, coord),
		api.NewOracleHandler(l, gate, exec),
		api.NewRegistryHandler(l, reg),
		api.NewHealthHandler(store, redisClient),
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	coord *stream.Coordinator,
	pipeline *usecase.Pipeline,
	bridge *usecase.OracleBridge,
	trainQueue server.TrainQueue,
	retrainJob queue.Job,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.ObservationEventsHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	events repository.EventPublisher,
) *server.App {
	app := server.New(cfg, l, coord, pipeline, bridge, trainQueue, retrainJob, handler)
	if consumer != nil && kh != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
		app.SetConsumer(consumer, kh)
	}
	if chClient != nil {
		app.SetClickHouse(chClient)
	}
	if events != nil {
		app.SetEventPublisher(events)
	}
	if producer != nil {
		// Ship aggregated error logs alongside the audit events.
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "chaincast.logs",
			Publisher:      internalrepo.NewKafkaLogPublisher(producer),
		})
	}
	return app
}
