package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/dispatch"
	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/engine"
	"MarketPulse/internal/handler/api"
	mid "MarketPulse/internal/middleware"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/state"
	"MarketPulse/internal/service/stream"
	"MarketPulse/internal/usecase"
	pkgcache "MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/queue"
	"MarketPulse/pkg/server"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client if the archive is
// enabled. Returns nil otherwise.
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

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (ts DateTime64(3), symbol String, price Float64, volume Int64, source String, event_id String) ENGINE=MergeTree ORDER BY (symbol, ts)", tickTable(cfg)),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

func tickTable(cfg *config.Config) string {
	table := cfg.ClickHouse.Table
	if table == "" {
		table = "ticks_raw"
	}
	return cfg.ClickHouse.Database + "." + table
}

// ProvideTickArchive creates ClickHouse tick storage, or nil without one.
func ProvideTickArchive(chClient *pkgch.Client, cfg *config.Config) repository.TickArchive {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(chClient.DB(), tickTable(cfg))
}

// ProvideHistorySource exposes the archive as a cold-start seed source.
func ProvideHistorySource(chClient *pkgch.Client, cfg *config.Config) repository.HistorySource {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(chClient.DB(), tickTable(cfg))
}

// ProvideSymbolSource chooses between archive-derived activity and the
// static configured symbol set.
func ProvideSymbolSource(chClient *pkgch.Client, cfg *config.Config) repository.SymbolSource {
	if chClient != nil {
		return internalrepo.NewClickHouseSymbolSource(chClient.DB(), tickTable(cfg), cfg.ClickHouse.ActiveLookback)
	}
	return internalrepo.NewStaticSymbolSource(cfg.Stream.Symbols)
}

// ProvideCache creates the snapshot cache backend: redis-layered when
// redis is enabled, in-process memory otherwise.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("marketpulse"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc, 0), nil
}

// ProvideStateStore creates the latest-snapshot store for the read API.
func ProvideStateStore(c pkgcache.Service, cfg *config.Config, log *applogger.Logger) *state.Store {
	return state.NewStore(c, cfg.Redis.CacheTTL, 500, log)
}

// ProvideNotifier creates a producer-only redis queue for alert
// notification jobs, or nil when redis is disabled.
func ProvideNotifier(cfg *config.Config, log *applogger.Logger) queue.QueueService {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return queue.NewRedisPublisher(log, client, queue.WithKeyPrefix("marketpulse"))
}

// ProvideKafkaProducer creates a Kafka producer when kafka is enabled.
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

// ProvideGateway selects the dispatch backend.
func ProvideGateway(cfg *config.Config, producer *pkgkafka.Producer) (repository.Gateway, error) {
	switch cfg.Dispatch.Backend {
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka dispatch backend requires kafka.enabled")
		}
		return internalrepo.NewKafkaGateway(producer, cfg.Dispatch.SnapshotTopic, cfg.Dispatch.AlertTopic), nil
	default:
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Gateway.Timeout))
		return internalrepo.NewHTTPGateway(client, cfg.Gateway.URL, cfg.Gateway.InternalSecret), nil
	}
}

// ProvideDispatcher creates the result dispatcher.
func ProvideDispatcher(gateway repository.Gateway, notifier queue.QueueService, m repository.Metrics, log *applogger.Logger, cfg *config.Config) *dispatch.Dispatcher {
	return dispatch.New(gateway, notifier, m, log, dispatch.Config{
		BufferSize:   cfg.Dispatch.BufferSize,
		MaxAttempts:  cfg.Dispatch.MaxAttempts,
		BackoffMin:   cfg.Dispatch.BackoffMin,
		BackoffMax:   cfg.Dispatch.BackoffMax,
		DrainTimeout: cfg.Dispatch.DrainTimeout,
	})
}

// ProvideRegistry builds the windowing engine from analysis config.
func ProvideRegistry(cfg *config.Config, history repository.HistorySource, log *applogger.Logger) *engine.SymbolRegistry {
	a := cfg.Analysis
	agg := engine.NewAggregator(a.SMAWindowMinutes)
	det := engine.NewAnomalyDetector(engine.DetectorConfig{
		SpikeThresholdPercent: a.SpikeThresholdPercent,
		VolumeMultiplier:      a.VolumeMultiplier,
		VolatilityThreshold:   a.VolatilityThreshold,
		Lookback:              a.VolatilityLookback,
		TrendHysteresis:       a.TrendHysteresis,
	})
	return engine.NewSymbolRegistry(engine.RegistryConfig{
		SMAWindowMinutes:    a.SMAWindowMinutes,
		EMAWindowMinutes:    a.EMAWindowMinutes,
		OutOfOrderTolerance: a.OutOfOrderTolerance,
		GraceCycles:         a.EvictionGraceCycles,
		MaxSymbols:          a.MaxSymbols,
		SeedSpan:            a.SeedSpan,
		SeedLimit:           a.SeedLimit,
	}, agg, det, history, log)
}

// ProvideArchiveWriter creates the background tick batcher, or nil when
// archiving is disabled.
func ProvideArchiveWriter(archive repository.TickArchive, m repository.Metrics, log *applogger.Logger, cfg *config.Config) *usecase.ArchiveWriter {
	if archive == nil || !cfg.Archive.Enabled {
		return nil
	}
	return usecase.NewArchiveWriter(archive, m, log, cfg.Archive.BatchSize, cfg.Archive.BatchTimeout, cfg.Archive.BufferSize)
}

// ProvideIngestProcessor creates the tick ingest processor.
func ProvideIngestProcessor(registry *engine.SymbolRegistry, archive *usecase.ArchiveWriter, m repository.Metrics, log *applogger.Logger) *usecase.IngestProcessor {
	return usecase.NewIngestProcessor(registry, archive, m, log)
}

// ProvideMarketStream creates the WebSocket market feed.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return stream.New(
		cfg.Stream.APIKey,
		cfg.Stream.WebSocketURL,
		cfg.Stream.Symbols,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
	)
}

// ProvideTickIngestor creates the stream collector with its pipeline.
func ProvideTickIngestor(
	ms repository.MarketStream,
	proc *usecase.IngestProcessor,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TickIngestor {
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Stream.MaxRPS),
		mid.WithBufferSize(cfg.Stream.BufferSize),
		mid.WithTransform(func(t *models.Tick) *models.Tick {
			t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
			return t
		}),
	)
	return usecase.NewTickIngestor(ms, proc, m, pipe)
}

// ProvideKafkaConsumer creates a Kafka consumer when enabled.
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

// ProvideKafkaTicksHandler registers the handler for the ticks topic.
func ProvideKafkaTicksHandler(proc *usecase.IngestProcessor, m repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, proc, m)
}

// ProvideAnalysisCycle creates the periodic evaluation loop.
func ProvideAnalysisCycle(
	registry *engine.SymbolRegistry,
	d *dispatch.Dispatcher,
	st *state.Store,
	symbols repository.SymbolSource,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.AnalysisCycle {
	return usecase.NewAnalysisCycle(registry, d, st, symbols, m, log, cfg.Analysis.Interval, cfg.Analysis.CycleWorkers)
}

// ProvideHistoryUseCase creates the archive read usecase, or nil without
// an archive.
func ProvideHistoryUseCase(archive repository.TickArchive) *usecase.HistoryUseCase {
	if archive == nil {
		return nil
	}
	return usecase.NewHistoryUseCase(archive)
}

// ProvideAPIHandler creates the read-only API handler.
func ProvideAPIHandler(
	log *applogger.Logger,
	st *state.Store,
	history *usecase.HistoryUseCase,
	archive repository.TickArchive,
	ingestor *usecase.TickIngestor,
) *api.MarketEchoHandler {
	return api.NewMarketEchoHandler(log, st, history, archive, ingestor)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	ingestor *usecase.TickIngestor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	d *dispatch.Dispatcher,
	cycle *usecase.AnalysisCycle,
	archiveWriter *usecase.ArchiveWriter,
	handler *api.MarketEchoHandler,
	notifier queue.QueueService,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.HookFuncs{
			Err: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
				log.Error("tick message failed after retries",
					applogger.String("topic", topic),
					applogger.Int("partition", km.Partition),
					applogger.Int64("offset", km.Offset),
					applogger.Error(err),
				)
			},
		})
	}
	if notifier != nil {
		// aggregate error-level logs onto the queue for offline triage
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Redis.LogTopic,
			Publisher:      notifier,
		})
	}
	return server.New(cfg, log, ingestor, consumer, kh, chClient, d, cycle, archiveWriter, handler)
}
