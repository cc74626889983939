package di

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"QuotaGame/internal/domain/models"
	"QuotaGame/internal/domain/repository"
	"QuotaGame/internal/handler/api"
	mid "QuotaGame/internal/middleware"
	internalrepo "QuotaGame/internal/repository"
	"QuotaGame/internal/service/ratelimit"
	"QuotaGame/internal/services/barrier"
	"QuotaGame/internal/services/gbm"
	"QuotaGame/internal/usecase"
	"QuotaGame/pkg/cache"
	pkgch "QuotaGame/pkg/clickhouse"
	"QuotaGame/pkg/config"
	xhttp "QuotaGame/pkg/http"
	"QuotaGame/pkg/http/middleware"
	pkgkafka "QuotaGame/pkg/kafka"
	applogger "QuotaGame/pkg/logger"
	"QuotaGame/pkg/metrics"
	"QuotaGame/pkg/server"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse when it is the export backend.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != usecase.BackendClickHouse {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.EnsureDatabase(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse database: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a producer when something publishes: the kafka backend
// or the log collector.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Backend.Type != usecase.BackendKafka && !cfg.Log.Collect.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithTopics(cfg.Kafka.Topics.Samples, cfg.Kafka.Topics.Settlements, cfg.Kafka.Topics.Logs),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideStorage creates the ClickHouse storage and its tables.
func ProvideStorage(client *pkgch.Client, cfg *config.Config, l *applogger.Logger) (repository.Storage, error) {
	if client == nil {
		return nil, nil
	}
	for _, t := range []string{cfg.ClickHouse.SamplesTable, cfg.ClickHouse.SettlementsTable} {
		if !pkgch.ValidIdentifier(t) {
			return nil, fmt.Errorf("clickhouse: invalid table name %q", t)
		}
	}
	store := internalrepo.NewClickHouseStorage(client.DB(),
		client.Table(cfg.ClickHouse.SamplesTable),
		client.Table(cfg.ClickHouse.SettlementsTable), l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvidePublisher creates the Kafka publisher for the kafka backend.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil || cfg.Backend.Type != usecase.BackendKafka {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Samples, cfg.Kafka.Topics.Settlements)
}

func ProvideExporter(pub repository.Publisher, store repository.Storage, m repository.Metrics, cfg *config.Config) *usecase.RecordExporter {
	return usecase.NewRecordExporter(pub, store, m, cfg.Backend.Type)
}

func ProvideExportPipeline(exp *usecase.RecordExporter, m repository.Metrics, cfg *config.Config) *mid.ExportPipeline {
	return mid.NewExportPipeline(exp, m,
		mid.WithBufferSize(cfg.Backend.BufferSize),
		mid.WithBatchSize(cfg.Backend.BatchSize),
		mid.WithFlushInterval(cfg.Backend.BatchTimeout),
		mid.WithMaxRetries(cfg.Backend.MaxRetries),
	)
}

// ProvideCache builds the estimate cache backend. "none" disables caching.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	cc := cfg.Cache
	opts := []cache.Option{
		cache.WithMaxEntries(cc.MemoryMaxSize),
		cache.WithSweep(cc.Sweep),
		cache.WithL1TTL(cc.L1TTL),
		cache.WithAddr(net.JoinHostPort(cc.Redis.Host, strconv.Itoa(cc.Redis.Port))),
		cache.WithAuth(cc.Redis.Password, cc.Redis.DB),
		cache.WithPool(cc.Redis.PoolSize, cc.Redis.PoolSize/2, 30*time.Second),
		cache.WithPrefix(cc.Redis.Prefix),
	}
	switch cc.Type {
	case "none":
		return nil, nil
	case "memory":
		return cache.NewMemoryCache(opts...), nil
	}

	rc, err := cache.NewRedisCache(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	if cc.Type == "layered" {
		return cache.NewLayeredCache(rc, opts...), nil
	}
	return rc, nil
}

func ProvideEstimateCache(c cache.Service, cfg *config.Config, l *applogger.Logger) repository.EstimateCache {
	if c == nil {
		return nil
	}
	return internalrepo.NewEstimateCache(c, cfg.Cache.TTL, l)
}

// ProvideEngine creates the barrier engine. A non-zero game.seed makes it reproducible.
func ProvideEngine(cfg *config.Config) *barrier.Engine {
	opts := []barrier.EngineOption{
		barrier.WithWorkers(cfg.Simulation.Workers),
		barrier.WithChunkSize(cfg.Simulation.ChunkSize),
		barrier.WithPayoutCap(cfg.Simulation.PayoutCap),
		barrier.WithMaxWork(cfg.Simulation.MaxWork),
	}
	if cfg.Game.Seed != 0 {
		opts = append(opts, barrier.WithSeed(cfg.Game.Seed, cfg.Game.Seed+1))
	}
	return barrier.NewEngine(opts...)
}

func ProvidePriceProcess(cfg *config.Config) *gbm.Process {
	params := gbm.Params{Drift: cfg.Game.Drift, Volatility: cfg.Game.Volatility, DT: cfg.DT()}
	opts := []gbm.ProcessOption{gbm.WithClock(time.Now())}
	if cfg.Game.Seed != 0 {
		// distinct stream from the engine so odds never share draws with the realized path
		opts = append(opts, gbm.WithSource(rand.NewPCG(cfg.Game.Seed, ^cfg.Game.Seed)))
	}
	return gbm.New(cfg.Game.StartPrice, params, opts...)
}

func ProvideQuoter(cfg *config.Config, engine *barrier.Engine, ec repository.EstimateCache, m repository.Metrics) *usecase.Quoter {
	return usecase.NewQuoter(usecase.QuoteConfig{
		Drift:      cfg.Game.Drift,
		Volatility: cfg.Game.Volatility,
		DT:         cfg.DT(),
		NumPaths:   cfg.Simulation.Paths,
		MaxSteps:   cfg.Simulation.Steps,
	}, engine, ec, m)
}

func ProvideRoundMachine(cfg *config.Config) *usecase.RoundMachine {
	return usecase.NewRoundMachine(
		usecase.RoundConfig{MinOffset: cfg.Round.MinOffset, MinDrag: cfg.Round.MinDrag},
		models.Ledger{
			Budget:    decimal.NewFromInt(cfg.Round.Budget),
			Stake:     cfg.Round.Stake,
			StakeMin:  cfg.Round.StakeMin,
			StakeMax:  cfg.Round.StakeMax,
			StakeStep: cfg.Round.StakeStep,
		})
}

// ProvideSession assembles the live game. Records reach the pipeline only when a
// backend is selected.
func ProvideSession(
	cfg *config.Config,
	proc *gbm.Process,
	machine *usecase.RoundMachine,
	quoter *usecase.Quoter,
	pipe *mid.ExportPipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Session {
	view := models.Viewport{
		AnchorX:  cfg.View.AnchorX,
		AnchorY:  cfg.View.AnchorY,
		SpacingX: cfg.View.SpacingX,
		ScaleY:   cfg.View.ScaleY,
		ScaleMin: cfg.View.ScaleMin,
		ScaleMax: cfg.View.ScaleMax,
	}
	var opts []usecase.SessionOption
	if cfg.Backend.Type != usecase.BackendNone {
		opts = append(opts, usecase.WithRecordSink(pipe))
	}
	return usecase.NewSession(usecase.SessionConfig{
		TickPeriod:  cfg.Game.TickPeriod,
		QuoteEvery:  cfg.Simulation.QuoteEvery,
		Window:      cfg.View.Window,
		StatsWindow: cfg.View.StatsWindow,
	}, proc, machine, quoter, view, m, l, opts...)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Server.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.PerSec)
}

func ProvideGameHandler(l *applogger.Logger, session *usecase.Session, cfg *config.Config) *api.GameHandler {
	var origins middleware.OriginPolicy
	if cfg.Server.CORS.Enabled {
		origins = cfg.Server.CORS.Origins
	}
	return api.NewGameHandler(l, session, cfg.Server.StreamInterval, api.WithStreamOrigins(origins))
}

func ProvideHTTPServer(cfg *config.Config, h *api.GameHandler, limiter *ratelimit.Limiter, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(cfg.Metrics.Enabled, cfg.Metrics.Path),
		xhttp.WithLogger(l),
	}
	if cfg.Server.CORS.Enabled {
		opts = append(opts, xhttp.WithCORS(cfg.Server.CORS.Origins, cfg.Server.CORS.MaxAge))
	}
	if limiter != nil {
		opts = append(opts, xhttp.WithRateLimit(limiter))
	}
	return xhttp.NewServer(h, opts...)
}

// ProvideKafkaConsumer creates the command consumer when enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
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
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		pkgkafka.CommandShapeHook{MaxBytes: cfg.Kafka.Consumer.MaxCommand},
	))
	return consumer, nil
}

func ProvideCommandHandler(cfg *config.Config, session *usecase.Session, m repository.Metrics, l *applogger.Logger) *usecase.CommandHandler {
	if !cfg.Kafka.Consumer.Enabled {
		return nil
	}
	return usecase.NewCommandHandler(cfg.Kafka.Topics.Commands, session, m, l)
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, l *applogger.Logger, c server.Components) *server.App {
	return server.New(cfg, l, c)
}
