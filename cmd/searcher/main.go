package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/inverted-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"data_dir", cfg.Indexer.DataDir,
		"docstore", cfg.DocStore.Backend,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled || cfg.DocStore.Backend == config.BackendRedis {
		client, err := pkgredis.NewClient(cfg.Redis)
		switch {
		case err == nil:
			redisClient = client
			defer redisClient.Close()
		case cfg.DocStore.Backend == config.BackendRedis:
			return fmt.Errorf("redis document store: %w", err)
		default:
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		}
	}

	docs, closeDocs, err := openDocStore(ctx, cfg, redisClient, m)
	if err != nil {
		return err
	}
	defer closeDocs()

	engine, err := indexer.Open(cfg.Indexer, docs, indexer.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Error("closing index", "error", err)
		}
	}()
	engine.Start(ctx)

	var queue ingesthandler.Enqueuer
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.IngestTopic)
		defer producer.Close()
		queue = publisher.New(producer)

		ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.IngestTopic, consumer.HandleMessage(engine))
		defer ingestConsumer.Close()
		go func() {
			if err := ingestConsumer.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		}()
		slog.Info("kafka ingestion enabled", "topic", cfg.Kafka.IngestTopic)
	}

	var queryCache *cache.QueryCache
	if redisClient != nil && cfg.Redis.Enabled {
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, engine.Version, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	checker := health.NewChecker()
	checker.Register("index_engine", health.Probe(health.StatusDegraded, func(context.Context) error {
		return engine.Healthy()
	}))
	if redisClient != nil {
		checker.Register("redis", health.Probe(health.StatusDegraded, redisClient.Ping))
	}
	if pinger, ok := docs.(interface{ Ping(context.Context) error }); ok {
		checker.Register("docstore", health.Probe(health.StatusDown, pinger.Ping))
	}

	router := newRouter(services{
		engine:  engine,
		queue:   queue,
		cache:   queryCache,
		checker: checker,
		metrics: m,
		search:  cfg.Search,
		timeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// openDocStore builds the configured document store. Remote backends are
// wrapped in a circuit breaker whose state is exported as a metric.
func openDocStore(ctx context.Context, cfg *config.Config, redisClient *pkgredis.Client, m *metrics.Metrics) (docstore.Store, func(), error) {
	breaker := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			m.SetBreakerState(name, int(to))
		},
	}

	switch cfg.DocStore.Backend {
	case config.BackendPostgres:
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres document store: %w", err)
		}
		pg := docstore.NewPostgres(client.DB)
		if err := pg.Migrate(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("migrating document store: %w", err)
		}
		guarded := docstore.NewGuarded("docstore-postgres", pg, breaker)
		return pingable{Store: guarded, ping: client.Ping}, func() { guarded.Close() }, nil
	case config.BackendRedis:
		guarded := docstore.NewGuarded("docstore-redis", docstore.NewRedis(redisClient, cfg.DocStore.KeyPrefix), breaker)
		// the redis client is shared with the cache and closed by run
		return guarded, func() {}, nil
	default:
		slog.Warn("using in-memory document store; document text is lost on restart and reopening a durable index will be refused")
		mem := docstore.NewMemory()
		return mem, func() { mem.Close() }, nil
	}
}

type pingable struct {
	docstore.Store
	ping func(context.Context) error
}

func (p pingable) Ping(ctx context.Context) error {
	return p.ping(ctx)
}
