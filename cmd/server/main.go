// Command server recomputes statistics on a schedule and serves them over
// HTTP and WebSocket. With KAFKA_CONSUME set it also appends transfers
// consumed from Kafka to the configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"transfer-stats/internal/app"
	"transfer-stats/internal/config"
	"transfer-stats/internal/domain"
	"transfer-stats/internal/generator"
	"transfer-stats/internal/logging"
	"transfer-stats/internal/queue"
	"transfer-stats/internal/server"
	"transfer-stats/internal/stats"
	"transfer-stats/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	envFile := flag.String("env-file", "", "Optional .env file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	interval := flag.Duration("recompute-every", -1, "Recompute interval (overrides config, 0 runs once)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *interval >= 0 {
		cfg.HTTP.RecomputeEvery = *interval
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()

		// Second signal or a stuck shutdown forces exit
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(cfg.HTTP.ShutdownTimeout + 20*time.Second):
			logger.Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger)
	close(done)
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	opts := stats.Options{
		Transfers:     stores.Transfers,
		Snapshots:     stores.Snapshots,
		Backend:       stores.Backend,
		Chronological: cfg.Stats.Chronological,
		Logger:        logger,
	}
	redisCache, err := app.OpenCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	var statsCache storage.StatsCache
	if redisCache != nil {
		defer redisCache.Close()
		opts.Cache = redisCache
		statsCache = redisCache
	}
	svc := stats.NewService(opts)

	if cfg.Stats.SeedCount > 0 {
		gen, err := generator.New(cfg.Generator)
		if err != nil {
			return fmt.Errorf("create generator: %w", err)
		}
		if _, err := svc.Seed(ctx, gen, cfg.Stats.SeedCount); err != nil {
			return err
		}
	}

	srv := server.New(server.Options{
		Service:        svc,
		Cache:          statsCache,
		RecomputeEvery: cfg.HTTP.RecomputeEvery,
		Logger:         logger,
	})

	errCh := make(chan error, 3)

	go func() {
		if err := srv.RunScheduler(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		err := srv.ListenAndServe(ctx, cfg.HTTP.Addr, cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.ShutdownTimeout)
		if err != nil {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	if cfg.Kafka.Consume {
		source := queue.NewKafkaSource(queue.KafkaConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			BatchSize:     cfg.Kafka.BatchSize,
			BatchTimeout:  cfg.Kafka.BatchTimeout,
		}, logger)
		defer source.Close()

		go func() {
			err := source.Consume(ctx, func(ctx context.Context, transfers []*domain.Transfer) error {
				return stores.Transfers.InsertBulk(ctx, transfers)
			})
			if err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		// Let in-flight requests finish before the stores close
		<-httpDone
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
