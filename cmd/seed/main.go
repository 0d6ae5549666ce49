// Command seed generates synthetic transfers into the configured store or a Kafka topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"transfer-stats/internal/app"
	"transfer-stats/internal/config"
	"transfer-stats/internal/generator"
	"transfer-stats/internal/logging"
	"transfer-stats/internal/observability"
	"transfer-stats/internal/queue"
	"transfer-stats/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	envFile := flag.String("env-file", "", "Optional .env file")
	count := flag.Int("count", -1, "Number of transfers to generate (-1 uses config)")
	sink := flag.String("sink", "store", "Destination: store or kafka")
	style := flag.String("address-style", "", "Address style override: hex or base58")
	batchSize := flag.Int("batch-size", generator.DefaultBatchSize, "Transfers per write")
	seed := flag.Uint64("rand-seed", 0, "Deterministic RNG seed (0 for random)")
	flag.Parse()

	if err := run(*configPath, *envFile, *count, *sink, *style, *batchSize, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, count int, sinkName, style string, batchSize int, seed uint64) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if count < 0 {
		count = cfg.Stats.SeedCount
	}
	if style != "" {
		cfg.Generator.AddressStyle = style
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	var genOpts []generator.Option
	if seed != 0 {
		genOpts = append(genOpts, generator.WithSeed(seed))
	}
	gen, err := generator.New(cfg.Generator, genOpts...)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink storage.TransferSink
	switch sinkName {
	case "store":
		stores, err := app.OpenStores(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer stores.Close()
		sink = stores.Transfers
		sinkName = stores.Backend
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka sink requires brokers (KAFKA_BROKERS)")
		}
		producer := queue.NewKafkaSink(queue.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		defer producer.Close()
		sink = producer
	default:
		return fmt.Errorf("unknown sink %q", sinkName)
	}

	n, err := generator.Fill(ctx, gen, sink, count, batchSize)
	observability.DefaultMetrics.RecordSeeded(sinkName, n)
	if err != nil {
		return fmt.Errorf("seed after %d transfers: %w", n, err)
	}

	logger.Info("seed complete",
		zap.Int("transfers", n),
		zap.String("sink", sinkName),
		zap.String("address_style", cfg.Generator.AddressStyle),
	)
	return nil
}
