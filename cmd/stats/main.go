// Command stats computes per-address statistics over the stored transfer
// ledger and prints a report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"transfer-stats/internal/app"
	"transfer-stats/internal/config"
	"transfer-stats/internal/domain"
	"transfer-stats/internal/generator"
	"transfer-stats/internal/logging"
	"transfer-stats/internal/reporting"
	"transfer-stats/internal/stats"
	"transfer-stats/internal/storage"
	"transfer-stats/internal/verification"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML config file")
	envFile := flag.String("env-file", "", "Optional .env file")
	seed := flag.Int("seed", -1, "Generate this many transfers into an empty store first (-1 uses config)")
	chronological := flag.Bool("chronological", false, "Sort transfers by timestamp before aggregating")
	format := flag.String("format", "markdown", "Output format: markdown or csv")
	limit := flag.Int("limit", 10, "Rows in the markdown table (0 for all)")
	output := flag.String("output", "", "Write the report to this file instead of stdout")
	verify := flag.Bool("verify", false, "Check the latest stored snapshot against the ledger instead of computing")
	history := flag.String("history", "", "Print the uncorrected balance trace of this address instead of computing")
	engine := flag.String("engine", engineGo, "Aggregation engine: go, clickhouse or both (markdown only)")
	flag.Parse()

	m := modeReport
	switch {
	case *verify && *history != "":
		fmt.Fprintln(os.Stderr, "Error: --verify and --history are mutually exclusive")
		os.Exit(2)
	case *verify:
		m = modeVerify
	case *history != "":
		m = modeHistory
	}

	opts := runOptions{
		configPath:    *configPath,
		envFile:       *envFile,
		seed:          *seed,
		chronological: *chronological,
		mode:          m,
		address:       *history,
		engine:        *engine,
		format:        *format,
		limit:         *limit,
		output:        *output,
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type mode int

const (
	modeReport mode = iota
	modeVerify
	modeHistory
)

const (
	engineGo         = "go"
	engineClickHouse = "clickhouse"
	engineBoth       = "both"
)

type runOptions struct {
	configPath    string
	envFile       string
	seed          int
	chronological bool
	mode          mode
	address       string // --history
	engine        string
	format        string
	limit         int
	output        string
}

func (o runOptions) validate() error {
	if o.format != "markdown" && o.format != "csv" {
		return fmt.Errorf("unknown format %q", o.format)
	}
	switch o.engine {
	case engineGo, engineClickHouse:
	case engineBoth:
		if o.format != "markdown" {
			return fmt.Errorf("engine %q renders markdown only", o.engine)
		}
	default:
		return fmt.Errorf("unknown engine %q", o.engine)
	}
	return nil
}

func run(o runOptions) error {
	if err := o.validate(); err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.chronological {
		cfg.Stats.Chronological = true
	}
	if o.seed >= 0 {
		cfg.Stats.SeedCount = o.seed
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	if o.mode == modeVerify {
		return runVerify(ctx, stores, cfg.Stats.Chronological, logger)
	}

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
	if redisCache != nil {
		defer redisCache.Close()
		opts.Cache = redisCache
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

	if o.mode == modeHistory {
		return runHistory(ctx, svc, o.address)
	}

	reports, err := buildReports(ctx, o.engine, svc, stores, cfg.Stats.Chronological)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	for i, report := range reports {
		switch o.format {
		case "csv":
			err = reporting.WriteCSV(out, report.Rows)
		default:
			if i > 0 {
				_, err = io.WriteString(out, "---\n\n")
			}
			if err == nil {
				_, err = io.WriteString(out, reporting.RenderMarkdown(report, o.limit))
			}
		}
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if o.output != "" {
		logger.Info("report written",
			zap.String("path", o.output),
			zap.String("format", o.format),
			zap.String("engine", o.engine),
		)
	}
	return nil
}

// buildReports runs the selected engines. The in-process run persists a
// snapshot; the ClickHouse query only reads the ledger.
func buildReports(ctx context.Context, engine string, svc *stats.Service, stores *app.Stores, chronological bool) ([]*reporting.Report, error) {
	gen := reporting.NewGenerator(stores.Snapshots, stores.Transfers)
	var reports []*reporting.Report

	if engine == engineGo || engine == engineBoth {
		result, err := svc.Run(ctx)
		if err != nil {
			return nil, err
		}
		reports = append(reports, gen.FromRun(result, chronological))
	}

	if engine == engineClickHouse || engine == engineBoth {
		q, ok := stores.Transfers.(storage.UserStatsQuerier)
		if !ok {
			return nil, fmt.Errorf("engine %q requires the clickhouse backend, have %q", engine, stores.Backend)
		}
		report, err := gen.FromQuery(ctx, q)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

func runVerify(ctx context.Context, stores *app.Stores, chronological bool, logger *zap.Logger) error {
	v := verification.NewSnapshotVerifier(verification.SnapshotVerifierOptions{
		Transfers:     stores.Transfers,
		Snapshots:     stores.Snapshots,
		Chronological: chronological,
	})
	report, err := v.VerifyLatest(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write verification report: %w", err)
	}

	logger.Info("verification complete",
		zap.Int64("computed_at", report.ComputedAt),
		zap.Int("addresses", report.TotalAddresses),
		zap.Int("matched", report.MatchedAddresses),
		zap.Int("divergent", report.DivergentAddresses),
		zap.Int("missing_in_snapshot", len(report.MissingInSnapshot)),
	)
	if !report.OK() {
		return fmt.Errorf("snapshot %d diverges from the ledger", report.ComputedAt)
	}
	return nil
}

func runHistory(ctx context.Context, svc *stats.Service, address string) error {
	samples, err := svc.History(ctx, address)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("address %q has no transfers", address)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Address    string                 `json:"address"`
		Samples    []domain.BalanceSample `json:"samples"`
		ReplayPeak domain.JSONFloat       `json:"replay_peak"` // uncorrected
	}{
		Address:    address,
		Samples:    samples,
		ReplayPeak: domain.JSONFloat(stats.ReplayPeak(samples)),
	})
}
