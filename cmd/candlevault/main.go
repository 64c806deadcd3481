package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"candlevault/config"
	"candlevault/internal/api"
	"candlevault/internal/fetch"
	"candlevault/internal/live"
	"candlevault/internal/pipeline"
	"candlevault/logger"
	"candlevault/pkg/candle"
	"candlevault/pkg/dataset"
	"candlevault/pkg/exchange/binance"
	"candlevault/pkg/exchange/coinbase"
	"candlevault/pkg/storage/postgres"

	"go.uber.org/zap"
)

const usage = `usage: candlevault <command> [flags]

commands:
  fetch       build or complete yearly 1min files for an asset
  validate    check dataset integrity for an asset/timeframe
  gaps        analyze one file for missing timestamps
  merge       merge a backfill CSV into an original file
  dedupe      remove duplicate timestamps from a file in place
  combine     concatenate yearly 1min files into one CSV
  aggregate   rebuild 5min/30min/hourly/daily/weekly files from 1min data
  split       split a full-history file into per-year files
  repair      fix zero-price rows and year-boundary holes for an asset
  mirror      load the 1min dataset into the Postgres mirror
  live        tail the exchange stream into the current-year files
  serve       run the HTTP price API over the mirror
  firstdate   probe backwards for the first date a product has data
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	cmd := os.Args[1]
	args := os.Args[2:]

	if err := run(cmd, args, cfg, log); err != nil {
		log.Fatal("command failed", zap.String("command", cmd), zap.Error(err))
	}
}

func run(cmd string, args []string, cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	switch cmd {
	case "fetch":
		return cmdFetch(ctx, args, cfg, log)
	case "validate":
		return cmdValidate(args, cfg, log)
	case "gaps":
		return cmdGaps(args, log)
	case "merge":
		return cmdMerge(args, log)
	case "dedupe":
		return cmdDedupe(args, log)
	case "combine":
		return cmdCombine(args, cfg, log)
	case "aggregate":
		return cmdAggregate(args, cfg, log)
	case "split":
		return cmdSplit(args, cfg, log)
	case "repair":
		return cmdRepair(args, cfg, log)
	case "mirror":
		return cmdMirror(ctx, args, cfg, log)
	case "live":
		return cmdLive(cfg, log)
	case "serve":
		return cmdServe(cfg, log)
	case "firstdate":
		return cmdFirstDate(ctx, args, cfg, log)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func findProduct(cfg *config.Config, asset string) (config.ProductConfig, error) {
	for _, p := range cfg.Dataset.Products {
		if p.Asset == asset {
			return p, nil
		}
	}
	return config.ProductConfig{}, fmt.Errorf("asset %q not configured", asset)
}

func layout(cfg *config.Config) dataset.Layout {
	return dataset.Layout{Root: cfg.Dataset.Root}
}

func cmdFetch(ctx context.Context, args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	asset := fs.String("asset", "btc", "asset to fetch")
	from := fs.Int("from", time.Now().UTC().Year(), "first year")
	to := fs.Int("to", time.Now().UTC().Year(), "last year")
	fs.Parse(args)

	product, err := findProduct(cfg, *asset)
	if err != nil {
		return err
	}

	cb := coinbase.NewClient(cfg.Coinbase.BaseURL, cfg.Coinbase.Timeout, cfg.Coinbase.RequestsPerSecond)
	bn := binance.NewClient(cfg.Binance.BaseURL, cfg.Binance.Timeout, cfg.Binance.RequestsPerSecond)

	p := &pipeline.Pipeline{
		Layout:     layout(cfg),
		Product:    product,
		Fetcher:    fetch.NewYearFetcher(cb, cfg.Coinbase.Workers, log),
		Backfiller: fetch.NewBackfiller(bn, cfg.Binance.Workers, log),
		Logger:     log,
	}

	var years []int
	for y := *from; y <= *to; y++ {
		years = append(years, y)
	}
	return p.Run(ctx, years)
}

func cmdValidate(args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	asset := fs.String("asset", "btc", "asset to validate")
	tfName := fs.String("tf", "1min", "timeframe")
	fs.Parse(args)

	product, err := findProduct(cfg, *asset)
	if err != nil {
		return err
	}
	tf, err := candle.ParseTimeframe(*tfName)
	if err != nil {
		return err
	}

	report, err := dataset.ValidateYears(layout(cfg), product.Asset, product.Symbol, tf)
	if err != nil {
		return err
	}

	for _, fr := range report.Files {
		fields := []zap.Field{
			zap.String("file", fr.Path),
			zap.Int("rows", fr.Rows),
			zap.Int("duplicates", fr.Duplicates),
			zap.Int("gaps", len(fr.Gaps)),
			zap.Int("issues", len(fr.Issues)),
		}
		if fr.Complete() {
			log.Info("file ok", fields...)
		} else {
			if len(fr.Issues) > 0 {
				fields = append(fields, zap.String("first_issue", fr.Issues[0].String()))
			}
			log.Warn("file has problems", fields...)
		}
	}
	for _, issue := range report.Issues {
		log.Warn("dataset issue", zap.String("issue", issue.String()))
	}

	if !report.OK() {
		return fmt.Errorf("validation failed for %s/%s", *asset, tf)
	}
	log.Info("dataset valid",
		zap.String("asset", *asset),
		zap.String("timeframe", string(tf)),
		zap.Int("rows", report.Rows))
	return nil
}

func cmdGaps(args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet("gaps", flag.ExitOnError)
	file := fs.String("file", "", "dataset file to analyze")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	report, err := dataset.ValidateFile(*file, candle.Minute)
	if err != nil {
		return err
	}

	if len(report.Gaps) == 0 {
		log.Info("no missing data", zap.String("file", *file))
		return nil
	}

	var missing []int64
	for _, r := range report.Gaps {
		for ts := r.Start; ts <= r.End; ts += 60 {
			missing = append(missing, ts)
		}
		log.Info("missing range",
			zap.Int64("start", r.Start),
			zap.Int64("end", r.End),
			zap.Int64("minutes", r.Count(60)))
	}

	rangesFile, err := dataset.WriteGapReport(*file, missing, report.Gaps)
	if err != nil {
		return err
	}

	log.Info("gap report written",
		zap.String("ranges_file", rangesFile),
		zap.Int("missing", len(missing)),
		zap.Int("ranges", len(report.Gaps)))
	return nil
}

func cmdMerge(args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	original := fs.String("original", "", "original dataset file")
	extra := fs.String("extra", "", "backfill file to merge in")
	out := fs.String("out", "", "output file (default <original>_complete.csv)")
	fs.Parse(args)

	if *original == "" || *extra == "" {
		return fmt.Errorf("-original and -extra are required")
	}
	if *out == "" {
		*out = strings.TrimSuffix(*original, ".csv") + "_complete.csv"
	}

	dropped, err := dataset.MergeFiles(*original, *extra, *out)
	if err != nil {
		return err
	}
	log.Info("merged", zap.String("out", *out), zap.Int("duplicates_dropped", dropped))
	return nil
}

func cmdDedupe(args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet("dedupe", flag.ExitOnError)
	file := fs.String("file", "", "dataset file to dedupe in place")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	removed, err := dataset.Dedupe(*file)
	if err != nil {
		return err
	}
	if removed == 0 {
		log.Info("no duplicates found", zap.String("file", *file))
	} else {
		log.Info("duplicates removed", zap.String("file", *file), zap.Int("removed", removed))
	}
	return nil
}

func cmdCombine(args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	asset := fs.String("asset", "btc", "asset to combine")
	out := fs.String("out", "", "output file")
	fs.Parse(args)

	product, err := findProduct(cfg, *asset)
	if err != nil {
		return err
	}
	if *out == "" {
		*out = fmt.Sprintf("combined_%s_data.csv", *asset)
	}

	rows, err := dataset.Combine(layout(cfg), product.Asset, product.Symbol, candle.Minute, *out)
	if err != nil {
		return err
	}
	log.Info("combined", zap.String("out", *out), zap.Int("rows", rows))
	return nil
}

func cmdAggregate(args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	asset := fs.String("asset", "btc", "asset to aggregate")
	fs.Parse(args)

	product, err := findProduct(cfg, *asset)
	if err != nil {
		return err
	}

	written, err := dataset.BuildAggregates(layout(cfg), product.Asset, product.Symbol)
	if err != nil {
		return err
	}
	for tf, rows := range written {
		log.Info("aggregated", zap.String("timeframe", string(tf)), zap.Int("rows", rows))
	}
	return nil
}

func cmdSplit(args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	asset := fs.String("asset", "btc", "asset")
	tfName := fs.String("tf", "5min", "timeframe to split")
	fs.Parse(args)

	product, err := findProduct(cfg, *asset)
	if err != nil {
		return err
	}
	tf, err := candle.ParseTimeframe(*tfName)
	if err != nil {
		return err
	}

	files, err := dataset.SplitYearly(layout(cfg), product.Asset, product.Symbol, tf)
	if err != nil {
		return err
	}
	for _, f := range files {
		log.Info("wrote", zap.String("file", f))
	}
	return nil
}

func cmdRepair(args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	asset := fs.String("asset", "btc", "asset to repair")
	fs.Parse(args)

	product, err := findProduct(cfg, *asset)
	if err != nil {
		return err
	}
	l := layout(cfg)

	entries, err := l.Years(product.Asset, product.Symbol, candle.Minute)
	if err != nil {
		return err
	}

	totalFixed := 0
	for _, entry := range entries {
		fixed, err := dataset.FixZeroRows(entry.Path)
		if err != nil {
			return err
		}
		if fixed > 0 {
			log.Info("zero-price rows fixed", zap.String("file", entry.Path), zap.Int("fixed", fixed))
		}
		totalFixed += fixed
	}

	filled, err := dataset.FillYearBoundaries(l, product.Asset, product.Symbol, candle.Minute)
	if err != nil {
		return err
	}

	log.Info("repair finished",
		zap.String("asset", *asset),
		zap.Int("zero_rows_fixed", totalFixed),
		zap.Int("boundaries_filled", filled))
	return nil
}

func cmdMirror(ctx context.Context, args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("mirror", flag.ExitOnError)
	asset := fs.String("asset", "btc", "asset to mirror")
	fs.Parse(args)

	product, err := findProduct(cfg, *asset)
	if err != nil {
		return err
	}

	client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer client.Close()

	entries, err := layout(cfg).Years(product.Asset, product.Symbol, candle.Minute)
	if err != nil {
		return err
	}

	var total int64
	for _, entry := range entries {
		candles, err := dataset.ReadFile(entry.Path)
		if err != nil {
			return err
		}

		records := make([]*postgres.CandleRecord, 0, len(candles))
		for _, c := range candles {
			records = append(records, postgres.ToCandleRecord(product.Symbol, candle.Minute, c))
		}

		inserted, err := client.InsertCandleBatch(ctx, records)
		if err != nil {
			return fmt.Errorf("mirror %s: %w", entry.Path, err)
		}
		total += inserted
		log.Info("mirrored", zap.String("file", entry.Path), zap.Int64("inserted", inserted))
	}

	removed, err := client.DeleteDuplicates(ctx)
	if err != nil {
		return err
	}
	log.Info("mirror complete", zap.Int64("inserted", total), zap.Int64("duplicates_removed", removed))
	return nil
}

func cmdLive(cfg *config.Config, log *zap.Logger) error {
	var mirror *postgres.PostgresClient
	if cfg.Postgres.Enabled {
		client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return fmt.Errorf("failed to connect to DB: %w", err)
		}
		defer client.Close()
		mirror = client
	}

	tailer := live.NewTailer(cfg, mirror, log)
	if err := tailer.Start(cfg.Binance.WSURL); err != nil {
		return err
	}

	select {}
}

func cmdServe(cfg *config.Config, log *zap.Logger) error {
	client, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer client.Close()

	router := api.NewRouter(api.NewHandler(client))
	log.Info("serving price API", zap.String("addr", cfg.API.Addr))
	return router.Run(cfg.API.Addr)
}

func cmdFirstDate(ctx context.Context, args []string, cfg *config.Config, log *zap.Logger) error {
	fs := flag.NewFlagSet("firstdate", flag.ExitOnError)
	productName := fs.String("product", "ETH-USD", "exchange product to probe")
	fromStr := fs.String("from", "", "date to walk backwards from (YYYY-MM-DD, default today)")
	fs.Parse(args)

	from := time.Now().UTC()
	if *fromStr != "" {
		parsed, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			return fmt.Errorf("invalid -from date: %w", err)
		}
		from = parsed
	}

	cb := coinbase.NewClient(cfg.Coinbase.BaseURL, cfg.Coinbase.Timeout, cfg.Coinbase.RequestsPerSecond)

	first, err := cb.FindFirstDate(ctx, *productName, from)
	if err != nil {
		return err
	}
	log.Info("first data date found",
		zap.String("product", *productName),
		zap.String("date", first.Format("2006-01-02")))
	return nil
}
