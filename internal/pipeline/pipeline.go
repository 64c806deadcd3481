// Package pipeline drives the per-year dataset build:
// fetch -> validate -> backfill gaps -> merge -> validate -> replace.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"candlevault/config"
	"candlevault/internal/fetch"
	"candlevault/pkg/candle"
	"candlevault/pkg/dataset"

	"go.uber.org/zap"
)

type Pipeline struct {
	Layout     dataset.Layout
	Product    config.ProductConfig
	Fetcher    *fetch.YearFetcher
	Backfiller *fetch.Backfiller
	Logger     *zap.Logger
}

// Run processes each year in order and returns an error when any year could
// not be completed. Years that fail do not stop the remaining ones.
func (p *Pipeline) Run(ctx context.Context, years []int) error {
	var failed []int

	for _, year := range years {
		if err := p.ProcessYear(ctx, year); err != nil {
			p.Logger.Error("year failed",
				zap.String("asset", p.Product.Asset),
				zap.Int("year", year),
				zap.Error(err))
			failed = append(failed, year)
			continue
		}
		p.Logger.Info("year completed",
			zap.String("asset", p.Product.Asset),
			zap.Int("year", year))
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d years incomplete: %v", len(failed), len(years), failed)
	}
	return nil
}

// ProcessYear brings one year file to a complete, validated state. An
// already complete file is left untouched.
func (p *Pipeline) ProcessYear(ctx context.Context, year int) error {
	path := p.Layout.YearFile(p.Product.Asset, p.Product.Symbol, candle.Minute, year)

	if _, err := os.Stat(path); err == nil {
		report, err := dataset.ValidateFile(path, candle.Minute)
		if err != nil {
			return err
		}
		if report.Complete() {
			p.Logger.Info("year already complete", zap.String("file", path))
			return nil
		}
		p.Logger.Warn("existing file has issues, repairing",
			zap.String("file", path),
			zap.Int("gaps", len(report.Gaps)),
			zap.Int("issues", len(report.Issues)))
	} else {
		candles, failedWindows, err := p.Fetcher.FetchYear(ctx, p.Product.CoinbaseProduct, year)
		if err != nil {
			return fmt.Errorf("fetch %d: %w", year, err)
		}
		if len(candles) == 0 {
			return fmt.Errorf("fetch %d: no data", year)
		}
		if failedWindows > 0 {
			p.Logger.Warn("some windows failed, gaps expected",
				zap.Int("year", year),
				zap.Int("failed_windows", failedWindows))
		}
		if err := dataset.WriteFile(path, candles); err != nil {
			return err
		}
	}

	report, err := dataset.ValidateFile(path, candle.Minute)
	if err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%s: %d validation issues, first: %s", path, len(report.Issues), firstIssue(report))
	}
	if len(report.Gaps) == 0 {
		return nil
	}

	return p.repair(ctx, path, report.Gaps)
}

// repair backfills the missing ranges from the secondary source, merges
// them in and atomically replaces the original once the result validates.
func (p *Pipeline) repair(ctx context.Context, path string, gaps []dataset.Range) error {
	missing := rangesToTimes(gaps)

	p.Logger.Info("backfilling gaps",
		zap.String("file", path),
		zap.Int("missing", len(missing)),
		zap.Int("ranges", len(gaps)))

	if _, err := dataset.WriteGapReport(path, missing, gaps); err != nil {
		return err
	}

	extra, failedChunks, err := p.Backfiller.FetchRanges(ctx, p.Product.BinanceSymbol, gaps)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	if failedChunks > 0 {
		return fmt.Errorf("backfill: %d chunks failed", failedChunks)
	}

	base := strings.TrimSuffix(path, ".csv")
	missingPath := base + "_missing_data.csv"
	if err := dataset.WriteFile(missingPath, extra); err != nil {
		return err
	}

	completePath := base + "_complete.csv"
	if _, err := dataset.MergeFiles(path, missingPath, completePath); err != nil {
		return err
	}

	report, err := dataset.ValidateFile(completePath, candle.Minute)
	if err != nil {
		return err
	}
	if !report.Complete() {
		return fmt.Errorf("%s still incomplete after backfill: %d gaps, %d issues",
			completePath, len(report.Gaps), len(report.Issues))
	}

	if err := os.Rename(completePath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	dataset.CleanupGapArtifacts(path)

	p.Logger.Info("gaps repaired", zap.String("file", path), zap.Int("filled", len(missing)))
	return nil
}

func rangesToTimes(ranges []dataset.Range) []int64 {
	var times []int64
	for _, r := range ranges {
		for ts := r.Start; ts <= r.End; ts += 60 {
			times = append(times, ts)
		}
	}
	return times
}

func firstIssue(r *dataset.Report) string {
	if len(r.Issues) == 0 {
		return ""
	}
	return r.Issues[0].String()
}
