// Package cmd defines the CLI commands of the crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/app"
)

func newScrapeCmd() *cobra.Command {
	var (
		letter string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape one listing letter or the configured sweep",
		Long: `Fetches the listing page for a letter, resolves every product it links to
and stores the new ones. Products already in the store are skipped, so an
interrupted sweep can simply be run again.`,
		Example: "  crawler scrape --letter a\n  crawler scrape --all",
		RunE: func(cmd *cobra.Command, _ []string) error {
			letters, err := scrapeLetters(letter, all)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), letters)
		},
	}
	cmd.Flags().StringVarP(&letter, "letter", "l", "", "single listing letter to scrape (a-z)")
	cmd.Flags().BoolVar(&all, "all", false, "scrape every configured letter")
	cmd.MarkFlagsMutuallyExclusive("letter", "all")
	cmd.MarkFlagsOneRequired("letter", "all")
	return cmd
}

// scrapeLetters turns the flags into the letters to run. --all is resolved
// later from configuration.
func scrapeLetters(letter string, all bool) ([]rune, error) {
	if all {
		return nil, nil
	}
	r := []rune(letter)
	if len(r) != 1 || r[0] < 'a' || r[0] > 'z' {
		return nil, fmt.Errorf("--letter must be a single character a-z, got %q", letter)
	}
	return r, nil
}

func runScrape(ctx context.Context, letters []rune) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	if letters == nil {
		letters = appInstance.Config().Letters()
	}

	appInstance.ServeMetrics(ctx)

	report, runErr := appInstance.Scrape(ctx, letters)
	logger.Info("scraping completed", zap.Object("summary", report),
		zap.Duration("elapsed", report.Duration()))
	logStatistics(ctx, appInstance)

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		logger.Warn("scraping interrupted, rerun to resume")
		return nil
	default:
		return fmt.Errorf("scrape: %w", runErr)
	}
}

// logStatistics reports store and image totals after a run. A cancelled
// run context still gets its statistics.
func logStatistics(ctx context.Context, appInstance App) {
	ctx = context.WithoutCancel(ctx)
	logger := appInstance.Logger()
	stats, err := appInstance.CheckStore(ctx)
	if err != nil {
		logger.Warn("store statistics unavailable", zap.Error(err))
		return
	}
	logger.Info("store statistics",
		zap.Int("total", stats.Total),
		zap.Int("with_images", stats.WithImages),
		zap.Int("with_generic_names", stats.WithGenericNames),
		zap.Int("with_listing_prices", stats.WithListingPrices),
		zap.Int("with_detail_prices", stats.WithDetailPrices),
	)
	imgStats, err := appInstance.ImageStats(ctx)
	switch {
	case errors.Is(err, app.ErrImageStatsUnavailable):
	case err != nil:
		logger.Warn("image statistics unavailable", zap.Error(err))
	default:
		logger.Info("image statistics",
			zap.Int("count", imgStats.Count),
			zap.Float64("size_mb", megabytes(imgStats.TotalSize)),
		)
	}
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
