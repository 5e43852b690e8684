package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pharma-listing-crawler/internal/app"
	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store and image statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := appInstance.CheckStore(cmd.Context())
			if err != nil {
				return err
			}
			printStatistics(cmd.OutOrStdout(), stats)

			imgStats, err := appInstance.ImageStats(cmd.Context())
			switch {
			case errors.Is(err, app.ErrImageStatsUnavailable):
				fmt.Fprintln(cmd.OutOrStdout(), "Images: not available for this backend")
			case err != nil:
				return err
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Images: %d files, %.2f MB\n", imgStats.Count, megabytes(imgStats.TotalSize))
			}
			return nil
		},
	}
}

func newCheckStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-store",
		Short: "Verify the store is reachable and its schema exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := appInstance.CheckStore(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Store OK: %d records\n", stats.Total)
			return nil
		},
	}
}

func printStatistics(w io.Writer, stats medicine.Statistics) {
	fmt.Fprintf(w, "Total records:        %d\n", stats.Total)
	fmt.Fprintf(w, "With images:          %d\n", stats.WithImages)
	fmt.Fprintf(w, "With generic names:   %d\n", stats.WithGenericNames)
	fmt.Fprintf(w, "With listing prices:  %d\n", stats.WithListingPrices)
	fmt.Fprintf(w, "With detail prices:   %d\n", stats.WithDetailPrices)
	if stats.FirstRecord != nil {
		fmt.Fprintf(w, "First record:         %s\n", stats.FirstRecord.Format(time.RFC3339))
	}
	if stats.LastRecord != nil {
		fmt.Fprintf(w, "Last record:          %s\n", stats.LastRecord.Format(time.RFC3339))
	}
}
