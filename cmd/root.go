package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pharma-listing-crawler/internal/app"
	"github.com/JakeFAU/pharma-listing-crawler/internal/config"
	"github.com/JakeFAU/pharma-listing-crawler/internal/logging"
	"github.com/JakeFAU/pharma-listing-crawler/internal/medicine"
	"github.com/JakeFAU/pharma-listing-crawler/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface the commands use, so tests can inject
// a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Scrape(ctx context.Context, letters []rune) (pipeline.RunReport, error)
	CheckStore(ctx context.Context) (medicine.Statistics, error)
	ImageStats(ctx context.Context) (medicine.ImageStats, error)
	ServeMetrics(ctx context.Context)
}

// Options are the persistent flags shared by every command.
type Options struct {
	ConfigFile string
	Verbose    bool
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, opts Options) (App, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Verbose:     opts.Verbose || cfg.Logging.Verbose,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command and its subcommands. The returned
// cleanup closes the application built for the run and must be called after
// Execute returns, whatever its result.
func newRootCmd() (*cobra.Command, func()) {
	var (
		opts        Options
		appInstance App
	)
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Scrapes the dawaai.pk medicine catalogue.",
		Long: `crawler walks the alphabetical medicine listings of dawaai.pk, follows every
product to its detail page and stores one record per product, together with
its primary image.`,
		SilenceUsage: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			appInstance = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newScrapeCmd(), newStatsCmd(), newCheckStoreCmd())

	cleanup := func() {
		if appInstance != nil {
			appInstance.Close()
			appInstance = nil
		}
	}
	return cmd, cleanup
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
