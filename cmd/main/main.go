package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portfolio-dashboard/src/config"
	"portfolio-dashboard/src/logger"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// -----------------------------------------------------------------------------

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "portfolio-dashboard",
		Short:         "Price and history caches for the portfolio dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/default.yaml", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and gRPC servers with the cache scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				return a.serve(ctx)
			})
		},
	}
	root.RunE = serve.RunE

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Run one portfolio refresh pass and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				return printJSON(a.coordinator.RefreshPortfolioCache(ctx))
			})
		},
	}

	changes := &cobra.Command{
		Use:   "changes",
		Short: "Print the ledger change report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				report, err := a.tracker.CheckForChanges()
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				return printJSON(map[string]interface{}{
					"prices":  a.prices.GetStats(),
					"history": a.history.GetStats(),
				})
			})
		},
	}

	root.AddCommand(serve, refresh, changes, stats)
	return root
}

// -----------------------------------------------------------------------------

// withApp loads the config, builds the app and runs fn until it returns or
// the process receives SIGINT/SIGTERM.
func withApp(configPath string, fn func(ctx context.Context, a *app) error) error {
	conf, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	appLogger := logger.NewLogger(conf.MConfig, conf.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(conf, appLogger)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

// -----------------------------------------------------------------------------

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
