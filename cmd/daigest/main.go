// Package main provides the daigest binary entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zivalx/dAIgest/internal/app"
	"github.com/zivalx/dAIgest/internal/config"
	"github.com/zivalx/dAIgest/internal/logging"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daigest",
		Short: "Multi-source content digest engine",
		Long: `daigest collects content from configured sources (reddit, youtube,
gnews, twitter, telegram, google trends), summarizes it with an LLM and
keeps a full audit trail of every run.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), runCmd(), versionCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and optional cron scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}
}

func runCmd() *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single digest cycle from a YAML request file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			cycle, err := application.RunOnce(ctx, requestPath)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(cycle, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "digest.yaml", "Path to the cycle request file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("daigest version %s\n", version)
		},
	}
}
