package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"holycluster/internal/appconfig"
	"holycluster/internal/supervisor"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "holycluster",
	Short: "Ingests, enriches, and fans out amateur-radio DX cluster spots",
	Long: `holycluster collects DX spot announcements from telnet cluster
servers, enriches each one with band/mode classification and geographic
lookups, deduplicates across sources, persists the result, and serves it
to WebSocket subscribers in near real time.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion/enrichment/broadcast pipeline",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("holycluster: %w", err)
	}

	log, err := supervisor.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("holycluster: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, err := supervisor.Build(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to build pipeline", "error", err)
	}

	log.Infow("holycluster starting", "version", version, "http_addr", cfg.HTTPAddr)
	sup.Run(ctx)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
