package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay is a conversational agent that routes, retrieves and summarizes",
	Long: `Relay answers questions from an internal knowledge base with cited sources,
falls back to web search, summarizes long documents and keeps conversation
memory compact across turns.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default ./relay.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log engine events to stderr")
	rootCmd.PersistentFlags().StringSlice("docs", nil, "Files or directories to ingest on startup")
}

// loadConfig reads the config named by --config and builds the logger.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg, cli.NewLogger(cfg, debug)
}

// buildApp wires the application and ingests the --docs paths.
func buildApp(cmd *cobra.Command) (config.Config, *cli.App) {
	cfg, logger := loadConfig(cmd)
	app, err := cli.Build(cfg, logger)
	if err != nil {
		fmt.Printf("Error initializing relay: %v\n", err)
		os.Exit(1)
	}

	docs, _ := cmd.Flags().GetStringSlice("docs")
	for _, path := range docs {
		report, err := app.Relay.IngestPath(cmd.Context(), path)
		if err != nil {
			app.Close()
			fmt.Printf("Error ingesting %s: %v\n", path, err)
			os.Exit(1)
		}
		logger.Info("Ingested", "path", path, "documents", report.Documents, "chunks", report.Chunks)
	}
	return cfg, app
}
