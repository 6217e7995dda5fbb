package main

import (
	"fmt"
	"os"

	"github.com/aretw0/relay/internal/cli"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Load documents into the knowledge index",
	Long: `Splits markdown, text and HTML files into chunks and stores them in the
configured index. With the in-memory index the documents live only for this
process; use index.kind=redis to keep them, or --docs on chat and serve.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger := loadConfig(cmd)
		if cfg.Index.Kind != "redis" {
			logger.Warn("Index is in memory; ingested documents will not outlive this command")
		}
		app, err := cli.Build(cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing relay: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		hasError := false
		for _, path := range args {
			report, err := app.Relay.IngestPath(cmd.Context(), path)
			if err != nil {
				fmt.Printf("Error ingesting '%s': %v\n", path, err)
				hasError = true
				continue
			}
			fmt.Printf("Ingested '%s': %d documents, %d chunks\n", path, report.Documents, report.Chunks)
		}
		if hasError {
			app.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
