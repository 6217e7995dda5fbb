package main

import (
	"fmt"
	"os"

	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the agent graph visualization",
	Long: `Outputs a Mermaid diagram of the agent graph. With --thread, the route
and nodes taken by that thread's last turn are highlighted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _ := loadConfig(cmd)

		r, err := cli.Inspector(cfg)
		if err != nil {
			fmt.Printf("Error initializing relay: %v\n", err)
			os.Exit(1)
		}

		var overlay *graph.Overlay
		if threadID, _ := cmd.Flags().GetString("thread"); threadID != "" {
			storage, err := cli.NewStorage(cfg)
			if err != nil {
				fmt.Printf("Error opening store: %v\n", err)
				os.Exit(1)
			}
			defer storage.Close()

			state, err := storage.Store.Load(cmd.Context(), threadID)
			if err != nil {
				fmt.Printf("Error loading thread '%s': %v\n", threadID, err)
				os.Exit(1)
			}
			overlay = graph.OverlayFromState(state)
		}

		fmt.Print(graph.GenerateMermaid(r.Inspect(), overlay))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("thread", "", "Highlight the last turn of this thread")
}
