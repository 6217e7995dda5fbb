package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"thread"},
	Short:   "Manage persisted conversation threads",
	Long:    `List, inspect, and remove threads kept in the configured file or redis store.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads",
	Run: func(cmd *cobra.Command, args []string) {
		store, closeStore := getStore(cmd)
		defer closeStore()

		threads, err := store.List(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing threads: %v\n", err)
			os.Exit(1)
		}

		if len(threads) == 0 {
			fmt.Println("No threads found.")
			return
		}

		fmt.Println("Threads:")
		for _, id := range threads {
			fmt.Println("- " + id)
		}
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Print the last checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		threadID := args[0]
		store, closeStore := getStore(cmd)
		defer closeStore()

		state, err := store.Load(cmd.Context(), threadID)
		if err != nil {
			fmt.Printf("Error loading thread '%s': %v\n", threadID, err)
			os.Exit(1)
		}

		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling state: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(string(data))
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm [thread-id]...",
	Short: "Remove one or more threads",
	Run: func(cmd *cobra.Command, args []string) {
		store, closeStore := getStore(cmd)
		defer closeStore()

		all, _ := cmd.Flags().GetBool("all")
		if all {
			ids, err := store.List(cmd.Context())
			if err != nil {
				fmt.Printf("Error listing threads: %v\n", err)
				os.Exit(1)
			}
			args = ids
		} else if len(args) == 0 {
			fmt.Println("Error: pass at least one thread id or --all")
			os.Exit(1)
		}

		hasError := false
		for _, threadID := range args {
			if err := store.Delete(cmd.Context(), threadID); err != nil {
				fmt.Printf("Error removing '%s': %v\n", threadID, err)
				hasError = true
			} else {
				fmt.Printf("Removed thread '%s'\n", threadID)
			}
		}

		if hasError {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionRmCmd.Flags().Bool("all", false, "Remove every thread")
}

// getStore opens the configured checkpoint store without a model provider.
func getStore(cmd *cobra.Command) (ports.CheckpointStore, func()) {
	cfg, logger := loadConfig(cmd)
	if cfg.Store.Kind == "memory" {
		logger.Warn("Store is in memory; set store.kind to file or redis to manage threads")
	}
	storage, err := cli.NewStorage(cfg)
	if err != nil {
		fmt.Printf("Error opening store: %v\n", err)
		os.Exit(1)
	}
	return storage.Store, func() { _ = storage.Close() }
}
