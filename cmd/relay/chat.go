package main

import (
	"fmt"
	"os"

	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatCmd = &cobra.Command{
	Use:   "chat [thread-id]",
	Short: "Chat with relay in the terminal",
	Long: `Starts an interactive conversation. Pass a thread id to resume a
conversation kept in a file or redis store. Type /exit to leave.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()
		cmd.SetContext(sc)

		_, app := buildApp(cmd)
		defer app.Close()

		quiet, _ := cmd.Flags().GetBool("quiet")
		if !quiet && term.IsTerminal(int(os.Stdout.Fd())) {
			tui.PrintBanner(os.Stdout)
		}

		opts := cli.ChatOptions{Quiet: quiet}
		if len(args) > 0 {
			opts.ThreadID = args[0]
		}
		if err := cli.HandleExecutionError(cli.Chat(sc, app.Relay, opts)); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if sc.Signal() == os.Interrupt && !quiet {
			fmt.Println("[CTRL+C]")
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolP("quiet", "q", false, "Print answers only")

	rootCmd.Run = chatCmd.Run
	rootCmd.Args = chatCmd.Args
}
