package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand creates the parley command. Running it without a
// subcommand starts the relay.
func newRootCommand() *cobra.Command {
	serve := newServeCommand()

	cmd := &cobra.Command{
		Use:           "parley",
		Short:         "Parley - real-time presence and chat relay",
		Long:          "A WebSocket relay that tracks who is online and broadcasts persisted chat messages.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(newHistoryCommand())
	return cmd
}
