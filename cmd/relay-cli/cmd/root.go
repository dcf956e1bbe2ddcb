package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the relay-cli command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "relay-cli",
		Short: "Chat relay CLI tool",
		Long: `relay-cli runs and administers the chat relay.

Available commands:
  serve     Run the relay server
  token     Mint a development credential
  rooms     Create and list rooms through the REST API
  topics    List the event topics published on the internal bus
  version   Print the version

Use "relay-cli [command] --help" for more information about a specific command.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newTokenCmd(),
		newRoomsCmd(),
		newTopicsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute executes the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
