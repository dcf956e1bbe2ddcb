package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nfrund/chatrelay/internal/events"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newTopicsCmd() *cobra.Command {
	var (
		format    string
		publisher string
	)

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List the event topics published on the internal bus",
		Long: `List the topics the relay publishes lifecycle events on.

Examples:
  relay-cli topics                       # All topics in table format
  relay-cli topics --publisher session   # Only topics published by sessions
  relay-cli topics --format json         # Machine-readable output`,
		RunE: func(cmd *cobra.Command, args []string) error {
			topics := events.Catalog()
			if publisher != "" {
				topics = lo.Filter(topics, func(t events.Topic, _ int) bool { return t.Publisher == publisher })
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(topics)
			case "table":
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tPUBLISHER\tDESCRIPTION")
				fmt.Fprintln(w, "----\t---------\t-----------")
				for _, t := range topics {
					fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Publisher, t.Description)
				}
				return w.Flush()
			default:
				return fmt.Errorf("unknown format %q, expected table or json", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	cmd.Flags().StringVar(&publisher, "publisher", "", "only show topics from this publisher")
	return cmd
}
