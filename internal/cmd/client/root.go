package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command holding the client commands.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "dispatch",
		Short: "dispatch client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers publish, subscribe, unsubscribe, stats and journal
// on parent.
func AddCommands(parent *cobra.Command, baseURL BaseURLFunc) {
	parent.AddCommand(
		newPublishCommand(),
		newSubscribeCommand(),
		newUnsubscribeCommand(),
		newStatsCommand(),
		newJournalCommand(baseURL),
	)
}
