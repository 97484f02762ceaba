package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the farm client.
// It registers every client command group.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "farm",
		Short: "Farm client commands",
	}
	AddCommands(root, baseURL)
	return root
}

// AddCommands registers the client command groups on root.
func AddCommands(root *cobra.Command, baseURL BaseURLFunc) {
	root.AddCommand(
		NewInvokeCommand(baseURL),
		NewPendingCommand(baseURL),
		NewCompletedCommand(baseURL),
		NewClientsCommand(baseURL),
		NewProcessorCommand(baseURL),
		NewStatsCommand(baseURL),
	)
}
