package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPendingCommand constructs the `pending` command group. Without
// --client the subcommands span every client.
func NewPendingCommand(baseURL BaseURLFunc) *cobra.Command {
	pendingCmd := &cobra.Command{Use: "pending", Short: "Inspect and cancel pending requests"}
	pendingCmd.PersistentFlags().String("client", "", "Client id (empty for all clients)")
	pendingCmd.PersistentFlags().String("prefix", "", "Request id prefix")

	pendingCmd.AddCommand(
		&cobra.Command{
			Use:   "count",
			Short: "Count pending requests",
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, prefix := scopeFlags(cmd)
				n, err := getTransport(baseURL).Count(cmd.Context(), client, prefix)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List pending requests in submission order",
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, prefix := scopeFlags(cmd)
				refs, err := getTransport(baseURL).List(cmd.Context(), client, prefix)
				if err != nil {
					return err
				}
				return printJSON(cmd, refs)
			},
		},
		&cobra.Command{
			Use:   "cancel",
			Short: "Cancel pending requests",
			RunE: func(cmd *cobra.Command, _ []string) error {
				client, prefix := scopeFlags(cmd)
				n, err := getTransport(baseURL).Cancel(cmd.Context(), client, prefix)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cancelled:", n)
				return nil
			},
		},
	)
	return pendingCmd
}

func scopeFlags(cmd *cobra.Command) (client, prefix string) {
	client, _ = cmd.Flags().GetString("client")
	prefix, _ = cmd.Flags().GetString("prefix")
	return client, prefix
}

// NewCompletedCommand constructs the `completed` command.
func NewCompletedCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completed",
		Short: "List journaled outcomes of a client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, prefix := scopeFlags(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			if client == "" {
				return fmt.Errorf("--client is required")
			}
			entries, err := getTransport(baseURL).Completed(cmd.Context(), client, prefix, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().String("client", "", "Client id")
	cmd.Flags().String("prefix", "", "Request id prefix")
	cmd.Flags().Int("limit", 0, "Maximum entries (server default when 0)")
	return cmd
}
