package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewClientsCommand constructs the `clients` command group.
func NewClientsCommand(baseURL BaseURLFunc) *cobra.Command {
	clientsCmd := &cobra.Command{Use: "clients", Short: "Client settings"}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show a client's priority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")
			if client == "" {
				return fmt.Errorf("--client is required")
			}
			c, err := getTransport(baseURL).GetClient(cmd.Context(), client)
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
	getCmd.Flags().String("client", "", "Client id")

	setCmd := &cobra.Command{
		Use:   "set-priority",
		Short: "Set a client's priority class (0 is highest)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")
			reset, _ := cmd.Flags().GetBool("reset")
			if client == "" {
				return fmt.Errorf("--client is required")
			}
			var prio *int
			if !reset {
				if !cmd.Flags().Changed("priority") {
					return fmt.Errorf("--priority or --reset is required")
				}
				p, _ := cmd.Flags().GetInt("priority")
				prio = &p
			}
			c, err := getTransport(baseURL).SetPriority(cmd.Context(), client, prio)
			if err != nil {
				return err
			}
			return printJSON(cmd, c)
		},
	}
	setCmd.Flags().String("client", "", "Client id")
	setCmd.Flags().Int("priority", 0, "Priority class")
	setCmd.Flags().Bool("reset", false, "Revert to the configured priority")

	clientsCmd.AddCommand(getCmd, setCmd)
	return clientsCmd
}

// NewStatsCommand constructs the `stats` command.
func NewStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depths and clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := getTransport(baseURL).Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
}
