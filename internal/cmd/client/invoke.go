package client

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	transports "github.com/appirio-tech/arena-farm-client/internal/cmd/client/transports"
)

// NewInvokeCommand constructs the `invoke` command.
func NewInvokeCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Submit an invocation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _ := cmd.Flags().GetString("client")
			id, _ := cmd.Flags().GetString("id")
			data, _ := cmd.Flags().GetString("data")
			attachment, _ := cmd.Flags().GetString("attachment")
			requires, _ := cmd.Flags().GetString("requires")
			sync, _ := cmd.Flags().GetBool("sync")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if client == "" || id == "" {
				return fmt.Errorf("--client and --id are required")
			}

			req := transports.SubmitRequest{
				ID:           id,
				Attachment:   jsonArg(attachment),
				Requirements: requires,
				Invocation:   jsonArg(data),
			}
			t := getTransport(baseURL)
			if !sync {
				out, err := t.Submit(cmd.Context(), client, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			}
			req.TimeoutMs = timeout.Milliseconds()
			out, err := t.Invoke(cmd.Context(), client, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().String("client", "", "Client id")
	cmd.Flags().String("id", "", "Request id")
	cmd.Flags().String("data", "", "Invocation payload (JSON or text)")
	cmd.Flags().String("attachment", "", "Opaque attachment returned with the response (JSON or text)")
	cmd.Flags().String("requires", "", "CEL requirement over processor attributes, e.g. attrs.gpu == true")
	cmd.Flags().Bool("sync", false, "Wait for the response")
	cmd.Flags().Duration("timeout", 30*time.Second, "With --sync, how long to wait")
	return cmd
}
