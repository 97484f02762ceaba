package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	transports "github.com/appirio-tech/arena-farm-client/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// AddrFromEnv returns the controller URL from FARM_ADDR or a default.
func AddrFromEnv() string {
	if v := os.Getenv("FARM_ADDR"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

// GRPCAddrFromEnv returns the controller gRPC address from FARM_GRPC_ADDR
// or a default.
func GRPCAddrFromEnv() string {
	if v := os.Getenv("FARM_GRPC_ADDR"); v != "" {
		return v
	}
	return "127.0.0.1:9090"
}

// getTransport selects gRPC when FARM_TRANSPORT=grpc and HTTP otherwise.
func getTransport(baseURL BaseURLFunc) transports.FarmTransport {
	if strings.EqualFold(os.Getenv("FARM_TRANSPORT"), "grpc") {
		addr := GRPCAddrFromEnv()
		return transports.NewGRPCTransport(func(context.Context) (*grpc.ClientConn, error) {
			return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		})
	}
	return transports.NewHTTPTransport(baseURL, nil)
}

// jsonArg decodes s as JSON when it parses and keeps it as a string
// otherwise. Empty yields nil.
func jsonArg(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// parseAttrs turns repeated key=value flags into processor attributes.
// Values are JSON-decoded when possible, so gpu=true is a bool.
func parseAttrs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid attribute %q; expected key=value", p)
		}
		out[k] = jsonArg(v)
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	return writeJSON(cmd.OutOrStdout(), v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
