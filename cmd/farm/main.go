package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	clientcmd "github.com/appirio-tech/arena-farm-client/internal/cmd/client"
	serverrun "github.com/appirio-tech/arena-farm-client/internal/cmd/server"
	cfgpkg "github.com/appirio-tech/arena-farm-client/internal/config"
	logpkg "github.com/appirio-tech/arena-farm-client/pkg/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "farm",
		Short:        "Task farm controller and client",
		Long:         "farm runs the invocation scheduler of a processor farm and talks to it from the terminal.",
		SilenceUsage: true,
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the farm controller (HTTP API and local processors)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	f := serverStartCmd.Flags()
	f.String("config", os.Getenv("FARM_CONFIG"), "JSON config file")
	f.String("http", "", "HTTP listen address (default :8080)")
	f.String("grpc", "", "gRPC listen address (default :9090; \"off\" disables)")
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.Bool("in-memory", false, "Keep the store in memory")
	f.String("fsync", "", "Fsync mode: always|interval|never")
	f.Int("local-processors", 0, "Number of in-process echo processors")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddCommands(rootCmd, clientcmd.AddrFromEnv)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, FARM_* variables and flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("http") {
		cfg.HTTPAddr, _ = flags.GetString("http")
	}
	if flags.Changed("grpc") {
		cfg.GRPCAddr, _ = flags.GetString("grpc")
		if cfg.GRPCAddr == "off" {
			cfg.GRPCAddr = ""
		}
	}
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("in-memory") {
		cfg.InMemory, _ = flags.GetBool("in-memory")
	}
	if flags.Changed("fsync") {
		cfg.Fsync, _ = flags.GetString("fsync")
	}
	if flags.Changed("local-processors") {
		cfg.LocalProcessors, _ = flags.GetInt("local-processors")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if _, err := logpkg.ParseLevel(cfg.Log.Level); err != nil {
		return cfg, err
	}
	return cfg, nil
}
