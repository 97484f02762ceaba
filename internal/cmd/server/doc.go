// Package serverrun exposes the Run entrypoint used by the CLI to start the
// farm controller runtime and its HTTP gateway, handling lifecycle and
// shutdown.
//
// Example:
//
//	cfg := config.Default()
//	cfg.InMemory = true
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
