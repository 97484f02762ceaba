package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	transports "github.com/appirio-tech/arena-farm-client/internal/cmd/client/transports"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
	logpkg "github.com/appirio-tech/arena-farm-client/pkg/log"
)

// RemoteProcessor polls a controller for work, runs it and reports the
// result.
type RemoteProcessor struct {
	Transport  transports.FarmTransport
	ID         string
	Attributes map[string]any
	Wait       time.Duration
	Executor   scheduler.Executor
	Logger     logpkg.Logger
}

// Run processes assignments until ctx is done or limit assignments were
// handled; limit <= 0 means no limit. It returns the number handled.
func (p *RemoteProcessor) Run(ctx context.Context, limit int) (int, error) {
	logger := p.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	logger = logger.With(logpkg.Component("processor"), logpkg.Str("processor", p.ID))
	proc := scheduler.Processor{ID: p.ID, Attributes: p.Attributes}

	if st, ok := p.Transport.(transports.SessionTransport); ok {
		return p.runSession(ctx, st, limit, logger, proc)
	}

	handled := 0
	for limit <= 0 || handled < limit {
		a, err := p.Transport.Poll(ctx, p.ID, p.Attributes, p.Wait)
		if err != nil {
			if ctx.Err() != nil {
				return handled, nil
			}
			return handled, fmt.Errorf("poll: %w", err)
		}
		if a == nil {
			continue
		}
		value, execErr := p.execute(ctx, a, proc)
		msg := ""
		if execErr != nil {
			msg = execErr.Error()
			logger.Warn("execution failed", logpkg.Str("key", a.Key), logpkg.Err(execErr))
		}
		if err := p.Transport.Complete(ctx, p.ID, a.Token, value, msg); err != nil {
			logger.Error("completion rejected", logpkg.Str("key", a.Key), logpkg.Err(err))
		} else {
			logger.Debug("completed", logpkg.Str("key", a.Key))
		}
		handled++
	}
	return handled, nil
}

// runSession is Run over a Work stream. Closing the session hands any
// assignment not yet completed back to the controller.
func (p *RemoteProcessor) runSession(ctx context.Context, st transports.SessionTransport, limit int, logger logpkg.Logger, proc scheduler.Processor) (int, error) {
	ws, err := st.OpenWork(ctx, p.ID, p.Attributes)
	if err != nil {
		return 0, fmt.Errorf("open work stream: %w", err)
	}
	defer func() { _ = ws.Close() }()

	handled := 0
	for limit <= 0 || handled < limit {
		a, err := ws.Next()
		if err != nil {
			if ctx.Err() != nil {
				return handled, nil
			}
			return handled, fmt.Errorf("next: %w", err)
		}
		value, execErr := p.execute(ctx, a, proc)
		msg := ""
		if execErr != nil {
			msg = execErr.Error()
			logger.Warn("execution failed", logpkg.Str("key", a.Key), logpkg.Err(execErr))
		}
		if err := ws.Complete(a.Token, value, msg); err != nil {
			if ctx.Err() != nil {
				return handled, nil
			}
			logger.Error("completion rejected", logpkg.Str("key", a.Key), logpkg.Err(err))
		} else {
			logger.Debug("completed", logpkg.Str("key", a.Key))
		}
		handled++
	}
	return handled, nil
}

func (p *RemoteProcessor) execute(ctx context.Context, a *transports.Assignment, proc scheduler.Processor) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return p.Executor.Execute(ctx, a.Payload, proc)
}

// commandExecutor runs argv with the JSON payload on stdin and returns
// its trimmed stdout.
func commandExecutor(argv []string) scheduler.Executor {
	return scheduler.ExecutorFunc(func(ctx context.Context, payload any, _ scheduler.Processor) (any, error) {
		in, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		var stdout, stderr bytes.Buffer
		c := exec.CommandContext(ctx, argv[0], argv[1:]...)
		c.Stdin = bytes.NewReader(in)
		c.Stdout = &stdout
		c.Stderr = &stderr
		if err := c.Run(); err != nil {
			if s := strings.TrimSpace(stderr.String()); s != "" {
				return nil, errors.New(s)
			}
			return nil, err
		}
		return strings.TrimSpace(stdout.String()), nil
	})
}

var echoExecutor = scheduler.ExecutorFunc(func(_ context.Context, payload any, _ scheduler.Processor) (any, error) {
	return payload, nil
})

// NewProcessorCommand constructs the `processor` command group.
func NewProcessorCommand(baseURL BaseURLFunc) *cobra.Command {
	procCmd := &cobra.Command{Use: "processor", Short: "Run a remote processor"}
	runCmd := &cobra.Command{
		Use:   "run [-- command args...]",
		Short: "Poll for work and execute it",
		Long: "Poll the controller for assignments. With a command after --, each payload is\n" +
			"written to its stdin as JSON and its stdout becomes the result; otherwise the\n" +
			"payload is echoed back.",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			rawAttrs, _ := cmd.Flags().GetStringArray("attr")
			wait, _ := cmd.Flags().GetDuration("wait")
			limit, _ := cmd.Flags().GetInt("max")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			attrs, err := parseAttrs(rawAttrs)
			if err != nil {
				return err
			}
			executor := scheduler.Executor(echoExecutor)
			if len(args) > 0 {
				executor = commandExecutor(args)
			}
			logger := logpkg.NewLogger(
				logpkg.WithLevel(logpkg.InfoLevel),
				logpkg.WithFormatter(&logpkg.TextFormatter{}),
				logpkg.WithOutput(logpkg.NewWriterOutput(cmd.ErrOrStderr())),
			)
			rp := &RemoteProcessor{
				Transport:  getTransport(baseURL),
				ID:         id,
				Attributes: attrs,
				Wait:       wait,
				Executor:   executor,
				Logger:     logger,
			}
			n, err := rp.Run(cmd.Context(), limit)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "handled:", n)
			return err
		},
	}
	runCmd.Flags().String("id", "", "Processor id")
	runCmd.Flags().StringArray("attr", nil, "Processor attribute key=value (repeatable)")
	runCmd.Flags().Duration("wait", 20*time.Second, "Long-poll wait per request")
	runCmd.Flags().Int("max", 0, "Stop after this many assignments (0 = run until interrupted)")
	procCmd.AddCommand(runCmd)
	return procCmd
}
