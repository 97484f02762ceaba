package scheduler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// Pool runs in-process processors against a Scheduler. Each processor takes
// one assignment at a time, so a long execution only occupies its own slot.
type Pool struct {
	s      *Scheduler
	exec   Executor
	procs  []Processor
	logger log.Logger
}

// NewPool builds a pool of the given processors.
func NewPool(s *Scheduler, exec Executor, procs []Processor, logger log.Logger) *Pool {
	if logger == nil {
		logger = s.logger
	}
	return &Pool{s: s, exec: exec, procs: procs, logger: logger.With(log.Component("pool"))}
}

// Size returns the number of processors.
func (p *Pool) Size() int { return len(p.procs) }

// Run blocks until ctx is done or the scheduler closes.
func (p *Pool) Run(ctx context.Context) error {
	if len(p.procs) == 0 {
		<-ctx.Done()
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, proc := range p.procs {
		proc := proc
		g.Go(func() error { return p.loop(ctx, proc) })
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, proc Processor) error {
	p.logger.Info("processor started", log.Str("processor", proc.ID))
	for {
		a, err := p.s.Next(ctx, proc)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		value, execErr := p.run(ctx, a, proc)
		if err := p.s.Complete(a.Token, invocation.Result{Value: value, Err: execErr}); err != nil {
			if errors.Is(err, invocation.ErrUnknownInvocation) && p.s.closed.Load() {
				return nil
			}
			return fmt.Errorf("processor %s: %w", proc.ID, err)
		}
	}
}

// run executes one assignment, turning a panic into an error result.
func (p *Pool) run(ctx context.Context, a *Assignment, proc Processor) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("executor panic", log.Str("key", a.Key), log.F("panic", r))
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return p.exec.Execute(ctx, a.Payload, proc)
}
