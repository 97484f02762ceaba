package runtime

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/appirio-tech/arena-farm-client/internal/config"
	"github.com/appirio-tech/arena-farm-client/internal/eligibility"
	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/journal"
	"github.com/appirio-tech/arena-farm-client/internal/metrics"
	"github.com/appirio-tech/arena-farm-client/internal/namespace"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
	pebblestore "github.com/appirio-tech/arena-farm-client/internal/storage/pebble"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	// Executor runs work on the in-process processors. Defaults to
	// EchoExecutor.
	Executor scheduler.Executor
}

// Runtime owns the store, journal, metrics, scheduler and local pool of a
// controller instance.
type Runtime struct {
	config  cfgpkg.Config
	logger  log.Logger
	db      *pebblestore.DB
	metrics *metrics.Metrics
	journal *journal.Journal
	sched   *scheduler.Scheduler
	pool    *scheduler.Pool
	reqs    *eligibility.Cache
}

// EchoExecutor returns each payload as its result.
var EchoExecutor = scheduler.ExecutorFunc(func(_ context.Context, payload any, _ scheduler.Processor) (any, error) {
	return payload, nil
})

// Open initializes storage and builds the scheduler from opts.Config.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	m := metrics.New()

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:  cfg.DataDir,
		InMemory: cfg.InMemory,
		Fsync:    pebblestore.ParseFsyncMode(cfg.Fsync),
		Metrics:  m,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rt := &Runtime{config: cfg, logger: logger.With(log.Component("runtime")), db: db, metrics: m}
	var recorder scheduler.Recorder
	if cfg.Journal.Enabled {
		rt.journal = journal.New(db, journal.Retention{MaxAge: cfg.Journal.MaxAge.D(), MaxEntries: cfg.Journal.MaxEntries})
		recorder = rt.journal
	}
	rt.sched = scheduler.New(scheduler.Options{
		Lanes:           cfg.Scheduler.Lanes,
		DefaultPriority: cfg.Scheduler.DefaultPriority,
		Priorities:      cfg.Scheduler.ClientPriorities,
		Logger:          logger,
		Observer:        m,
		Recorder:        recorder,
		DefaultHandler:  rt.deliveryLog(),
	})
	rt.reqs = eligibility.NewCache(cfg.Scheduler.RequirementCacheTTL.D(), uint64(cfg.Scheduler.RequirementCacheSize))

	if err := rt.restoreClients(); err != nil {
		_ = db.Close()
		return nil, err
	}

	exec := opts.Executor
	if exec == nil {
		exec = EchoExecutor
	}
	rt.pool = scheduler.NewPool(rt.sched, exec, localProcessors(cfg), logger)
	return rt, nil
}

// deliveryLog handles async responses of remote clients, which read them
// back from the journal.
func (r *Runtime) deliveryLog() invocation.Handler {
	return invocation.HandlerFunc(func(resp invocation.Response) {
		r.logger.Debug("async response ready",
			log.Str("client", resp.ClientID), log.Str("request", resp.RequestID),
			log.Bool("failed", resp.Result.Failed()))
	})
}

func localProcessors(cfg cfgpkg.Config) []scheduler.Processor {
	procs := make([]scheduler.Processor, 0, len(cfg.Processors)+cfg.LocalProcessors)
	for _, p := range cfg.Processors {
		procs = append(procs, scheduler.Processor{ID: p.ID, Attributes: invocation.Attributes(p.Attributes)})
	}
	for i := 0; i < cfg.LocalProcessors; i++ {
		procs = append(procs, scheduler.Processor{ID: "local-" + strconv.Itoa(i)})
	}
	return procs
}

// restoreClients applies stored client priorities to the scheduler.
func (r *Runtime) restoreClients() error {
	metas, err := namespace.List(r.db)
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}
	for _, m := range metas {
		if m.Priority != nil {
			r.sched.Configure(m.Name, scheduler.ClientOptions{Priority: m.Priority})
		}
	}
	if len(metas) > 0 {
		r.logger.Info("restored client settings", log.Int("clients", len(metas)))
	}
	return nil
}

// SetClientPriority stores and applies a client's lane. Nil reverts the
// client to the configured priority for later submissions.
func (r *Runtime) SetClientPriority(client string, priority *int) (namespace.Meta, error) {
	if priority != nil && (*priority < 0 || *priority >= r.config.Scheduler.Lanes) {
		return namespace.Meta{}, fmt.Errorf("%w: priority %d out of range [0,%d)",
			invocation.ErrInvalidArgument, *priority, r.config.Scheduler.Lanes)
	}
	m, err := namespace.SetPriority(r.db, client, priority)
	if err != nil {
		return namespace.Meta{}, err
	}
	if priority != nil {
		r.sched.Configure(client, scheduler.ClientOptions{Priority: priority})
	} else {
		r.sched.ResetPriority(client)
	}
	return m, nil
}

// NewRequest builds a request whose requirements, when given, are compiled
// through the requirement cache.
func (r *Runtime) NewRequest(id string, attachment, payload any, requirements string) (invocation.Request, error) {
	req := invocation.Request{ID: id, Attachment: attachment, Invocation: payload}
	if requirements == "" {
		return req, nil
	}
	expr, err := r.reqs.Compile(requirements)
	if err != nil {
		return invocation.Request{}, err
	}
	req.Requirements = expr
	return req, nil
}

// Client returns the stored settings of a client.
func (r *Runtime) Client(client string) (namespace.Meta, bool, error) {
	return namespace.Get(r.db, client)
}

// Run drives the local processors and journal retention until ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.reqs.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		r.reqs.Stop()
		return nil
	})
	g.Go(func() error { return r.pool.Run(ctx) })
	if r.journal != nil {
		g.Go(func() error {
			return r.journal.RunRetention(ctx, r.config.Journal.TrimInterval.D(), func(err error) {
				r.logger.Warn("journal trim failed", log.Err(err))
			})
		})
	}
	return g.Wait()
}

// Close stops the scheduler and closes storage.
func (r *Runtime) Close() error {
	var errs []error
	if r.sched != nil {
		errs = append(errs, r.sched.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth verifies the store answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Scheduler returns the invocation scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.sched }

// Journal returns the completion journal, nil when disabled.
func (r *Runtime) Journal() *journal.Journal { return r.journal }

// Metrics returns the Prometheus collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Requirements compiles and caches CEL requirements.
func (r *Runtime) Requirements() *eligibility.Cache { return r.reqs }

// Pool returns the in-process processor pool.
func (r *Runtime) Pool() *scheduler.Pool { return r.pool }

// DB exposes the underlying store.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
