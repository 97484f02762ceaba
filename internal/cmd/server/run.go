package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/appirio-tech/arena-farm-client/internal/config"
	"github.com/appirio-tech/arena-farm-client/internal/runtime"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
	grpcserver "github.com/appirio-tech/arena-farm-client/internal/server/grpc"
	httpserver "github.com/appirio-tech/arena-farm-client/internal/server/http"
	logpkg "github.com/appirio-tech/arena-farm-client/pkg/log"
)

// Options for Run.
type Options struct {
	Config cfgpkg.Config
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Executor runs work on local processors. Defaults to runtime.EchoExecutor.
	Executor scheduler.Executor
	// Ready, when set, receives the HTTP server once it is built.
	Ready func(*httpserver.Server)
	// ReadyGRPC, when set, receives the gRPC server once it is built.
	ReadyGRPC func(*grpcserver.Server)
}

// Run starts the runtime, the HTTP gateway and the optional gRPC service,
// and blocks until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" && !cfg.InMemory {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	procLogger := opts.Logger
	if procLogger == nil {
		var err error
		procLogger, err = logpkg.ApplyConfig(cfg.Log.Logger())
		if err != nil {
			lvl := logpkg.InfoLevel
			if l, e := logpkg.ParseLevel(cfg.Log.Level); e == nil {
				lvl = l
			}
			procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
		}
		// Pebble logs through the standard library logger.
		logpkg.RedirectStdLog(procLogger)
	}

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: procLogger, Executor: opts.Executor})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting farm controller",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Bool("in_memory", cfg.InMemory),
		logpkg.Int("lanes", cfg.Scheduler.Lanes),
		logpkg.Int("local_processors", rt.Pool().Size()),
		logpkg.Bool("journal", cfg.Journal.Enabled),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	hsrv := httpserver.New(rt, procLogger)
	if opts.Ready != nil {
		opts.Ready(hsrv)
	}

	var gsrv *grpcserver.Server
	if cfg.GRPCAddr != "" {
		gsrv = grpcserver.New(rt, procLogger)
		if opts.ReadyGRPC != nil {
			opts.ReadyGRPC(gsrv)
		}
	}

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return hsrv.ListenAndServe(gctx, cfg.HTTPAddr) })
	if gsrv != nil {
		g.Go(func() error { return gsrv.ListenAndServe(gctx, cfg.GRPCAddr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		// Release long polls and work streams before the servers drain.
		return rt.Scheduler().Close()
	})
	err = g.Wait()
	hsrv.Close()
	if gsrv != nil {
		gsrv.Close()
	}
	procLogger.Info("farm controller stopped")
	return err
}
