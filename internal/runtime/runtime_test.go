package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	cfgpkg "github.com/appirio-tech/arena-farm-client/internal/config"
	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

func testConfig(t *testing.T) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "always"
	return cfg
}

func quiet() log.Logger {
	return log.NewLogger(log.WithLevel(log.ErrorLevel), log.WithOutput(log.NullOutput{}))
}

func open(t *testing.T, cfg cfgpkg.Config) *Runtime {
	t.Helper()
	rt, err := Open(Options{Config: cfg, Logger: quiet()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := open(t, testConfig(t))
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Journal() == nil {
		t.Fatalf("journal should be enabled by default")
	}
	if n := rt.Pool().Size(); n != 0 {
		t.Fatalf("pool size: %d", n)
	}
}

func TestLocalPoolRunsAndJournals(t *testing.T) {
	cfg := testConfig(t)
	cfg.LocalProcessors = 2
	cfg.Processors = []cfgpkg.ProcessorConfig{{ID: "gpu-1", Attributes: map[string]any{"gpu": true}}}
	rt := open(t, cfg)
	defer rt.Close()
	if n := rt.Pool().Size(); n != 3 {
		t.Fatalf("pool size: %d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	gpu, err := rt.Requirements().Compile(`has(attrs.gpu) && attrs.gpu == true`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	resp, err := rt.Scheduler().Invoke("CL1", invocation.Request{ID: "g-1", Requirements: gpu, Invocation: "hello"}, 2*time.Second)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Result.Value != "hello" || resp.ProcessorID != "gpu-1" {
		t.Fatalf("response: %+v", resp)
	}

	entries, err := rt.Journal().List(context.Background(), "CL1", "g-", 0)
	if err != nil {
		t.Fatalf("journal list: %v", err)
	}
	if len(entries) != 1 || entries[0].State != invocation.StateCompleted {
		t.Fatalf("journal: %+v", entries)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestClientPriorityPersists(t *testing.T) {
	cfg := testConfig(t)
	rt := open(t, cfg)

	zero := 0
	if _, err := rt.SetClientPriority("CL1", &zero); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if p := rt.Scheduler().Priority("CL1"); p != 0 {
		t.Fatalf("priority: %d", p)
	}
	bad := 99
	if _, err := rt.SetClientPriority("CL1", &bad); !errors.Is(err, invocation.ErrInvalidArgument) {
		t.Fatalf("out of range priority: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt2 := open(t, cfg)
	defer rt2.Close()
	if p := rt2.Scheduler().Priority("CL1"); p != 0 {
		t.Fatalf("priority after reopen: %d", p)
	}
	if p := rt2.Scheduler().Priority("CL2"); p != cfg.Scheduler.DefaultPriority {
		t.Fatalf("unset client priority: %d", p)
	}

	if _, err := rt2.SetClientPriority("CL1", nil); err != nil {
		t.Fatalf("reset priority: %v", err)
	}
	if p := rt2.Scheduler().Priority("CL1"); p != cfg.Scheduler.DefaultPriority {
		t.Fatalf("priority after reset: %d", p)
	}
	m, ok, err := rt2.Client("CL1")
	if err != nil || !ok {
		t.Fatalf("client: ok=%v err=%v", ok, err)
	}
	if m.Priority != nil {
		t.Fatalf("stored priority after reset: %d", *m.Priority)
	}
}

func TestJournalDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.InMemory = true
	cfg.Journal.Enabled = false
	rt := open(t, cfg)
	defer rt.Close()
	if rt.Journal() != nil {
		t.Fatalf("journal should be disabled")
	}
}
