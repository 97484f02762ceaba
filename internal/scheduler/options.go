package scheduler

import (
	"time"

	"github.com/appirio-tech/arena-farm-client/internal/dispatch"
	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// Options configure a Scheduler.
type Options struct {
	// Lanes is the number of priority classes. Defaults to dispatch.DefaultLanes.
	Lanes int
	// DefaultPriority applies to clients with no configured priority.
	DefaultPriority int
	// Priorities maps client ids to priority classes; 0 is the highest.
	Priorities map[string]int

	// DefaultHandler receives async responses of clients without a
	// Handler of their own.
	DefaultHandler invocation.Handler

	Logger   log.Logger
	Observer Observer
	Recorder Recorder
	Now      func() time.Time
}

func (o *Options) normalize() {
	if o.Lanes <= 0 {
		o.Lanes = dispatch.DefaultLanes
	}
	if o.Logger == nil {
		o.Logger = log.NewLogger(log.WithLevel(log.InfoLevel))
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// ClientOptions are per-client settings applied by Configure.
type ClientOptions struct {
	// Priority overrides the configured class when non-nil.
	Priority *int
	// Handler receives responses to asynchronous submissions.
	Handler invocation.Handler
}

// Observer is notified of scheduler events. Implemented by internal/metrics.
type Observer interface {
	ObserveSubmit(client string, lane int)
	ObserveReject(client string, err error)
	ObserveDispatch(lane int, wait time.Duration)
	ObserveComplete(failed bool, run time.Duration)
	ObserveCancel(n int)
	ObserveDepth(lanes []int, inflight int)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmit(string, int)           {}
func (nopObserver) ObserveReject(string, error)         {}
func (nopObserver) ObserveDispatch(int, time.Duration)  {}
func (nopObserver) ObserveComplete(bool, time.Duration) {}
func (nopObserver) ObserveCancel(int)                   {}
func (nopObserver) ObserveDepth([]int, int)             {}

// Recorder persists terminal outcomes. Implemented by internal/journal.
type Recorder interface {
	Record(o invocation.Outcome) error
}
