package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/appirio-tech/arena-farm-client/internal/dispatch"
	"github.com/appirio-tech/arena-farm-client/internal/eligibility"
	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/pending"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// ErrClosed is returned by operations on a closed Scheduler and resolves
// requests still running when it closes.
var ErrClosed = errors.New("scheduler closed")

type clientState struct {
	priority    int
	hasPriority bool
	handler     invocation.Handler
}

// Scheduler is the invocation scheduler. Safe for concurrent use.
type Scheduler struct {
	opts   Options
	logger log.Logger

	idx   *pending.Index
	queue *dispatch.Queue
	wake  *notifier
	seq   atomic.Uint64

	clientsMu sync.RWMutex
	clients   map[string]*clientState

	inflightMu sync.Mutex
	inflight   map[string]*invocation.Pending

	closed atomic.Bool
}

// New builds a Scheduler.
func New(opts Options) *Scheduler {
	opts.normalize()
	return &Scheduler{
		opts:     opts,
		logger:   opts.Logger.With(log.Component("scheduler")),
		idx:      pending.NewIndex(),
		queue:    dispatch.NewQueue(opts.Lanes),
		wake:     newNotifier(),
		clients:  make(map[string]*clientState),
		inflight: make(map[string]*invocation.Pending),
	}
}

// Configure sets a client's priority class and async response handler.
// Fields left zero keep their current value. A new priority applies to
// later submissions only.
func (s *Scheduler) Configure(client string, co ClientOptions) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	cs, ok := s.clients[client]
	if !ok {
		cs = &clientState{}
		s.clients[client] = cs
	}
	if co.Priority != nil {
		cs.priority = *co.Priority
		cs.hasPriority = true
	}
	if co.Handler != nil {
		cs.handler = co.Handler
	}
}

// ResetPriority drops a priority set by Configure so the client falls back
// to Options.Priorities or DefaultPriority.
func (s *Scheduler) ResetPriority(client string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if cs, ok := s.clients[client]; ok {
		cs.priority, cs.hasPriority = 0, false
	}
}

// Priority returns the lane a client's next submission will use.
func (s *Scheduler) Priority(client string) int {
	s.clientsMu.RLock()
	cs, ok := s.clients[client]
	s.clientsMu.RUnlock()
	if ok && cs.hasPriority {
		return s.queue.Clamp(cs.priority)
	}
	if p, ok := s.opts.Priorities[client]; ok {
		return s.queue.Clamp(p)
	}
	return s.queue.Clamp(s.opts.DefaultPriority)
}

func (s *Scheduler) handler(client string) invocation.Handler {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if cs, ok := s.clients[client]; ok && cs.handler != nil {
		return cs.handler
	}
	return s.opts.DefaultHandler
}

// Schedule submits req for client. The response is delivered to the
// client's Handler once the request completes.
func (s *Scheduler) Schedule(client string, req invocation.Request) error {
	p, err := s.submit(client, req, false)
	if err != nil {
		return err
	}
	p.Future().OnResolve(func(resp invocation.Response, err error) {
		if err != nil {
			// Cancelled or shut down; async handlers only see executions.
			return
		}
		h := s.handler(client)
		if h == nil {
			s.logger.Warn("no handler configured, response dropped",
				log.Str("client", client), log.Str("request", resp.RequestID))
			return
		}
		h.HandleResult(resp)
	})
	return nil
}

// ScheduleSync submits req for client and returns a handle to wait on. The
// client's Handler is not invoked for this request.
func (s *Scheduler) ScheduleSync(client string, req invocation.Request) (*Handle, error) {
	p, err := s.submit(client, req, true)
	if err != nil {
		return nil, err
	}
	return &Handle{p: p}, nil
}

// Invoke is ScheduleSync followed by a wait of at most timeout.
func (s *Scheduler) Invoke(client string, req invocation.Request, timeout time.Duration) (invocation.Response, error) {
	h, err := s.ScheduleSync(client, req)
	if err != nil {
		return invocation.Response{}, err
	}
	return h.Get(timeout)
}

func (s *Scheduler) submit(client string, req invocation.Request, sync bool) (*invocation.Pending, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	key, err := pending.Key(client, req.ID)
	if err != nil {
		return nil, err
	}
	p := invocation.NewPending(key, client, req, s.Priority(client), s.seq.Add(1), sync)

	ns := s.idx.Namespace(client)
	ns.Lock()
	err = ns.InsertLocked(p)
	if err == nil {
		s.queue.Enqueue(p)
	}
	ns.Unlock()

	if err != nil {
		s.opts.Observer.ObserveReject(client, err)
		s.logger.Warn("submission rejected", log.Str("client", client), log.Str("request", req.ID), log.Err(err))
		return nil, err
	}
	s.opts.Observer.ObserveSubmit(client, p.Priority)
	s.observeDepth()
	s.logger.Debug("submitted",
		log.Str("key", key), log.Int("lane", p.Priority), log.Bool("sync", sync))
	s.wake.broadcast()
	return p, nil
}

// ProcessorIdle offers proc one unit of work: the oldest request of the
// highest non-empty lane whose requirements accept proc. It returns false
// when nothing fits; the processor stays idle until the next call.
func (s *Scheduler) ProcessorIdle(proc Processor) (*Assignment, bool) {
	if s.closed.Load() {
		return nil, false
	}
	attrs := make(invocation.Attributes, len(proc.Attributes)+1)
	for k, v := range proc.Attributes {
		attrs[k] = v
	}
	attrs[eligibility.ProcessorIDAttr] = proc.ID

	p := s.queue.DequeueFor(attrs)
	if p == nil {
		return nil, false
	}
	s.idx.Remove(p)

	now := s.opts.Now()
	p.MarkDispatched(proc.ID, now)
	token := uuid.NewString()
	if !s.track(token, p) {
		return nil, false
	}

	s.opts.Observer.ObserveDispatch(p.Priority, now.Sub(p.SubmittedAt))
	s.observeDepth()
	s.logger.Debug("dispatched", log.Str("key", p.Key), log.Str("processor", proc.ID), log.Str("token", token))
	return &Assignment{
		Token:       token,
		Key:         p.Key,
		ClientID:    p.Owner,
		RequestID:   p.Request.ID,
		Attachment:  p.Request.Attachment,
		Payload:     p.Request.Invocation,
		ProcessorID: proc.ID,
	}, true
}

// Next blocks until proc receives an assignment or ctx is done.
func (s *Scheduler) Next(ctx context.Context, proc Processor) (*Assignment, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wake := s.wake.wait()
		if a, ok := s.ProcessorIdle(proc); ok {
			return a, nil
		}
		if s.closed.Load() {
			return nil, ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

// track registers a dispatched request under token. A Close that swapped
// the in-flight set out already ran; p is failed with ErrClosed instead.
func (s *Scheduler) track(token string, p *invocation.Pending) bool {
	s.inflightMu.Lock()
	if s.closed.Load() {
		s.inflightMu.Unlock()
		s.abandon(p)
		return false
	}
	s.inflight[token] = p
	s.inflightMu.Unlock()
	return true
}

// abandon fails a dispatched request that will never complete.
func (s *Scheduler) abandon(p *invocation.Pending) {
	_ = p.Future().Resolve(invocation.Response{
		ClientID:   p.Owner,
		RequestID:  p.Request.ID,
		Attachment: p.Request.Attachment,
		Result:     invocation.Result{Err: ErrClosed},
	}, ErrClosed)
}

// Release hands an undelivered assignment back. The request returns to
// PENDING at the head of its lane, so it is the next one its lane offers.
// If the client resubmitted the same id in the meantime, the released copy
// is cancelled.
func (s *Scheduler) Release(token string) error {
	s.inflightMu.Lock()
	p, ok := s.inflight[token]
	delete(s.inflight, token)
	s.inflightMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: dispatch %s", invocation.ErrUnknownInvocation, token)
	}
	p.MarkDispatched("", time.Time{})

	ns := s.idx.Namespace(p.Owner)
	ns.Lock()
	if !p.Transition(invocation.StateDispatched, invocation.StatePending) {
		ns.Unlock()
		return fmt.Errorf("%w: %s is %s", invocation.ErrAlreadyResolved, p.Key, p.State())
	}
	var err error
	if s.closed.Load() {
		err = ErrClosed
	} else if err = ns.InsertLocked(p); err == nil {
		s.queue.EnqueueFront(p)
	}
	ns.Unlock()

	switch {
	case errors.Is(err, ErrClosed):
		p.Transition(invocation.StatePending, invocation.StateCancelled)
		s.abandon(p)
	case err != nil:
		p.Transition(invocation.StatePending, invocation.StateCancelled)
		now := s.opts.Now()
		s.record(invocation.OutcomeOf(p, invocation.Result{Err: invocation.ErrCancelled}, now))
		_ = p.Future().Resolve(invocation.Response{
			ClientID:    p.Owner,
			RequestID:   p.Request.ID,
			Attachment:  p.Request.Attachment,
			Result:      invocation.Result{Err: invocation.ErrCancelled},
			CompletedAt: now,
		}, invocation.ErrCancelled)
	default:
		s.wake.broadcast()
	}
	s.observeDepth()
	if err != nil {
		s.logger.Warn("released request dropped", log.Str("key", p.Key), log.Err(err))
		return nil
	}
	s.logger.Debug("released", log.Str("key", p.Key), log.Str("token", token))
	return nil
}

// Wakeup returns a channel closed on the next submission or shutdown.
func (s *Scheduler) Wakeup() <-chan struct{} { return s.wake.wait() }

// Complete resolves the dispatch identified by token with result and
// delivers the response exactly once.
func (s *Scheduler) Complete(token string, result invocation.Result) error {
	s.inflightMu.Lock()
	p, ok := s.inflight[token]
	delete(s.inflight, token)
	s.inflightMu.Unlock()
	if !ok {
		err := fmt.Errorf("%w: dispatch %s", invocation.ErrUnknownInvocation, token)
		s.logger.Error("completion for unknown dispatch", log.Str("token", token), log.Err(err))
		return err
	}
	if !p.Transition(invocation.StateDispatched, invocation.StateCompleted) {
		err := fmt.Errorf("%w: %s is %s", invocation.ErrAlreadyResolved, p.Key, p.State())
		s.logger.Error("completion for request not in flight", log.Str("key", p.Key), log.Err(err))
		return err
	}

	now := s.opts.Now()
	resp := invocation.Response{
		ClientID:    p.Owner,
		RequestID:   p.Request.ID,
		Attachment:  p.Request.Attachment,
		Result:      result,
		ProcessorID: p.ProcessorID(),
		CompletedAt: now,
	}
	s.record(invocation.OutcomeOf(p, result, now))
	if err := p.Future().Resolve(resp, nil); err != nil {
		s.logger.Error("duplicate completion", log.Str("key", p.Key), log.Err(err))
		return err
	}
	s.opts.Observer.ObserveComplete(result.Failed(), now.Sub(p.DispatchedAt()))
	s.observeDepth()
	s.logger.Debug("completed", log.Str("key", p.Key), log.Bool("failed", result.Failed()))
	return nil
}

// Cancel cancels the client's pending requests whose id starts with
// prefix and returns how many were cancelled. An empty client spans all
// clients. Requests already dispatched are not affected.
func (s *Scheduler) Cancel(client, prefix string) int {
	won := s.idx.Cancel(client, prefix, func(p *invocation.Pending) {
		s.queue.Remove(p)
	})
	if len(won) == 0 {
		return 0
	}
	now := s.opts.Now()
	for _, p := range won {
		s.record(invocation.OutcomeOf(p, invocation.Result{Err: invocation.ErrCancelled}, now))
		_ = p.Future().Resolve(invocation.Response{
			ClientID:    p.Owner,
			RequestID:   p.Request.ID,
			Attachment:  p.Request.Attachment,
			Result:      invocation.Result{Err: invocation.ErrCancelled},
			CompletedAt: now,
		}, invocation.ErrCancelled)
	}
	s.opts.Observer.ObserveCancel(len(won))
	s.observeDepth()
	s.logger.Debug("cancelled", log.Str("client", client), log.Str("prefix", prefix), log.Int("count", len(won)))
	return len(won)
}

// Count returns how many of the client's requests with the id prefix are
// still pending. An empty client spans all clients.
func (s *Scheduler) Count(client, prefix string) int {
	return s.idx.Count(client, prefix)
}

// List returns the client's pending requests with the id prefix in
// submission order. An empty client spans all clients, grouped by client.
func (s *Scheduler) List(client, prefix string) []invocation.Ref {
	ps := s.idx.List(client, prefix)
	out := make([]invocation.Ref, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Ref())
	}
	return out
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Pending  int      `json:"pending"`
	Lanes    []int    `json:"lanes"`
	Inflight int      `json:"inflight"`
	Clients  []string `json:"clients"`
}

// Stats returns current queue depths and client list.
func (s *Scheduler) Stats() Stats {
	s.inflightMu.Lock()
	inflight := len(s.inflight)
	s.inflightMu.Unlock()
	return Stats{
		Pending:  s.idx.Count("", ""),
		Lanes:    s.queue.LaneLens(),
		Inflight: inflight,
		Clients:  s.idx.Owners(),
	}
}

// Close stops accepting work, cancels everything pending and fails
// requests still running with ErrClosed. Blocked Next callers return.
func (s *Scheduler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	n := s.Cancel("", "")
	s.queue.Drain()

	s.inflightMu.Lock()
	running := s.inflight
	s.inflight = make(map[string]*invocation.Pending)
	s.inflightMu.Unlock()
	for _, p := range running {
		s.abandon(p)
	}
	s.wake.broadcast()
	s.logger.Info("scheduler closed", log.Int("cancelled", n), log.Int("abandoned", len(running)))
	return nil
}

func (s *Scheduler) record(o invocation.Outcome) {
	if s.opts.Recorder == nil {
		return
	}
	if err := s.opts.Recorder.Record(o); err != nil {
		s.logger.Warn("journal write failed", log.Str("key", o.Key), log.Err(err))
	}
}

func (s *Scheduler) observeDepth() {
	s.inflightMu.Lock()
	n := len(s.inflight)
	s.inflightMu.Unlock()
	s.opts.Observer.ObserveDepth(s.queue.LaneLens(), n)
}

// Handle is the wait handle of a synchronous submission.
type Handle struct {
	p *invocation.Pending
}

// Key returns the composite key of the request.
func (h *Handle) Key() string { return h.p.Key }

// RequestID returns the caller-supplied id.
func (h *Handle) RequestID() string { return h.p.Request.ID }

// Done is closed when the request resolves.
func (h *Handle) Done() <-chan struct{} { return h.p.Future().Done() }

// Get waits at most timeout for the response. On timeout it returns
// invocation.ErrTimedOut and the request carries on; Cancel it explicitly if
// it is no longer wanted.
func (h *Handle) Get(timeout time.Duration) (invocation.Response, error) {
	return h.p.Future().Get(timeout)
}

// Wait is Get bounded by ctx.
func (h *Handle) Wait(ctx context.Context) (invocation.Response, error) {
	return h.p.Future().Wait(ctx)
}
