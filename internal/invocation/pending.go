package invocation

import (
	"sync"
	"sync/atomic"
	"time"
)

// Pending is the controller-side record of a submitted request. Key and the
// immutable fields are set at creation; state moves by CAS only.
type Pending struct {
	Key         string
	Owner       string
	Request     Request
	Priority    int
	Seq         uint64
	SubmittedAt time.Time
	// Sync requests deliver only to their Future, never to a Handler.
	Sync bool

	state  atomic.Int32
	future *Future

	mu          sync.Mutex
	processorID string
	dispatched  time.Time
}

// NewPending builds a PENDING record for req.
func NewPending(key, owner string, req Request, priority int, seq uint64, sync bool) *Pending {
	return &Pending{
		Key:         key,
		Owner:       owner,
		Request:     req,
		Priority:    priority,
		Seq:         seq,
		SubmittedAt: time.Now(),
		Sync:        sync,
		future:      NewFuture(),
	}
}

// State returns the current lifecycle state.
func (p *Pending) State() State { return State(p.state.Load()) }

// Transition moves from -> to if that is a legal edge and the record is still
// in from. Exactly one concurrent caller wins.
func (p *Pending) Transition(from, to State) bool {
	if !ValidStateTransition(from, to) {
		return false
	}
	return p.state.CompareAndSwap(int32(from), int32(to))
}

// IsPending reports whether the record is still waiting for dispatch.
func (p *Pending) IsPending() bool { return p.State() == StatePending }

// Future returns the rendezvous for this request's outcome.
func (p *Pending) Future() *Future { return p.future }

// Ref returns the listing view of the request.
func (p *Pending) Ref() Ref {
	return Ref{ClientID: p.Owner, RequestID: p.Request.ID, Attachment: p.Request.Attachment}
}

// MarkDispatched records which processor took the request.
func (p *Pending) MarkDispatched(processorID string, at time.Time) {
	p.mu.Lock()
	p.processorID = processorID
	p.dispatched = at
	p.mu.Unlock()
}

// ProcessorID returns the processor set by MarkDispatched.
func (p *Pending) ProcessorID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processorID
}

// DispatchedAt returns the time set by MarkDispatched.
func (p *Pending) DispatchedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatched
}
