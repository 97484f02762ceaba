package invocation

import (
	"fmt"
	"time"
)

// Attributes describe a processor to eligibility predicates.
type Attributes map[string]any

// Predicate decides whether a processor may run a request.
type Predicate interface {
	Evaluate(attrs Attributes) bool
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(attrs Attributes) bool

// Evaluate calls f.
func (f PredicateFunc) Evaluate(attrs Attributes) bool { return f(attrs) }

// Any accepts every processor.
var Any Predicate = PredicateFunc(func(Attributes) bool { return true })

// Request is what a client submits.
type Request struct {
	// ID is unique among the owner's PENDING requests.
	ID string
	// Attachment is returned unchanged in the Response and in listings.
	Attachment any
	// Requirements selects eligible processors. Nil means any processor.
	Requirements Predicate
	// Invocation is handed to the executor untouched.
	Invocation any
}

// Validate checks the fields the scheduler relies on.
func (r Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidArgument)
	}
	return nil
}

// Eligible reports whether a processor with attrs may run the request.
func (r Request) Eligible(attrs Attributes) bool {
	if r.Requirements == nil {
		return true
	}
	return r.Requirements.Evaluate(attrs)
}

// Result is the outcome of executing an invocation.
type Result struct {
	Value any
	Err   error
}

// Failed reports whether execution raised an error.
func (r Result) Failed() bool { return r.Err != nil }

// Response is delivered exactly once per completed request.
type Response struct {
	ClientID    string
	RequestID   string
	Attachment  any
	Result      Result
	ProcessorID string
	CompletedAt time.Time
}

// Ref identifies a pending request in listings.
type Ref struct {
	ClientID   string
	RequestID  string
	Attachment any
}

// Handler receives asynchronous responses for a client. It runs on the
// completion path and must return quickly.
type Handler interface {
	HandleResult(resp Response)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(resp Response)

// HandleResult calls f.
func (f HandlerFunc) HandleResult(resp Response) { f(resp) }
