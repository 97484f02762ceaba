package scheduler

import (
	"context"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
)

// Processor is a worker able to run invocations.
type Processor struct {
	ID         string
	Attributes invocation.Attributes
}

// Executor runs an invocation payload on a processor. The scheduler never
// looks inside the payload or the result.
type Executor interface {
	Execute(ctx context.Context, payload any, proc Processor) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, payload any, proc Processor) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, payload any, proc Processor) (any, error) {
	return f(ctx, payload, proc)
}

// Assignment is a dispatched request handed to a processor. Token identifies
// this dispatch in Complete.
type Assignment struct {
	Token       string
	Key         string
	ClientID    string
	RequestID   string
	Attachment  any
	Payload     any
	ProcessorID string
}
