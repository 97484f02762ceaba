// Package transports provides the transport used by the CLI to reach a farm
// controller.
package transports

import (
	"context"
	"encoding/json"
	"time"
)

// SubmitRequest describes one invocation.
type SubmitRequest struct {
	ID           string `json:"id"`
	Attachment   any    `json:"attachment,omitempty"`
	Requirements string `json:"requirements,omitempty"`
	Invocation   any    `json:"invocation,omitempty"`
	Sync         bool   `json:"sync,omitempty"`
	TimeoutMs    int64  `json:"timeout_ms,omitempty"`
}

// Submitted acknowledges an asynchronous submission.
type Submitted struct {
	Key       string `json:"key"`
	RequestID string `json:"requestId"`
}

// Response is the result of a synchronous submission.
type Response struct {
	ClientID    string    `json:"clientId"`
	RequestID   string    `json:"requestId"`
	Attachment  any       `json:"attachment,omitempty"`
	Value       any       `json:"value,omitempty"`
	Error       string    `json:"error,omitempty"`
	ProcessorID string    `json:"processorId,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Ref identifies a pending request.
type Ref struct {
	ClientID   string `json:"clientId"`
	RequestID  string `json:"requestId"`
	Attachment any    `json:"attachment,omitempty"`
}

// Client is the stored settings of a client.
type Client struct {
	Name              string `json:"name"`
	Priority          *int   `json:"priority,omitempty"`
	EffectivePriority int    `json:"effectivePriority"`
}

// Assignment is a unit of work handed to a processor.
type Assignment struct {
	Token      string `json:"token"`
	Key        string `json:"key"`
	ClientID   string `json:"clientId"`
	RequestID  string `json:"requestId"`
	Attachment any    `json:"attachment,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

// FarmTransport abstracts the transport used by the CLI.
type FarmTransport interface {
	Submit(ctx context.Context, client string, req SubmitRequest) (Submitted, error)
	Invoke(ctx context.Context, client string, req SubmitRequest) (Response, error)
	Count(ctx context.Context, client, prefix string) (int, error)
	List(ctx context.Context, client, prefix string) ([]Ref, error)
	Cancel(ctx context.Context, client, prefix string) (int, error)
	Completed(ctx context.Context, client, prefix string, limit int) ([]json.RawMessage, error)
	SetPriority(ctx context.Context, client string, priority *int) (Client, error)
	GetClient(ctx context.Context, client string) (Client, error)
	Stats(ctx context.Context) (json.RawMessage, error)
	Poll(ctx context.Context, processorID string, attrs map[string]any, wait time.Duration) (*Assignment, error)
	Complete(ctx context.Context, processorID, token string, value any, errMsg string) error
}

// WorkSession is one processor's stream of assignments.
type WorkSession interface {
	// Next reports the processor idle and blocks for one assignment.
	Next() (*Assignment, error)
	Complete(token string, value any, errMsg string) error
	// Close ends the session; assignments not completed are requeued.
	Close() error
}

// SessionTransport is implemented by transports that can hold a processor
// on a stream instead of polling.
type SessionTransport interface {
	OpenWork(ctx context.Context, processorID string, attrs map[string]any) (WorkSession, error)
}
