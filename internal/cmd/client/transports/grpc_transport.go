package transports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/appirio-tech/arena-farm-client/internal/rpc"
)

// GRPCTransport implements FarmTransport over the farm.v1.Farm service.
type GRPCTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGRPCTransport constructs a new GRPCTransport using the provided dialer.
func NewGRPCTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GRPCTransport {
	return &GRPCTransport{dial: dial}
}

func (t *GRPCTransport) call(ctx context.Context, method string, in, out any) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	req, err := rpc.Encode(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, rpc.FullMethod(method), req, resp); err != nil {
		return err
	}
	if raw, ok := out.(*json.RawMessage); ok {
		b, err := rpc.DecodeRaw(resp)
		*raw = b
		return err
	}
	if out == nil {
		return nil
	}
	return rpc.Decode(resp, out)
}

type scoped struct {
	Client string `json:"client"`
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type clientSubmit struct {
	Client string `json:"client"`
	SubmitRequest
}

// Submit schedules an asynchronous invocation.
func (t *GRPCTransport) Submit(ctx context.Context, client string, req SubmitRequest) (Submitted, error) {
	req.Sync = false
	var out Submitted
	err := t.call(ctx, rpc.MethodSubmit, clientSubmit{Client: client, SubmitRequest: req}, &out)
	return out, err
}

// Invoke submits synchronously and waits for the response.
func (t *GRPCTransport) Invoke(ctx context.Context, client string, req SubmitRequest) (Response, error) {
	req.Sync = true
	var out Response
	err := t.call(ctx, rpc.MethodInvoke, clientSubmit{Client: client, SubmitRequest: req}, &out)
	return out, err
}

func (t *GRPCTransport) Count(ctx context.Context, client, prefix string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := t.call(ctx, rpc.MethodCount, scoped{Client: client, Prefix: prefix}, &out)
	return out.Count, err
}

func (t *GRPCTransport) List(ctx context.Context, client, prefix string) ([]Ref, error) {
	var out struct {
		Requests []Ref `json:"requests"`
	}
	err := t.call(ctx, rpc.MethodList, scoped{Client: client, Prefix: prefix}, &out)
	return out.Requests, err
}

func (t *GRPCTransport) Cancel(ctx context.Context, client, prefix string) (int, error) {
	var out struct {
		Cancelled int `json:"cancelled"`
	}
	err := t.call(ctx, rpc.MethodCancel, scoped{Client: client, Prefix: prefix}, &out)
	return out.Cancelled, err
}

// Completed returns journal entries as raw JSON objects.
func (t *GRPCTransport) Completed(ctx context.Context, client, prefix string, limit int) ([]json.RawMessage, error) {
	var out struct {
		Entries []json.RawMessage `json:"entries"`
	}
	err := t.call(ctx, rpc.MethodCompleted, scoped{Client: client, Prefix: prefix, Limit: limit}, &out)
	return out.Entries, err
}

func (t *GRPCTransport) SetPriority(ctx context.Context, client string, priority *int) (Client, error) {
	var out Client
	err := t.call(ctx, rpc.MethodSetPriority, map[string]any{"client": client, "priority": priority}, &out)
	return out, err
}

func (t *GRPCTransport) GetClient(ctx context.Context, client string) (Client, error) {
	var out Client
	err := t.call(ctx, rpc.MethodGetClient, map[string]any{"client": client}, &out)
	return out, err
}

func (t *GRPCTransport) Stats(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := t.call(ctx, rpc.MethodStats, struct{}{}, &out)
	return out, err
}

// Poll long-polls for work. It returns nil when the wait elapsed empty.
func (t *GRPCTransport) Poll(ctx context.Context, processorID string, attrs map[string]any, wait time.Duration) (*Assignment, error) {
	in := map[string]any{"processorId": processorID, "attributes": attrs, "wait_ms": wait.Milliseconds()}
	var out Assignment
	if err := t.call(ctx, rpc.MethodPoll, in, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, nil
	}
	return &out, nil
}

func (t *GRPCTransport) Complete(ctx context.Context, processorID, token string, value any, errMsg string) error {
	in := map[string]any{"processorId": processorID, "token": token, "value": value, "error": errMsg}
	return t.call(ctx, rpc.MethodComplete, in, nil)
}

// OpenWork holds the processor on one Work stream until the session is
// closed.
func (t *GRPCTransport) OpenWork(ctx context.Context, processorID string, attrs map[string]any) (WorkSession, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	stream, err := rpc.OpenWork(sctx, conn)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, err
	}
	ws := &grpcWorkSession{conn: conn, stream: stream, cancel: cancel}
	if err := ws.send(workMessage{Type: rpc.WorkHello, ProcessorID: processorID, Attributes: attrs}); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return ws, nil
}

type workMessage struct {
	Type        string         `json:"type"`
	ProcessorID string         `json:"processorId,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Token       string         `json:"token,omitempty"`
	Key         string         `json:"key,omitempty"`
	ClientID    string         `json:"clientId,omitempty"`
	RequestID   string         `json:"requestId,omitempty"`
	Attachment  any            `json:"attachment,omitempty"`
	Payload     any            `json:"payload,omitempty"`
	Value       any            `json:"value,omitempty"`
	Error       string         `json:"error,omitempty"`
	Code        int            `json:"code,omitempty"`
}

// grpcWorkSession is not safe for concurrent use.
type grpcWorkSession struct {
	conn   *grpc.ClientConn
	stream rpc.WorkClient
	cancel context.CancelFunc
}

func (s *grpcWorkSession) send(m workMessage) error {
	in, err := rpc.Encode(m)
	if err != nil {
		return err
	}
	return s.stream.Send(in)
}

func (s *grpcWorkSession) recv(want string) (workMessage, error) {
	in, err := s.stream.Recv()
	if err != nil {
		return workMessage{}, err
	}
	var m workMessage
	if err := rpc.Decode(in, &m); err != nil {
		return workMessage{}, err
	}
	if m.Type != want {
		return workMessage{}, fmt.Errorf("work stream: got %q, want %q", m.Type, want)
	}
	return m, nil
}

// Next reports the processor idle and blocks for one assignment.
func (s *grpcWorkSession) Next() (*Assignment, error) {
	if err := s.send(workMessage{Type: rpc.WorkReady}); err != nil {
		return nil, err
	}
	m, err := s.recv(rpc.WorkAssignment)
	if err != nil {
		return nil, err
	}
	return &Assignment{
		Token:      m.Token,
		Key:        m.Key,
		ClientID:   m.ClientID,
		RequestID:  m.RequestID,
		Attachment: m.Attachment,
		Payload:    m.Payload,
	}, nil
}

// Complete reports the result of an assignment received on this session.
func (s *grpcWorkSession) Complete(token string, value any, errMsg string) error {
	if err := s.send(workMessage{Type: rpc.WorkComplete, Token: token, Value: value, Error: errMsg}); err != nil {
		return err
	}
	ack, err := s.recv(rpc.WorkAck)
	if err != nil {
		return err
	}
	if ack.Error != "" {
		return status.Error(codes.Code(ack.Code), ack.Error)
	}
	return nil
}

// Close ends the stream. Assignments not completed return to the queue.
func (s *grpcWorkSession) Close() error {
	_ = s.stream.CloseSend()
	s.cancel()
	return s.conn.Close()
}

var (
	_ FarmTransport    = (*GRPCTransport)(nil)
	_ SessionTransport = (*GRPCTransport)(nil)
)
