package grpcserver

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/pending"
	"github.com/appirio-tech/arena-farm-client/internal/rpc"
	"github.com/appirio-tech/arena-farm-client/internal/runtime"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

type submitMsg struct {
	Client       string `json:"client"`
	ID           string `json:"id"`
	Attachment   any    `json:"attachment,omitempty"`
	Requirements string `json:"requirements,omitempty"`
	Invocation   any    `json:"invocation,omitempty"`
	TimeoutMs    int64  `json:"timeout_ms,omitempty"`
}

type scopeMsg struct {
	Client string `json:"client"`
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit,omitempty"`
}

type clientMsg struct {
	Client   string `json:"client"`
	Priority *int   `json:"priority"`
}

type clientView struct {
	Name              string `json:"name"`
	Priority          *int   `json:"priority"`
	EffectivePriority int    `json:"effectivePriority"`
	CreatedAtMs       int64  `json:"createdAtMs,omitempty"`
	UpdatedAtMs       int64  `json:"updatedAtMs,omitempty"`
}

type responseMsg struct {
	ClientID    string    `json:"clientId"`
	RequestID   string    `json:"requestId"`
	Attachment  any       `json:"attachment,omitempty"`
	Value       any       `json:"value,omitempty"`
	Error       string    `json:"error,omitempty"`
	ProcessorID string    `json:"processorId,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

type refMsg struct {
	ClientID   string `json:"clientId"`
	RequestID  string `json:"requestId"`
	Attachment any    `json:"attachment,omitempty"`
}

type pollMsg struct {
	ProcessorID string         `json:"processorId"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	WaitMs      int64          `json:"wait_ms,omitempty"`
}

type completeMsg struct {
	ProcessorID string `json:"processorId"`
	Token       string `json:"token"`
	Value       any    `json:"value,omitempty"`
	Error       string `json:"error,omitempty"`
}

type assignmentMsg struct {
	Type       string `json:"type,omitempty"`
	Token      string `json:"token"`
	Key        string `json:"key"`
	ClientID   string `json:"clientId"`
	RequestID  string `json:"requestId"`
	Attachment any    `json:"attachment,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

func toAssignmentMsg(a *scheduler.Assignment) assignmentMsg {
	return assignmentMsg{
		Token:      a.Token,
		Key:        a.Key,
		ClientID:   a.ClientID,
		RequestID:  a.RequestID,
		Attachment: a.Attachment,
		Payload:    a.Payload,
	}
}

func resultOf(value any, errMsg string) invocation.Result {
	r := invocation.Result{Value: value}
	if errMsg != "" {
		r.Err = errors.New(errMsg)
	}
	return r
}

// farmService implements rpc.FarmServer over the runtime.
type farmService struct {
	rt     *runtime.Runtime
	logger log.Logger
}

var _ rpc.FarmServer = (*farmService)(nil)

func decode(in *structpb.Struct, v any) error {
	if err := rpc.Decode(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := rpc.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *farmService) Health(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.rt.CheckHealth(ctx); err != nil {
		return encode(map[string]string{"status": "not_serving"})
	}
	return encode(map[string]string{"status": "ok"})
}

func (s *farmService) request(in *structpb.Struct) (submitMsg, invocation.Request, error) {
	var m submitMsg
	if err := decode(in, &m); err != nil {
		return m, invocation.Request{}, err
	}
	req, err := s.rt.NewRequest(m.ID, m.Attachment, m.Invocation, m.Requirements)
	return m, req, toStatus(err)
}

// Submit schedules an asynchronous invocation.
func (s *farmService) Submit(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	m, req, err := s.request(in)
	if err != nil {
		return nil, err
	}
	if err := s.rt.Scheduler().Schedule(m.Client, req); err != nil {
		return nil, toStatus(err)
	}
	key, _ := pending.Key(m.Client, req.ID)
	return encode(map[string]string{"key": key, "requestId": req.ID})
}

// Invoke submits synchronously and waits up to timeout_ms, or the
// configured sync timeout, for the response.
func (s *farmService) Invoke(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	m, req, err := s.request(in)
	if err != nil {
		return nil, err
	}
	h, err := s.rt.Scheduler().ScheduleSync(m.Client, req)
	if err != nil {
		return nil, toStatus(err)
	}
	timeout := s.rt.Config().Scheduler.SyncTimeout.D()
	if m.TimeoutMs > 0 {
		timeout = time.Duration(m.TimeoutMs) * time.Millisecond
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := h.Wait(wctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := responseMsg{
		ClientID:    resp.ClientID,
		RequestID:   resp.RequestID,
		Attachment:  resp.Attachment,
		Value:       resp.Result.Value,
		ProcessorID: resp.ProcessorID,
		CompletedAt: resp.CompletedAt,
	}
	if resp.Result.Err != nil {
		out.Error = resp.Result.Err.Error()
	}
	return encode(out)
}

func (s *farmService) Count(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m scopeMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	return encode(map[string]int{"count": s.rt.Scheduler().Count(m.Client, m.Prefix)})
}

func (s *farmService) List(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m scopeMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	refs := s.rt.Scheduler().List(m.Client, m.Prefix)
	out := make([]refMsg, 0, len(refs))
	for _, r := range refs {
		out = append(out, refMsg{ClientID: r.ClientID, RequestID: r.RequestID, Attachment: r.Attachment})
	}
	return encode(map[string]any{"requests": out})
}

func (s *farmService) Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m scopeMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	n := s.rt.Scheduler().Cancel(m.Client, m.Prefix)
	if n > 0 {
		s.logger.WithContext(ctx).Info("pending requests cancelled",
			log.Str("client", m.Client), log.Str("prefix", m.Prefix), log.Int("count", n))
	}
	return encode(map[string]int{"cancelled": n})
}

// Completed lists journaled outcomes ordered by request id.
func (s *farmService) Completed(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m scopeMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	j := s.rt.Journal()
	if j == nil {
		return nil, status.Error(codes.NotFound, "journal disabled")
	}
	entries, err := j.List(ctx, m.Client, m.Prefix, m.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"entries": entries})
}

func (s *farmService) GetClient(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m clientMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	meta, _, err := s.rt.Client(m.Client)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to load client")
	}
	return encode(clientView{
		Name:              m.Client,
		Priority:          meta.Priority,
		EffectivePriority: s.rt.Scheduler().Priority(m.Client),
		CreatedAtMs:       meta.CreatedAtMs,
		UpdatedAtMs:       meta.UpdatedAtMs,
	})
}

// SetPriority stores the client's lane. A null priority reverts it.
func (s *farmService) SetPriority(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m clientMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	meta, err := s.rt.SetClientPriority(m.Client, m.Priority)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(clientView{
		Name:              m.Client,
		Priority:          meta.Priority,
		EffectivePriority: s.rt.Scheduler().Priority(m.Client),
		CreatedAtMs:       meta.CreatedAtMs,
		UpdatedAtMs:       meta.UpdatedAtMs,
	})
}

func (s *farmService) Stats(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.rt.Scheduler().Stats())
}

// Poll waits up to wait_ms, capped at the configured poll wait, for one
// assignment. An empty message means nothing arrived in time. An
// assignment the caller can no longer receive goes back to the queue.
func (s *farmService) Poll(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m pollMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	if m.ProcessorID == "" {
		return nil, status.Error(codes.InvalidArgument, "processorId is required")
	}
	maxWait := s.rt.Config().Scheduler.PollWait.D()
	wait := maxWait
	if m.WaitMs > 0 {
		wait = time.Duration(m.WaitMs) * time.Millisecond
	}
	if maxWait > 0 && wait > maxWait {
		wait = maxWait
	}
	pctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	proc := scheduler.Processor{ID: m.ProcessorID, Attributes: invocation.Attributes(m.Attributes)}
	a, err := s.rt.Scheduler().Next(pctx, proc)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, toStatus(ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return &structpb.Struct{}, nil
	default:
		return nil, toStatus(err)
	}
	if ctx.Err() != nil {
		s.release(ctx, a)
		return nil, toStatus(ctx.Err())
	}
	out, err := encode(toAssignmentMsg(a))
	if err != nil {
		s.release(ctx, a)
		return nil, err
	}
	return out, nil
}

func (s *farmService) release(ctx context.Context, a *scheduler.Assignment) {
	logger := s.logger.WithContext(ctx)
	if err := s.rt.Scheduler().Release(a.Token); err != nil {
		logger.Error("release failed", log.Str("key", a.Key), log.Err(err))
		return
	}
	logger.Info("assignment returned to queue", log.Str("processor", a.ProcessorID), log.Str("key", a.Key))
}

// Complete resolves an assignment by its token.
func (s *farmService) Complete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var m completeMsg
	if err := decode(in, &m); err != nil {
		return nil, err
	}
	if m.Token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}
	if err := s.rt.Scheduler().Complete(m.Token, resultOf(m.Value, m.Error)); err != nil {
		s.logger.WithContext(ctx).Warn("rejected completion",
			log.Str("processor", m.ProcessorID), log.Str("token", m.Token), log.Err(err))
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}
