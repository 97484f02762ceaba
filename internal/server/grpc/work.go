package grpcserver

import (
	"errors"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/rpc"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
	"github.com/appirio-tech/arena-farm-client/pkg/log"
)

// workMsg is every message of the Work stream, in both directions.
type workMsg struct {
	Type        string         `json:"type"`
	ProcessorID string         `json:"processorId,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Token       string         `json:"token,omitempty"`
	Value       any            `json:"value,omitempty"`
	Error       string         `json:"error,omitempty"`
	Code        int            `json:"code,omitempty"`
}

// Work holds one processor for the life of the stream. Each ready message
// is answered with one assignment; each complete message with an ack.
// Assignments still outstanding when the stream ends are released.
func (s *farmService) Work(stream rpc.WorkStream) error {
	ctx := stream.Context()
	first, err := stream.Recv()
	if err != nil {
		return err
	}
	var hello workMsg
	if err := decode(first, &hello); err != nil {
		return err
	}
	if hello.Type != rpc.WorkHello || hello.ProcessorID == "" {
		return status.Error(codes.InvalidArgument, "work stream must open with a hello carrying processorId")
	}
	proc := scheduler.Processor{ID: hello.ProcessorID, Attributes: invocation.Attributes(hello.Attributes)}
	logger := s.logger.WithContext(ctx).With(log.Str("processor", proc.ID))
	logger.Debug("processor connected")

	sched := s.rt.Scheduler()
	outstanding := make(map[string]*scheduler.Assignment)
	defer func() {
		for _, a := range outstanding {
			s.release(ctx, a)
		}
		logger.Debug("processor disconnected", log.Int("released", len(outstanding)))
	}()

	for {
		in, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var m workMsg
		if err := decode(in, &m); err != nil {
			return err
		}
		switch m.Type {
		case rpc.WorkReady:
			a, err := sched.Next(ctx, proc)
			if err != nil {
				return toStatus(err)
			}
			outstanding[a.Token] = a
			msg := toAssignmentMsg(a)
			msg.Type = rpc.WorkAssignment
			out, err := encode(msg)
			if err != nil {
				return err
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case rpc.WorkComplete:
			delete(outstanding, m.Token)
			ack := workMsg{Type: rpc.WorkAck, Token: m.Token}
			if err := sched.Complete(m.Token, resultOf(m.Value, m.Error)); err != nil {
				logger.Warn("rejected completion", log.Str("token", m.Token), log.Err(err))
				ack.Error = err.Error()
				ack.Code = int(codeOf(err))
			}
			out, err := encode(ack)
			if err != nil {
				return err
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		default:
			return status.Errorf(codes.InvalidArgument, "unknown work message %q", m.Type)
		}
	}
}
