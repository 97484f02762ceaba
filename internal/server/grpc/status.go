package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/internal/scheduler"
)

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, invocation.ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, invocation.ErrDuplicateIdentifier):
		return codes.AlreadyExists
	case errors.Is(err, invocation.ErrAlreadyResolved):
		return codes.FailedPrecondition
	case errors.Is(err, invocation.ErrUnknownInvocation):
		return codes.NotFound
	case errors.Is(err, invocation.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, invocation.ErrCancelled):
		return codes.Aborted
	case errors.Is(err, scheduler.ErrClosed):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// toStatus maps a domain error onto a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}
