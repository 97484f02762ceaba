package invocation

import (
	"errors"

	"github.com/appirio-tech/arena-farm-client/pkg/hid"
)

var (
	// ErrInvalidArgument marks malformed ids and requests. It is the same
	// value as hid.ErrInvalidArgument so errors.Is works across packages.
	ErrInvalidArgument = hid.ErrInvalidArgument

	// ErrDuplicateIdentifier is returned at submission when the owner already
	// has a PENDING request with the same id. The new request is rejected.
	ErrDuplicateIdentifier = errors.New("duplicated request identifier")

	// ErrTimedOut is returned to a synchronous caller whose wait budget ran
	// out. The request itself is unaffected.
	ErrTimedOut = errors.New("timed out waiting for invocation response")

	// ErrCancelled resolves the Future of a request cancelled before dispatch.
	ErrCancelled = errors.New("invocation cancelled")

	// ErrUnknownInvocation is returned when a completion names a key that is
	// not dispatched.
	ErrUnknownInvocation = errors.New("unknown invocation")

	// ErrAlreadyResolved signals a second resolution of the same request. The
	// execution boundary must never produce it.
	ErrAlreadyResolved = errors.New("invocation already resolved")
)
