package pending

import (
	"fmt"
	"strings"

	"github.com/appirio-tech/arena-farm-client/internal/invocation"
	"github.com/appirio-tech/arena-farm-client/pkg/hid"
)

// Level tags of the composite pending key.
const (
	TagClient  byte = 'C'
	TagRequest byte = 'I'
)

// Key returns the closed composite key for a request: C{owner}.I{id}..
// Neither part may be empty or contain the level delimiter.
func Key(owner, requestID string) (string, error) {
	if err := checkPart("client id", owner); err != nil {
		return "", err
	}
	if err := checkPart("request id", requestID); err != nil {
		return "", err
	}
	return ownerBase(owner).Build(TagRequest, requestID)
}

// ownerBase returns a builder holding the client level. TagClient is never
// the delimiter, so Add cannot fail.
func ownerBase(owner string) *hid.Builder {
	b := hid.NewBuilder()
	_ = b.Add(TagClient, owner)
	return b
}

func checkPart(what, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", invocation.ErrInvalidArgument, what)
	}
	if strings.ContainsRune(v, hid.Delimiter) {
		return fmt.Errorf("%w: %s %q contains %q", invocation.ErrInvalidArgument, what, v, hid.Delimiter)
	}
	return nil
}

// QueryPrefix returns the key prefix matching owner's ids starting with
// idPrefix. It is an open id, so it matches every deeper key.
func QueryPrefix(owner, idPrefix string) string {
	p, _ := ownerBase(owner).Open(TagRequest, idPrefix)
	return p
}
