package invocation

import "fmt"

// State is the lifecycle position of a Pending request.
type State int32

const (
	StatePending State = iota
	StateDispatched
	StateCompleted
	StateCancelled
)

var stateTransitionMap = map[State][]State{
	StatePending:    {StateDispatched, StateCancelled},
	StateDispatched: {StateCompleted, StatePending},
	StateCompleted:  {},
	StateCancelled:  {},
}

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateDispatched:
		return "DISPATCHED"
	case StateCompleted:
		return "COMPLETED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, c := range []State{StatePending, StateDispatched, StateCompleted, StateCancelled} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("%w: unknown state %q", ErrInvalidArgument, b)
}

// ValidStateTransition reports whether src may move to dst.
func ValidStateTransition(src, dst State) bool {
	for _, s := range stateTransitionMap[src] {
		if s == dst {
			return true
		}
	}
	return false
}
