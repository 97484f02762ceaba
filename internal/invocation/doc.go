// Package invocation holds the data model shared by the farm scheduler: the
// client-facing Request/Response pair, the opaque eligibility Predicate, the
// controller-side Pending record with its lifecycle State, and the one-shot
// Future that carries a response back to a synchronous caller.
//
// # Lifecycle
//
//	PENDING ──dispatch──▶ DISPATCHED ──complete──▶ COMPLETED
//	   │
//	   └────cancel────▶ CANCELLED
//
// Transitions out of PENDING are decided by a compare-and-swap on the Pending
// record, so a cancellation racing a dispatch has exactly one winner.
package invocation
