// Package dispatch implements the strict-priority dispatch queue.
//
// The queue is a fixed set of FIFO lanes, lane 0 being the highest priority.
// A processor asking for work gets the oldest eligible request of the highest
// non-empty lane. Ineligible requests stay where they are for the next
// processor; there is no aging or preemption.
//
// Taking a request out of the queue is also the point where it stops being
// PENDING: Dequeue wins the PENDING to DISPATCHED transition under the queue
// lock, so a concurrent cancel sees either a pending entry it can cancel or
// one that is already gone.
package dispatch
