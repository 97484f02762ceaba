// Package scheduler ties the pending registry and the dispatch queue
// together into the invocation scheduler.
//
// Clients submit requests with Schedule (the response goes to the client's
// configured Handler) or ScheduleSync (the response goes only to the
// returned Handle). Processors pull work with ProcessorIdle or the blocking
// Next, execute it outside the scheduler, and report back with Complete.
// Cancel, Count and List operate on still-pending requests by id prefix and
// never wait on running work.
//
// Lock order is namespace, then queue. A submission inserts and enqueues
// under its namespace lock; a dispatch decides PENDING to DISPATCHED under
// the queue lock and only then unlinks the entry from the namespace.
package scheduler
