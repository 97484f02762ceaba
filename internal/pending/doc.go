// Package pending is the registry of requests that have been submitted but
// not yet dispatched.
//
// Requests are grouped per owning client into a namespace. Each namespace
// keeps its entries ordered by composite key (see pkg/hid), so every
// prefix query is a contiguous range scan. Namespaces are visited in the
// order their owners were first seen when a query spans all clients.
//
// The registry only stores pointers; it never changes an entry's lifecycle
// state itself except in Cancel, which wins the entry with a PENDING to
// CANCELLED compare-and-swap before unlinking it.
package pending
