// Package metrics implements the per-flow delivery estimators: gap-based
// loss counting, RFC 3550 interarrival jitter, and a rolling round-trip
// time average fed by acknowledgments.
//
// The estimators hold no locks of their own. A flow owns one instance of
// each and serializes access through its own mutex, so that every
// read-modify-write across the emission, reporting, and acknowledgment
// tasks is atomic with respect to the others.
package metrics
