// Package flow orchestrates a measurement flow between two endpoints.
//
// A Sender paces RTP packets toward a peer, emits a Sender Report every
// few transmitted packets, and ingests the text acknowledgments the peer
// returns to estimate round-trip time. A Receiver tracks sequence
// continuity and interarrival jitter for incoming media, acknowledges
// every packet, and turns each Sender Report into one metrics Sample for
// downstream consumers.
//
// All shared flow counters live in a single State guarded by one mutex;
// the emission, reporting, and acknowledgment tasks never hold the lock
// across network I/O.
package flow
