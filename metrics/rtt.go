package metrics

import "time"

// DefaultRTTWindow is the number of most-recent round-trip samples kept
// in the rolling average.
const DefaultRTTWindow = 20

// RTTEstimator matches outgoing packet send times to incoming
// acknowledgments and maintains a bounded rolling average of the
// resulting round-trip times.
//
// Pending send entries leave the table either when the matching
// acknowledgment arrives or when SweepOutstanding declares them lost, so
// the table stays bounded under sustained loss.
type RTTEstimator struct {
	window    int
	pending   map[uint16]time.Time
	samples   []time.Duration
	average   time.Duration
	ackLost   int
	unmatched int
}

// NewRTTEstimator creates an estimator keeping at most window samples.
// A non-positive window falls back to DefaultRTTWindow.
func NewRTTEstimator(window int) *RTTEstimator {
	if window <= 0 {
		window = DefaultRTTWindow
	}
	return &RTTEstimator{
		window:  window,
		pending: make(map[uint16]time.Time),
	}
}

// RecordSend registers that sequence seq was transmitted at t.
func (r *RTTEstimator) RecordSend(seq uint16, t time.Time) {
	r.pending[seq] = t
}

// ObserveAck processes an acknowledgment for sequence seq arriving at t.
// When the sequence is still pending it yields the measured round trip
// and matched=true; an unknown sequence is counted as an anomaly and
// yields matched=false without touching the average.
func (r *RTTEstimator) ObserveAck(seq uint16, t time.Time) (rtt time.Duration, matched bool) {
	sent, ok := r.pending[seq]
	if !ok {
		r.unmatched++
		return 0, false
	}
	delete(r.pending, seq)

	rtt = t.Sub(sent)
	r.samples = append(r.samples, rtt)
	if len(r.samples) > r.window {
		r.samples = r.samples[len(r.samples)-r.window:]
	}

	var total time.Duration
	for _, s := range r.samples {
		total += s
	}
	r.average = total / time.Duration(len(r.samples))

	return rtt, true
}

// SweepOutstanding declares every still-pending send an unacknowledged
// loss, clears the table, and returns how many entries were swept.
func (r *RTTEstimator) SweepOutstanding() int {
	n := len(r.pending)
	r.ackLost += n
	r.pending = make(map[uint16]time.Time)
	return n
}

// Average returns the rolling mean round-trip time, zero before the
// first matched acknowledgment.
func (r *RTTEstimator) Average() time.Duration {
	return r.average
}

// SampleCount returns how many samples currently back the average.
func (r *RTTEstimator) SampleCount() int {
	return len(r.samples)
}

// Outstanding returns the number of sends still awaiting an
// acknowledgment.
func (r *RTTEstimator) Outstanding() int {
	return len(r.pending)
}

// LostAcks returns the cumulative count of sends swept as
// unacknowledged.
func (r *RTTEstimator) LostAcks() int {
	return r.ackLost
}

// UnmatchedAcks returns how many acknowledgments referenced a sequence
// that was not pending.
func (r *RTTEstimator) UnmatchedAcks() int {
	return r.unmatched
}
