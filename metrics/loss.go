package metrics

// LossTracker maintains the last-seen sequence number for a flow and
// counts losses from gaps in the sequence space.
//
// The tracker starts uninitialized; the first observed packet sets the
// baseline without counting loss. A packet at or below the last-seen
// sequence is treated as out of order or duplicated and never decrements
// the count, so reordering inflates the estimate slightly.
//
// Known limitation: comparisons are plain integer comparisons, so a
// 16-bit sequence wraparound registers as a large backward jump rather
// than a continuation. Flows short enough not to wrap are unaffected.
type LossTracker struct {
	initialized    bool
	lastSequence   uint16
	cumulativeLost uint32
}

// NewLossTracker returns a tracker in the uninitialized state.
func NewLossTracker() *LossTracker {
	return &LossTracker{}
}

// Observe records the arrival of sequence number seq and returns how
// many packets this single arrival revealed as lost (zero for in-order,
// duplicate, and out-of-order arrivals).
func (t *LossTracker) Observe(seq uint16) uint32 {
	if !t.initialized {
		t.initialized = true
		t.lastSequence = seq
		return 0
	}

	if seq <= t.lastSequence {
		// Out of order or duplicate. No correction is applied.
		return 0
	}

	lost := uint32(seq) - uint32(t.lastSequence) - 1
	t.lastSequence = seq
	t.cumulativeLost += lost
	return lost
}

// CumulativeLost returns the total packets counted as lost so far.
func (t *LossTracker) CumulativeLost() uint32 {
	return t.cumulativeLost
}

// HighestSequence returns the highest sequence number seen, and whether
// any packet has been observed yet.
func (t *LossTracker) HighestSequence() (uint16, bool) {
	return t.lastSequence, t.initialized
}
