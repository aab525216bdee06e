package flow

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rtpmeter/rtpmeter/metrics"
	"github.com/rtpmeter/rtpmeter/rtp"
)

// State holds every shared counter of one flow: the sequence counter and
// cumulative send counts on the sender side, the loss tracker, jitter
// estimator and receive count on the receiver side, and the pending-send
// table backing the round-trip estimator.
//
// A single mutex guards all of it. Each method is one atomic
// read-modify-write region; callers perform network I/O outside.
type State struct {
	mu sync.Mutex

	ssrc uint32

	// Sender side.
	sequence    uint16
	packetsSent uint32
	octetsSent  uint32
	rtt         *metrics.RTTEstimator

	// Receiver side.
	packetsReceived uint32
	loss            *metrics.LossTracker
	jitter          *metrics.JitterEstimator
}

// NewState creates flow state for the given SSRC and media clock rate.
func NewState(ssrc, clockRate uint32) *State {
	return &State{
		ssrc:   ssrc,
		rtt:    metrics.NewRTTEstimator(metrics.DefaultRTTWindow),
		loss:   metrics.NewLossTracker(),
		jitter: metrics.NewJitterEstimator(clockRate),
	}
}

// GenerateSSRC draws a random 32-bit flow identifier.
func GenerateSSRC() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generating SSRC: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// SSRC returns the flow identifier.
func (s *State) SSRC() uint32 {
	return s.ssrc
}

// AdvanceSequence increments the sequence counter and snapshots the
// media timestamp for the same instant, as one atomic step. Skipped
// (simulated-loss) packets advance the counter too, which is what makes
// the skip observable as a gap on the receiver.
func (s *State) AdvanceSequence(now time.Time) (seq uint16, timestamp uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence, rtp.MediaTimestamp(now)
}

// RecordTransmit accounts one successfully transmitted packet of the
// given encoded length and registers its send time for round-trip
// matching. It returns the cumulative transmitted-packet count.
func (s *State) RecordTransmit(seq uint16, octets int, now time.Time) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsSent++
	s.octetsSent += uint32(octets)
	s.rtt.RecordSend(seq, now)
	return s.packetsSent
}

// ObserveAck feeds one acknowledgment into the round-trip estimator.
func (s *State) ObserveAck(seq uint16, now time.Time) (rtt time.Duration, matched bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt.ObserveAck(seq, now)
}

// SweepOutstanding declares every unacknowledged send lost and returns
// how many there were.
func (s *State) SweepOutstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt.SweepOutstanding()
}

// ObserveMedia feeds one received RTP packet into the loss tracker and
// jitter estimator and bumps the receive count.
func (s *State) ObserveMedia(p *rtp.Packet, now time.Time) (lost uint32, jitterSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetsReceived++
	lost = s.loss.Observe(p.SequenceNumber)
	jitterSeconds = s.jitter.Observe(p.Timestamp, now)
	return lost, jitterSeconds
}

// SenderSnapshot captures the cumulative transmitted counters for a
// Sender Report.
func (s *State) SenderSnapshot() (packetCount, octetCount uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetsSent, s.octetsSent
}

// ReceiverSnapshot captures the receive-side counters used to derive
// metrics from an incoming Sender Report.
type ReceiverSnapshot struct {
	PacketsReceived  uint32
	CumulativeLost   uint32
	HighestSequence  uint16
	JitterSeconds    float64
	JitterClockUnits uint32
}

// Receiver captures a consistent receive-side snapshot.
func (s *State) Receiver() ReceiverSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest, _ := s.loss.HighestSequence()
	return ReceiverSnapshot{
		PacketsReceived:  s.packetsReceived,
		CumulativeLost:   s.loss.CumulativeLost(),
		HighestSequence:  highest,
		JitterSeconds:    s.jitter.Estimate(),
		JitterClockUnits: s.jitter.ClockUnits(),
	}
}

// RTTAverage returns the rolling round-trip mean.
func (s *State) RTTAverage() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt.Average()
}

// LostAcks returns the cumulative unacknowledged-send count.
func (s *State) LostAcks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt.LostAcks()
}

// UnmatchedAcks returns how many acknowledgments referenced unknown
// sequences.
func (s *State) UnmatchedAcks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rtt.UnmatchedAcks()
}
