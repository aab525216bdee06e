package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtpmeter/rtpmeter/rtp"
)

func TestStateSequenceAdvancesOnSkipsToo(t *testing.T) {
	s := NewState(0xABCD, 90000)
	now := time.Unix(100, 0)

	seq1, _ := s.AdvanceSequence(now)
	seq2, _ := s.AdvanceSequence(now) // a simulated drop still advances
	seq3, _ := s.AdvanceSequence(now)

	assert.Equal(t, uint16(1), seq1)
	assert.Equal(t, uint16(2), seq2)
	assert.Equal(t, uint16(3), seq3)
}

func TestStateTransmitAccounting(t *testing.T) {
	s := NewState(1, 90000)
	now := time.Unix(100, 0)

	seq, _ := s.AdvanceSequence(now)
	sent := s.RecordTransmit(seq, 172, now)
	assert.Equal(t, uint32(1), sent)

	seq, _ = s.AdvanceSequence(now)
	sent = s.RecordTransmit(seq, 172, now)
	assert.Equal(t, uint32(2), sent)

	packets, octets := s.SenderSnapshot()
	assert.Equal(t, uint32(2), packets)
	assert.Equal(t, uint32(344), octets)
}

func TestStateAckFlow(t *testing.T) {
	s := NewState(1, 90000)
	base := time.Unix(100, 0)

	seq, _ := s.AdvanceSequence(base)
	s.RecordTransmit(seq, 172, base)

	rtt, matched := s.ObserveAck(seq, base.Add(30*time.Millisecond))
	require.True(t, matched)
	assert.Equal(t, 30*time.Millisecond, rtt)
	assert.Equal(t, 30*time.Millisecond, s.RTTAverage())

	_, matched = s.ObserveAck(999, base.Add(time.Second))
	assert.False(t, matched)
	assert.Equal(t, 1, s.UnmatchedAcks())

	assert.Equal(t, 0, s.SweepOutstanding())
}

func TestStateReceiverSide(t *testing.T) {
	s := NewState(1, 90000)
	base := time.Unix(100, 0)

	for i, seq := range []uint16{1, 2, 4, 5} {
		p := rtp.NewPacket(96, seq, uint32(i*1800), 0xBEEF, nil)
		s.ObserveMedia(p, base.Add(time.Duration(i)*20*time.Millisecond))
	}

	snap := s.Receiver()
	assert.Equal(t, uint32(4), snap.PacketsReceived)
	assert.Equal(t, uint32(1), snap.CumulativeLost)
	assert.Equal(t, uint16(5), snap.HighestSequence)
}

func TestGenerateSSRC(t *testing.T) {
	a, err := GenerateSSRC()
	require.NoError(t, err)
	b, err := GenerateSSRC()
	require.NoError(t, err)
	// Two random draws colliding is effectively impossible.
	assert.NotEqual(t, a, b)
}
