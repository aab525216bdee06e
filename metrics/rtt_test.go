package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTTMatchedAck(t *testing.T) {
	r := NewRTTEstimator(20)
	base := time.Unix(100, 0)

	r.RecordSend(1, base)
	rtt, matched := r.ObserveAck(1, base.Add(40*time.Millisecond))

	require.True(t, matched)
	assert.Equal(t, 40*time.Millisecond, rtt)
	assert.Equal(t, 40*time.Millisecond, r.Average())
	assert.Equal(t, 0, r.Outstanding())
}

func TestRTTUnmatchedAckIsAnomalyOnly(t *testing.T) {
	r := NewRTTEstimator(20)

	_, matched := r.ObserveAck(99, time.Unix(100, 0))
	assert.False(t, matched)
	assert.Equal(t, 1, r.UnmatchedAcks())
	assert.Equal(t, time.Duration(0), r.Average())
	assert.Equal(t, 0, r.SampleCount())
}

func TestRTTWindowKeepsMostRecentTwenty(t *testing.T) {
	r := NewRTTEstimator(20)
	base := time.Unix(100, 0)

	// 25 samples: 1ms, 2ms, ... 25ms. Only 6..25 should remain.
	for i := 1; i <= 25; i++ {
		seq := uint16(i)
		r.RecordSend(seq, base)
		r.ObserveAck(seq, base.Add(time.Duration(i)*time.Millisecond))
	}

	assert.Equal(t, 20, r.SampleCount())

	// Mean of 6..25 is 15.5 ms.
	assert.Equal(t, 15500*time.Microsecond, r.Average())
}

func TestRTTSweepOutstanding(t *testing.T) {
	r := NewRTTEstimator(20)
	base := time.Unix(100, 0)

	for i := 1; i <= 5; i++ {
		r.RecordSend(uint16(i), base)
	}
	r.ObserveAck(2, base.Add(10*time.Millisecond))

	swept := r.SweepOutstanding()
	assert.Equal(t, 4, swept)
	assert.Equal(t, 4, r.LostAcks())
	assert.Equal(t, 0, r.Outstanding())

	// A late acknowledgment after the sweep is unmatched.
	_, matched := r.ObserveAck(3, base.Add(time.Second))
	assert.False(t, matched)
	assert.Equal(t, 1, r.UnmatchedAcks())
}
