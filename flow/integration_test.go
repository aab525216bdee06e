package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtpmeter/rtpmeter/config"
	"github.com/rtpmeter/rtpmeter/rtcp"
	"github.com/rtpmeter/rtpmeter/transport"
)

func testConfig() *config.Config {
	conf := config.Default()
	conf.PacketCount = 10
	conf.Interval = 5 * time.Millisecond
	conf.PayloadSize = 8
	conf.SRInterval = 5
	conf.AckTimeout = 300 * time.Millisecond
	conf.SimulatedLossRate = 0
	conf.SimulatedDelay = 0
	return conf
}

func newLoopbackPair(t *testing.T, conf *config.Config) (*Sender, *Receiver) {
	t.Helper()

	recvRTP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	recvRTCP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)

	receiver, err := NewReceiverTransport(conf, recvRTP, recvRTCP, RealTimeProvider{})
	require.NoError(t, err)

	sndRTP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	sndRTCP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)

	sender, err := NewSenderTransport(conf, sndRTP, sndRTCP,
		recvRTP.LocalAddr(), recvRTCP.LocalAddr(), RealTimeProvider{})
	require.NoError(t, err)

	t.Cleanup(func() {
		sender.Close()
		receiver.Close()
	})

	return sender, receiver
}

func waitForReceived(t *testing.T, r *Receiver, want uint32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.State().Receiver().PacketsReceived >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("receiver saw %d packets, want %d", r.State().Receiver().PacketsReceived, want)
}

func TestFlowLosslessScenario(t *testing.T) {
	conf := testConfig()
	sender, receiver := newLoopbackPair(t, conf)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := sender.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(10), result.PacketsSent)
	expectedOctets := uint32(10 * (12 + conf.PayloadSize))
	assert.Equal(t, expectedOctets, result.OctetsSent)
	assert.Equal(t, 0, result.LostAcks)
	assert.Greater(t, result.AverageRTT, time.Duration(0))

	waitForReceived(t, receiver, 10)
	snap := receiver.State().Receiver()
	assert.Equal(t, uint32(0), snap.CumulativeLost)
	assert.Equal(t, uint16(10), snap.HighestSequence)

	// Every fifth transmitted packet produced a Sender Report, each of
	// which produced one metrics sample.
	deadline := time.After(2 * time.Second)
	var samples []Sample
	for len(samples) < 2 {
		select {
		case s := <-receiver.Samples():
			samples = append(samples, s)
		case <-deadline:
			t.Fatalf("got %d samples, want at least 2", len(samples))
		}
	}

	final := samples[len(samples)-1]
	assert.Equal(t, uint32(10), final.PacketsSent)
	assert.LessOrEqual(t, final.PacketsLost, uint32(1)) // SR/receive race tolerance
	assert.Equal(t, sender.State().SSRC(), final.SSRC)

	// The poll interface reflects the most recent published sample.
	last, ok := receiver.LastSample()
	require.True(t, ok)
	assert.Equal(t, final, last)

	// With all packets acknowledged, a fresh report derived after the
	// run shows zero loss.
	now := time.Now()
	secs, frac := rtcp.NTPTime(now)
	settled := receiver.deriveSample(&rtcp.SenderReport{
		SSRC:        sender.State().SSRC(),
		NTPSeconds:  secs,
		NTPFraction: frac,
		PacketCount: result.PacketsSent,
		OctetCount:  result.OctetsSent,
	}, now)
	assert.Equal(t, uint32(0), settled.PacketsLost)
	assert.Equal(t, 0.0, settled.LossRate)
	assert.Equal(t, uint32(10), settled.PacketsReceived)
}

func TestFlowSimulatedDropCreatesGap(t *testing.T) {
	conf := testConfig()
	conf.PacketCount = 6
	conf.SimulatedLossRate = 0.5

	sender, receiver := newLoopbackPair(t, conf)

	// Drop exactly the third emission.
	emission := 0
	sender.randFloat = func() float64 {
		emission++
		if emission == 3 {
			return 0.0
		}
		return 1.0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := sender.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), result.PacketsSent)

	waitForReceived(t, receiver, 5)
	snap := receiver.State().Receiver()
	assert.Equal(t, uint32(1), snap.CumulativeLost)
	assert.Equal(t, uint16(6), snap.HighestSequence)
	assert.Equal(t, 0, result.LostAcks)
}

func TestFlowAllAcksLostWithoutPeer(t *testing.T) {
	conf := testConfig()
	conf.PacketCount = 3
	conf.AckTimeout = 200 * time.Millisecond

	// A bound but silent socket: media goes nowhere useful and nothing
	// ever acknowledges.
	blackholeRTP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	blackholeRTCP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer blackholeRTP.Close()
	defer blackholeRTCP.Close()

	sndRTP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	sndRTCP, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)

	sender, err := NewSenderTransport(conf, sndRTP, sndRTCP,
		blackholeRTP.LocalAddr(), blackholeRTCP.LocalAddr(), RealTimeProvider{})
	require.NoError(t, err)
	defer sender.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := sender.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), result.PacketsSent)
	assert.Equal(t, 3, result.LostAcks)
	assert.Equal(t, time.Duration(0), result.AverageRTT)
}
