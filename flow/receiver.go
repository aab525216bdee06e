package flow

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rtpmeter/rtpmeter/config"
	"github.com/rtpmeter/rtpmeter/rtcp"
	"github.com/rtpmeter/rtpmeter/rtp"
	"github.com/rtpmeter/rtpmeter/transport"
)

// Receiver is the consuming endpoint of a measurement flow. It tracks
// sequence continuity and interarrival jitter for incoming media,
// acknowledges every packet over the media socket, and derives one
// metrics Sample from each Sender Report, answering it with a Receiver
// Report.
type Receiver struct {
	conf    *config.Config
	state   *State
	clock   TimeProvider
	rtpEp   *transport.Endpoint
	rtcpEp  *transport.Endpoint
	samples *Collector
	log     *logrus.Entry
}

// NewReceiver binds the configured RTP and RTCP ports and prepares a
// receiver.
func NewReceiver(conf *config.Config) (*Receiver, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	rtpEp, err := transport.Listen(fmt.Sprintf(":%d", conf.RTPPort))
	if err != nil {
		return nil, fmt.Errorf("binding RTP port: %w", err)
	}
	rtcpEp, err := transport.Listen(fmt.Sprintf(":%d", conf.RTCPPort))
	if err != nil {
		rtpEp.Close()
		return nil, fmt.Errorf("binding RTCP port: %w", err)
	}

	return NewReceiverTransport(conf, rtpEp, rtcpEp, RealTimeProvider{})
}

// NewReceiverTransport builds a receiver over already-open endpoints.
// Used directly by tests that wire both roles over in-memory
// connections.
func NewReceiverTransport(conf *config.Config, rtpEp, rtcpEp *transport.Endpoint, clock TimeProvider) (*Receiver, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	ssrc := conf.SSRC
	if ssrc == 0 {
		generated, err := GenerateSSRC()
		if err != nil {
			return nil, err
		}
		ssrc = generated
	}

	r := &Receiver{
		conf:    conf,
		state:   NewState(ssrc, conf.ClockRate),
		clock:   clock,
		rtpEp:   rtpEp,
		rtcpEp:  rtcpEp,
		samples: NewCollector(64),
		log: logrus.WithFields(logrus.Fields{
			"role": "receiver",
			"ssrc": fmt.Sprintf("%08x", ssrc),
		}),
	}

	rtpEp.SetHandler(r.handleMediaDatagram)
	rtcpEp.SetHandler(r.handleControlDatagram)

	return r, nil
}

// State exposes the shared flow state, mainly for inspection in tests.
func (r *Receiver) State() *State {
	return r.state
}

// Samples returns the subscription channel carrying one Sample per
// processed Sender Report.
func (r *Receiver) Samples() <-chan Sample {
	return r.samples.Samples()
}

// LastSample returns the most recent Sample, and whether one exists.
func (r *Receiver) LastSample() (Sample, bool) {
	return r.samples.Last()
}

// Run blocks until ctx ends. All work happens in the endpoint read
// loops; Run exists so both roles share a lifecycle shape.
func (r *Receiver) Run(ctx context.Context) error {
	r.log.WithFields(logrus.Fields{
		"rtp_addr":  r.rtpEp.LocalAddr().String(),
		"rtcp_addr": r.rtcpEp.LocalAddr().String(),
	}).Info("receiver listening")

	<-ctx.Done()
	return ctx.Err()
}

// Close releases both sockets.
func (r *Receiver) Close() error {
	err := r.rtpEp.Close()
	if cerr := r.rtcpEp.Close(); err == nil {
		err = cerr
	}
	return err
}

// handleMediaDatagram processes one RTP packet: loss and jitter
// bookkeeping, then an immediate acknowledgment back to the source
// address over the same socket.
func (r *Receiver) handleMediaDatagram(data []byte, addr net.Addr) {
	packet, err := rtp.Decode(data)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"from":  addr,
			"error": err,
		}).Warn("dropping malformed RTP packet")
		return
	}

	lost, jitter := r.state.ObserveMedia(packet, r.clock.Now())
	r.log.WithFields(logrus.Fields{
		"seq":    packet.SequenceNumber,
		"lost":   lost,
		"jitter": jitter,
	}).Debug("RTP packet received")

	if err := r.rtpEp.Send(FormatAck(packet.SequenceNumber), addr); err != nil {
		r.log.WithFields(logrus.Fields{
			"seq":   packet.SequenceNumber,
			"error": err,
		}).Warn("acknowledgment transmission failed")
	}
}

// handleControlDatagram processes one Sender Report: derive a metrics
// Sample from the reported counters, publish it, and answer with a
// Receiver Report.
func (r *Receiver) handleControlDatagram(data []byte, addr net.Addr) {
	sr, err := rtcp.DecodeSenderReport(data)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"from":  addr,
			"error": err,
		}).Warn("dropping malformed control packet")
		return
	}

	now := r.clock.Now()
	sample := r.deriveSample(sr, now)
	r.samples.Publish(sample)

	r.log.WithFields(logrus.Fields{
		"sender_ssrc":  fmt.Sprintf("%08x", sr.SSRC),
		"packets_sent": sample.PacketsSent,
		"packets_rcvd": sample.PacketsReceived,
		"loss_rate":    sample.LossRate,
		"delay_ms":     sample.DelayMS,
	}).Info("sender report processed")

	r.sendReceiverReport(sr, addr)
}

// deriveSample computes the per-report metrics record. The loss estimate
// compares the sender's cumulative count against the local receive
// count; the two are sampled at slightly different instants, so this is
// an approximation, never negative.
func (r *Receiver) deriveSample(sr *rtcp.SenderReport, now time.Time) Sample {
	snap := r.state.Receiver()

	var estimatedLoss uint32
	if sr.PacketCount > snap.PacketsReceived {
		estimatedLoss = sr.PacketCount - snap.PacketsReceived
	}
	var lossRate float64
	if sr.PacketCount > 0 {
		lossRate = float64(estimatedLoss) / float64(sr.PacketCount)
	}

	senderUnix := rtcp.UnixFromNTP(sr.NTPSeconds, sr.NTPFraction)
	localUnix := float64(now.UnixNano()) / 1e9
	delayMS := (localUnix - senderUnix) * 1000

	return Sample{
		Timestamp:       now,
		SSRC:            sr.SSRC,
		RTPTimestamp:    sr.RTPTimestamp,
		PacketsSent:     sr.PacketCount,
		PacketsReceived: snap.PacketsReceived,
		PacketsLost:     estimatedLoss,
		LossRate:        lossRate,
		JitterSeconds:   snap.JitterSeconds,
		DelayMS:         delayMS,
	}
}

// sendReceiverReport answers a Sender Report with one report block
// summarizing reception of that sender's flow.
func (r *Receiver) sendReceiverReport(sr *rtcp.SenderReport, addr net.Addr) {
	snap := r.state.Receiver()

	var fraction uint8
	if sr.PacketCount > 0 {
		lost := uint32(0)
		if sr.PacketCount > snap.PacketsReceived {
			lost = sr.PacketCount - snap.PacketsReceived
		}
		scaled := uint64(lost) * 256 / uint64(sr.PacketCount)
		if scaled > 255 {
			scaled = 255
		}
		fraction = uint8(scaled)
	}

	rr := &rtcp.ReceiverReport{
		SSRC: r.state.SSRC(),
		Blocks: []rtcp.ReportBlock{{
			SenderSSRC:      sr.SSRC,
			FractionLost:    fraction,
			PacketsLost:     snap.CumulativeLost,
			HighestSequence: uint32(snap.HighestSequence),
			Jitter:          snap.JitterClockUnits,
			LastSR:          sr.NTPSeconds<<16 | sr.NTPFraction>>16,
			DelaySinceSR:    0, // answered immediately
		}},
	}

	if err := r.rtcpEp.Send(rr.Encode(), addr); err != nil {
		r.log.WithField("error", err).Warn("receiver report transmission failed")
	}
}
