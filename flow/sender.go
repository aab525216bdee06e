package flow

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rtpmeter/rtpmeter/config"
	"github.com/rtpmeter/rtpmeter/rtcp"
	"github.com/rtpmeter/rtpmeter/rtp"
	"github.com/rtpmeter/rtpmeter/transport"
)

// Sender is the emitting endpoint of a measurement flow. It runs three
// tasks: the paced packet-emission loop, the Sender Report loop signaled
// every few transmitted packets, and the acknowledgment-ingestion loop
// feeding the round-trip estimator.
type Sender struct {
	conf  *config.Config
	state *State
	clock TimeProvider

	// randFloat drives the simulated-loss decision; injectable for
	// deterministic tests.
	randFloat func() float64

	rtpEp    *transport.Endpoint
	rtcpEp   *transport.Endpoint
	rtpAddr  net.Addr
	rtcpAddr net.Addr

	srSignal chan struct{}
	acks     chan ackEvent

	log *logrus.Entry
}

type ackEvent struct {
	seq uint16
	at  time.Time
}

// Result summarizes a completed sender run.
type Result struct {
	PacketsSent   uint32
	OctetsSent    uint32
	LostAcks      int
	UnmatchedAcks int
	AverageRTT    time.Duration
}

// NewSender opens two ephemeral UDP sockets and prepares a sender
// targeting the peer named in conf.
func NewSender(conf *config.Config) (*Sender, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	rtpAddr, err := net.ResolveUDPAddr("udp", conf.RTPAddr())
	if err != nil {
		return nil, fmt.Errorf("resolving RTP peer: %w", err)
	}
	rtcpAddr, err := net.ResolveUDPAddr("udp", conf.RTCPAddr())
	if err != nil {
		return nil, fmt.Errorf("resolving RTCP peer: %w", err)
	}

	rtpEp, err := transport.Listen(":0")
	if err != nil {
		return nil, fmt.Errorf("opening RTP socket: %w", err)
	}
	rtcpEp, err := transport.Listen(":0")
	if err != nil {
		rtpEp.Close()
		return nil, fmt.Errorf("opening RTCP socket: %w", err)
	}

	return NewSenderTransport(conf, rtpEp, rtcpEp, rtpAddr, rtcpAddr, RealTimeProvider{})
}

// NewSenderTransport builds a sender over already-open endpoints. Used
// directly by tests that wire both roles over in-memory connections.
func NewSenderTransport(conf *config.Config, rtpEp, rtcpEp *transport.Endpoint, rtpAddr, rtcpAddr net.Addr, clock TimeProvider) (*Sender, error) {
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

	s := &Sender{
		conf:      conf,
		state:     NewState(ssrc, conf.ClockRate),
		clock:     clock,
		randFloat: rand.Float64,
		rtpEp:     rtpEp,
		rtcpEp:    rtcpEp,
		rtpAddr:   rtpAddr,
		rtcpAddr:  rtcpAddr,
		srSignal:  make(chan struct{}, 1),
		acks:      make(chan ackEvent, 64),
		log: logrus.WithFields(logrus.Fields{
			"role": "sender",
			"ssrc": fmt.Sprintf("%08x", ssrc),
		}),
	}

	rtpEp.SetHandler(s.handleAckDatagram)
	rtcpEp.SetHandler(s.handleControlDatagram)

	return s, nil
}

// State exposes the shared flow state, mainly for inspection in tests.
func (s *Sender) State() *State {
	return s.state
}

// Run executes the flow: emission runs for the configured packet count,
// reporting and acknowledgment ingestion run alongside. After emission
// completes the sender lingers for late acknowledgments (bounded by the
// ACK timeout) before returning. Sockets stay open until Close.
func (s *Sender) Run(ctx context.Context) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ackDone := make(chan struct{})
	go s.ackLoop(ctx, ackDone)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel() // emission completion releases the report loop
		return s.emitLoop(gctx)
	})
	g.Go(func() error {
		s.reportLoop(gctx)
		return nil
	})
	err := g.Wait()

	select {
	case <-ackDone:
	case <-time.After(s.conf.AckTimeout + time.Second):
	case <-ctx.Done():
	}

	result := &Result{
		LostAcks:      s.state.LostAcks(),
		UnmatchedAcks: s.state.UnmatchedAcks(),
		AverageRTT:    s.state.RTTAverage(),
	}
	result.PacketsSent, result.OctetsSent = s.state.SenderSnapshot()

	s.log.WithFields(logrus.Fields{
		"packets_sent": result.PacketsSent,
		"octets_sent":  result.OctetsSent,
		"lost_acks":    result.LostAcks,
		"avg_rtt":      result.AverageRTT,
	}).Info("sender run finished")

	return result, err
}

// Close releases both sockets.
func (s *Sender) Close() error {
	err := s.rtpEp.Close()
	if cerr := s.rtcpEp.Close(); err == nil {
		err = cerr
	}
	return err
}

// emitLoop transmits the configured number of packets at a fixed
// interval. A simulated drop still advances the sequence counter so the
// peer observes it as a gap; the artificial delay is applied before each
// real transmission.
func (s *Sender) emitLoop(ctx context.Context) error {
	payload := make([]byte, s.conf.PayloadSize)

	for i := 0; i < s.conf.PacketCount; i++ {
		if err := sleepCtx(ctx, 0); err != nil {
			return err
		}

		if s.randFloat() < s.conf.SimulatedLossRate {
			seq, _ := s.state.AdvanceSequence(s.clock.Now())
			s.log.WithField("seq", seq).Info("simulated drop, skipping transmission")
			if err := sleepCtx(ctx, s.conf.Interval); err != nil {
				return err
			}
			continue
		}

		if s.conf.SimulatedDelay > 0 {
			if err := sleepCtx(ctx, s.conf.SimulatedDelay); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		seq, ts := s.state.AdvanceSequence(now)
		data := rtp.NewPacket(s.conf.PayloadType, seq, ts, s.state.SSRC(), payload).Encode()

		if err := s.rtpEp.Send(data, s.rtpAddr); err != nil {
			s.log.WithFields(logrus.Fields{
				"seq":   seq,
				"error": err,
			}).Warn("RTP transmission failed")
			continue
		}

		sent := s.state.RecordTransmit(seq, len(data), s.clock.Now())
		s.log.WithFields(logrus.Fields{
			"seq":       seq,
			"timestamp": ts,
		}).Debug("RTP packet sent")

		if sent%uint32(s.conf.SRInterval) == 0 {
			select {
			case s.srSignal <- struct{}{}:
			default:
			}
		}

		if err := sleepCtx(ctx, s.conf.Interval); err != nil {
			return err
		}
	}

	return nil
}

// reportLoop sends one Sender Report per signal from the emission loop.
func (s *Sender) reportLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Emission may have signaled its final report just before
			// completing; send it rather than dropping it.
			select {
			case <-s.srSignal:
				s.sendReport()
			default:
			}
			return
		case <-s.srSignal:
			s.sendReport()
		}
	}
}

func (s *Sender) sendReport() {
	now := s.clock.Now()
	secs, frac := rtcp.NTPTime(now)
	packetCount, octetCount := s.state.SenderSnapshot()

	sr := &rtcp.SenderReport{
		SSRC:         s.state.SSRC(),
		NTPSeconds:   secs,
		NTPFraction:  frac,
		RTPTimestamp: rtp.MediaTimestamp(now),
		PacketCount:  packetCount,
		OctetCount:   octetCount,
	}

	if err := s.rtcpEp.Send(sr.Encode(), s.rtcpAddr); err != nil {
		s.log.WithField("error", err).Warn("sender report transmission failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"packet_count": packetCount,
		"octet_count":  octetCount,
	}).Info("sender report sent")
}

// ackLoop consumes acknowledgments until none arrive for a full ACK
// timeout, then sweeps everything still outstanding as lost.
func (s *Sender) ackLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(s.conf.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.state.SweepOutstanding()
			return

		case ev := <-s.acks:
			rtt, matched := s.state.ObserveAck(ev.seq, ev.at)
			if matched {
				s.log.WithFields(logrus.Fields{
					"seq": ev.seq,
					"rtt": rtt,
				}).Debug("acknowledgment matched")
			} else {
				s.log.WithField("seq", ev.seq).Warn("unmatched acknowledgment")
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.conf.AckTimeout)

		case <-timer.C:
			lost := s.state.SweepOutstanding()
			s.log.WithField("lost_acks", lost).Info("acknowledgment timeout, sweeping outstanding sends")
			return
		}
	}
}

// handleAckDatagram parses one acknowledgment arriving on the media
// socket and queues it for the ingestion loop.
func (s *Sender) handleAckDatagram(data []byte, addr net.Addr) {
	seq, err := ParseAck(data)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"from":  addr,
			"error": err,
		}).Warn("dropping unparseable acknowledgment")
		return
	}

	select {
	case s.acks <- ackEvent{seq: seq, at: s.clock.Now()}:
	default:
		s.log.WithField("seq", seq).Warn("acknowledgment queue full, dropping")
	}
}

// handleControlDatagram ingests Receiver Reports arriving on the control
// socket. They are informational on the sender side.
func (s *Sender) handleControlDatagram(data []byte, addr net.Addr) {
	rr, err := rtcp.DecodeReceiverReport(data)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"from":  addr,
			"error": err,
		}).Debug("dropping non-RR control datagram")
		return
	}
	s.log.WithField("report", rr.String()).Info("receiver report")
}

// sleepCtx sleeps for d unless the context ends first. A non-positive
// duration only checks for cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
