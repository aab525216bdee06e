// Package rtcp implements encoding and decoding of the RTCP control
// packets used for transport measurement: Sender Reports (SR) and
// Receiver Reports (RR), per RFC 3550.
//
// Decode functions return nil-with-error for anything that is not a
// well-formed packet of the expected type; callers log and discard.
// A Receiver Report that declares more blocks than its buffer carries is
// not rejected: the complete blocks are kept and the truncated tail is
// silently dropped.
package rtcp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the only RTCP protocol version this codec accepts.
const Version = 2

// RTCP packet types (RFC 3550 section 12.1).
const (
	TypeSenderReport   = 200
	TypeReceiverReport = 201
	TypeSourceDesc     = 202
	TypeGoodbye        = 203
	TypeApplication    = 204
)

const (
	// SenderReportSize is the fixed encoded length of an SR with no
	// report blocks.
	SenderReportSize = 28

	// ReceiverReportHeaderSize is the encoded length of an RR before
	// any report blocks.
	ReceiverReportHeaderSize = 8

	// ReportBlockSize is the encoded length of one RR report block.
	ReportBlockSize = 24

	// MaxReportBlocks is the largest block count the 5-bit report-count
	// field can carry.
	MaxReportBlocks = 31
)

// ErrMalformedReport indicates a datagram that cannot be a control
// packet of the requested type. Never fatal.
var ErrMalformedReport = errors.New("malformed RTCP packet")

// SenderReport carries a sender's self-reported cumulative counters at
// one instant. Each SR supersedes the previous one.
type SenderReport struct {
	SSRC         uint32
	NTPSeconds   uint32
	NTPFraction  uint32
	RTPTimestamp uint32
	PacketCount  uint32
	OctetCount   uint32
}

// Encode serializes the report to exactly SenderReportSize bytes.
func (sr *SenderReport) Encode() []byte {
	buf := make([]byte, SenderReportSize)

	buf[0] = Version << 6 // padding 0, report count 0
	buf[1] = TypeSenderReport
	binary.BigEndian.PutUint16(buf[2:4], 6) // length in words minus one
	binary.BigEndian.PutUint32(buf[4:8], sr.SSRC)
	binary.BigEndian.PutUint32(buf[8:12], sr.NTPSeconds)
	binary.BigEndian.PutUint32(buf[12:16], sr.NTPFraction)
	binary.BigEndian.PutUint32(buf[16:20], sr.RTPTimestamp)
	binary.BigEndian.PutUint32(buf[20:24], sr.PacketCount)
	binary.BigEndian.PutUint32(buf[24:28], sr.OctetCount)

	return buf
}

// DecodeSenderReport parses an SR from data. It fails for buffers under
// 28 bytes, a version other than 2, or a packet type other than 200.
func DecodeSenderReport(data []byte) (*SenderReport, error) {
	if len(data) < SenderReportSize {
		return nil, fmt.Errorf("%w: %d bytes, SR needs %d", ErrMalformedReport, len(data), SenderReportSize)
	}
	if v := data[0] >> 6 & 0x03; v != Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedReport, v)
	}
	if data[1] != TypeSenderReport {
		return nil, fmt.Errorf("%w: packet type %d, want %d", ErrMalformedReport, data[1], TypeSenderReport)
	}

	return &SenderReport{
		SSRC:         binary.BigEndian.Uint32(data[4:8]),
		NTPSeconds:   binary.BigEndian.Uint32(data[8:12]),
		NTPFraction:  binary.BigEndian.Uint32(data[12:16]),
		RTPTimestamp: binary.BigEndian.Uint32(data[16:20]),
		PacketCount:  binary.BigEndian.Uint32(data[20:24]),
		OctetCount:   binary.BigEndian.Uint32(data[24:28]),
	}, nil
}

// String renders a compact one-line summary for log output.
func (sr *SenderReport) String() string {
	return fmt.Sprintf("RTCP SR[ssrc=%08x packets=%d octets=%d rtp_ts=%d]",
		sr.SSRC, sr.PacketCount, sr.OctetCount, sr.RTPTimestamp)
}

// ReportBlock is one per-source reception summary inside an RR.
type ReportBlock struct {
	SenderSSRC      uint32
	FractionLost    uint8
	PacketsLost     uint32 // 24-bit on the wire, truncated cumulative estimate
	HighestSequence uint32
	Jitter          uint32
	LastSR          uint32
	DelaySinceSR    uint32
}

// ReceiverReport summarizes reception quality for up to MaxReportBlocks
// sources.
type ReceiverReport struct {
	SSRC   uint32
	Blocks []ReportBlock
}

// Encode serializes the report to 8 + 24*len(Blocks) bytes. The block
// count is masked to the 5-bit report-count field; packetsLost is
// truncated to 24 bits.
func (rr *ReceiverReport) Encode() []byte {
	count := len(rr.Blocks)
	buf := make([]byte, ReceiverReportHeaderSize+ReportBlockSize*count)

	buf[0] = Version<<6 | uint8(count)&0x1F
	buf[1] = TypeReceiverReport
	binary.BigEndian.PutUint16(buf[2:4], uint16(1+6*count))
	binary.BigEndian.PutUint32(buf[4:8], rr.SSRC)

	off := ReceiverReportHeaderSize
	for _, b := range rr.Blocks {
		binary.BigEndian.PutUint32(buf[off:off+4], b.SenderSSRC)
		binary.BigEndian.PutUint32(buf[off+4:off+8], uint32(b.FractionLost)<<24|b.PacketsLost&0xFFFFFF)
		binary.BigEndian.PutUint32(buf[off+8:off+12], b.HighestSequence)
		binary.BigEndian.PutUint32(buf[off+12:off+16], b.Jitter)
		binary.BigEndian.PutUint32(buf[off+16:off+20], b.LastSR)
		binary.BigEndian.PutUint32(buf[off+20:off+24], b.DelaySinceSR)
		off += ReportBlockSize
	}

	return buf
}

// DecodeReceiverReport parses an RR from data. It fails for buffers
// under 8 bytes, a version other than 2, or a packet type other than
// 201. Declared blocks that do not fit in the buffer are dropped without
// failing the whole packet.
func DecodeReceiverReport(data []byte) (*ReceiverReport, error) {
	if len(data) < ReceiverReportHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, RR needs at least %d", ErrMalformedReport, len(data), ReceiverReportHeaderSize)
	}
	if v := data[0] >> 6 & 0x03; v != Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedReport, v)
	}
	if data[1] != TypeReceiverReport {
		return nil, fmt.Errorf("%w: packet type %d, want %d", ErrMalformedReport, data[1], TypeReceiverReport)
	}

	declared := int(data[0] & 0x1F)
	rr := &ReceiverReport{
		SSRC: binary.BigEndian.Uint32(data[4:8]),
	}

	off := ReceiverReportHeaderSize
	for i := 0; i < declared; i++ {
		if off+ReportBlockSize > len(data) {
			break // truncated tail, keep what we have
		}
		lostWord := binary.BigEndian.Uint32(data[off+4 : off+8])
		rr.Blocks = append(rr.Blocks, ReportBlock{
			SenderSSRC:      binary.BigEndian.Uint32(data[off : off+4]),
			FractionLost:    uint8(lostWord >> 24),
			PacketsLost:     lostWord & 0xFFFFFF,
			HighestSequence: binary.BigEndian.Uint32(data[off+8 : off+12]),
			Jitter:          binary.BigEndian.Uint32(data[off+12 : off+16]),
			LastSR:          binary.BigEndian.Uint32(data[off+16 : off+20]),
			DelaySinceSR:    binary.BigEndian.Uint32(data[off+20 : off+24]),
		})
		off += ReportBlockSize
	}

	return rr, nil
}

// String renders a compact one-line summary for log output.
func (rr *ReceiverReport) String() string {
	if len(rr.Blocks) == 0 {
		return fmt.Sprintf("RTCP RR[ssrc=%08x 0 blocks]", rr.SSRC)
	}
	b := rr.Blocks[0]
	return fmt.Sprintf("RTCP RR[ssrc=%08x %d block(s) lost=%d jitter=%d seq=%d]",
		rr.SSRC, len(rr.Blocks), b.PacketsLost, b.Jitter, b.HighestSequence)
}
