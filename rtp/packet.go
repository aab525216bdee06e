// Package rtp implements encoding and decoding of RTP media packets
// as described by RFC 3550.
//
// The codec is deliberately tolerant on the construction side and strict
// on the wire side: out-of-range field values are masked to their field
// width before encoding, while Decode rejects buffers that are too short
// or carry the wrong protocol version.
package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// Version is the only RTP protocol version this codec accepts.
	Version = 2

	// HeaderSize is the fixed RTP header length in bytes.
	HeaderSize = 12

	// DefaultClockRate is the conventional 90 kHz media clock.
	DefaultClockRate = 90000
)

// ErrMalformedPacket indicates a datagram that cannot be an RTP packet.
// Callers are expected to log and discard; this is never fatal.
var ErrMalformedPacket = errors.New("malformed RTP packet")

// Packet represents a single RTP media packet.
//
// A Packet is created per outgoing media unit and is not modified after
// construction. The payload may be empty.
type Packet struct {
	Version        uint8
	Padding        uint8
	Extension      uint8
	CSRCCount      uint8
	Marker         uint8
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	Payload        []byte
}

// NewPacket creates an RTP packet with the given fields masked to their
// wire widths. Oversized values are truncated, not rejected.
func NewPacket(payloadType uint8, sequenceNumber uint16, timestamp, ssrc uint32, payload []byte) *Packet {
	return &Packet{
		Version:        Version,
		PayloadType:    payloadType & 0x7F,
		SequenceNumber: sequenceNumber,
		Timestamp:      timestamp,
		SSRC:           ssrc,
		Payload:        payload,
	}
}

// Encode serializes the packet into a 12-byte header followed by the
// payload. Encoding never fails; every field is masked to its width.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))

	buf[0] = (p.Version&0x03)<<6 | (p.Padding&0x01)<<5 | (p.Extension&0x01)<<4 | p.CSRCCount&0x0F
	buf[1] = (p.Marker&0x01)<<7 | p.PayloadType&0x7F
	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)
	copy(buf[HeaderSize:], p.Payload)

	return buf
}

// Decode parses an RTP packet from data. It returns ErrMalformedPacket
// (wrapped with a reason) when data is shorter than the fixed header or
// carries a version other than 2. The payload slice is copied out of data.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedPacket, len(data), HeaderSize)
	}

	version := data[0] >> 6 & 0x03
	if version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedPacket, version)
	}

	p := &Packet{
		Version:        version,
		Padding:        data[0] >> 5 & 0x01,
		Extension:      data[0] >> 4 & 0x01,
		CSRCCount:      data[0] & 0x0F,
		Marker:         data[1] >> 7 & 0x01,
		PayloadType:    data[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
		SSRC:           binary.BigEndian.Uint32(data[8:12]),
		Payload:        make([]byte, len(data)-HeaderSize),
	}
	copy(p.Payload, data[HeaderSize:])

	return p, nil
}

// MediaTimestamp converts a wall-clock instant to a 32-bit RTP timestamp
// in DefaultClockRate ticks, wrapping modulo 2^32.
func MediaTimestamp(t time.Time) uint32 {
	ticks := float64(t.UnixNano()) / float64(time.Second) * DefaultClockRate
	return uint32(uint64(ticks) & 0xFFFFFFFF)
}

// String renders a compact one-line summary for log output.
func (p *Packet) String() string {
	return fmt.Sprintf("RTP[seq=%d ts=%d ssrc=%08x pt=%d payload=%dB]",
		p.SequenceNumber, p.Timestamp, p.SSRC, p.PayloadType, len(p.Payload))
}
