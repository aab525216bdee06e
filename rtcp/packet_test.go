package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderReportRoundTrip(t *testing.T) {
	sr := &SenderReport{
		SSRC:         0xCAFEBABE,
		NTPSeconds:   3900000000,
		NTPFraction:  0x80000000,
		RTPTimestamp: 123456789,
		PacketCount:  50,
		OctetCount:   8600,
	}

	data := sr.Encode()
	require.Equal(t, SenderReportSize, len(data))
	assert.Equal(t, byte(Version<<6), data[0])
	assert.Equal(t, byte(TypeSenderReport), data[1])

	decoded, err := DecodeSenderReport(data)
	require.NoError(t, err)
	assert.Equal(t, sr, decoded)
}

func TestDecodeSenderReportRejections(t *testing.T) {
	valid := (&SenderReport{SSRC: 1}).Encode()

	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{
			name:   "short buffer",
			mangle: func(b []byte) []byte { return b[:SenderReportSize-1] },
		},
		{
			name: "wrong version",
			mangle: func(b []byte) []byte {
				b[0] = b[0]&0x3F | 1<<6
				return b
			},
		},
		{
			name: "wrong packet type",
			mangle: func(b []byte) []byte {
				b[1] = TypeReceiverReport
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, len(valid))
			copy(data, valid)
			_, err := DecodeSenderReport(tt.mangle(data))
			assert.ErrorIs(t, err, ErrMalformedReport)
		})
	}
}

func makeBlock(i int) ReportBlock {
	return ReportBlock{
		SenderSSRC:      uint32(0x1000 + i),
		FractionLost:    uint8(i),
		PacketsLost:     uint32(i * 3),
		HighestSequence: uint32(1000 + i),
		Jitter:          uint32(i * 7),
		LastSR:          uint32(i * 11),
		DelaySinceSR:    uint32(i * 13),
	}
}

func TestReceiverReportRoundTrip(t *testing.T) {
	for _, count := range []int{0, 1, 3, MaxReportBlocks} {
		rr := &ReceiverReport{SSRC: 0xFEEDFACE}
		for i := 0; i < count; i++ {
			rr.Blocks = append(rr.Blocks, makeBlock(i))
		}

		data := rr.Encode()
		require.Equal(t, ReceiverReportHeaderSize+ReportBlockSize*count, len(data), "count %d", count)
		assert.Equal(t, byte(TypeReceiverReport), data[1])

		decoded, err := DecodeReceiverReport(data)
		require.NoError(t, err, "count %d", count)
		assert.Equal(t, rr.SSRC, decoded.SSRC)
		assert.Len(t, decoded.Blocks, count)
		if count > 0 {
			assert.Equal(t, rr.Blocks, decoded.Blocks)
		}
	}
}

func TestReceiverReportPacketsLostTruncatedTo24Bits(t *testing.T) {
	rr := &ReceiverReport{
		SSRC:   1,
		Blocks: []ReportBlock{{PacketsLost: 0x01FFFFFF}},
	}

	decoded, err := DecodeReceiverReport(rr.Encode())
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00FFFFFF), decoded.Blocks[0].PacketsLost)
}

func TestDecodeReceiverReportTruncatedBlocks(t *testing.T) {
	rr := &ReceiverReport{
		SSRC:   2,
		Blocks: []ReportBlock{makeBlock(0), makeBlock(1), makeBlock(2)},
	}
	data := rr.Encode()

	// Keep the header, two whole blocks, and half of the third. The
	// partial block is dropped without failing the packet.
	truncated := data[:ReceiverReportHeaderSize+2*ReportBlockSize+12]
	decoded, err := DecodeReceiverReport(truncated)
	require.NoError(t, err)
	assert.Len(t, decoded.Blocks, 2)
	assert.Equal(t, rr.Blocks[:2], decoded.Blocks)
}

func TestDecodeReceiverReportRejections(t *testing.T) {
	valid := (&ReceiverReport{SSRC: 3}).Encode()

	_, err := DecodeReceiverReport(valid[:ReceiverReportHeaderSize-1])
	assert.ErrorIs(t, err, ErrMalformedReport)

	wrongType := make([]byte, len(valid))
	copy(wrongType, valid)
	wrongType[1] = TypeSenderReport
	_, err = DecodeReceiverReport(wrongType)
	assert.ErrorIs(t, err, ErrMalformedReport)

	wrongVersion := make([]byte, len(valid))
	copy(wrongVersion, valid)
	wrongVersion[0] = wrongVersion[0]&0x3F | 3<<6
	_, err = DecodeReceiverReport(wrongVersion)
	assert.ErrorIs(t, err, ErrMalformedReport)
}
