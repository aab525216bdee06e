package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckRoundTrip(t *testing.T) {
	for _, seq := range []uint16{0, 1, 42, 65535} {
		data := FormatAck(seq)
		got, err := ParseAck(data)
		require.NoError(t, err)
		assert.Equal(t, seq, got)
	}
}

func TestFormatAckWireForm(t *testing.T) {
	assert.Equal(t, []byte("ACK_RTP,7"), FormatAck(7))
}

func TestParseAckRejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"wrong tag", "NACK_RTP,5"},
		{"missing sequence", "ACK_RTP"},
		{"non-numeric sequence", "ACK_RTP,abc"},
		{"sequence out of range", "ACK_RTP,70000"},
		{"negative sequence", "ACK_RTP,-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAck([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
