package flow

import (
	"fmt"
	"strconv"
	"strings"
)

// ackPrefix is the tag that opens every out-of-band acknowledgment sent
// back over the media socket.
const ackPrefix = "ACK_RTP"

// FormatAck builds the wire form of an acknowledgment for sequence seq:
// the ASCII text "ACK_RTP,<seq>".
func FormatAck(seq uint16) []byte {
	return []byte(fmt.Sprintf("%s,%d", ackPrefix, seq))
}

// ParseAck extracts the acknowledged sequence number from a datagram.
// Anything that is not exactly an ACK_RTP line is rejected.
func ParseAck(data []byte) (uint16, error) {
	text := string(data)
	tag, seqText, found := strings.Cut(text, ",")
	if !found || tag != ackPrefix {
		return 0, fmt.Errorf("not an acknowledgment: %q", text)
	}
	seq, err := strconv.ParseUint(seqText, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("bad acknowledgment sequence %q: %w", seqText, err)
	}
	return uint16(seq), nil
}
