package rtcp

import "time"

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01).
const ntpEpochOffset = 2208988800

// NTPTime converts a wall-clock instant to the 64-bit NTP fixed-point
// representation: 32-bit seconds since 1900 plus a 2^32-scaled fraction.
func NTPTime(t time.Time) (seconds, fraction uint32) {
	unix := float64(t.UnixNano()) / float64(time.Second)
	ntp := unix + ntpEpochOffset
	seconds = uint32(uint64(ntp) & 0xFFFFFFFF)
	fraction = uint32(uint64((ntp - float64(uint64(ntp))) * (1 << 32)))
	return seconds, fraction
}

// UnixFromNTP reconstructs the Unix time, in seconds, from the two NTP
// timestamp halves. The result is only as accurate as the two clocks
// involved are synchronized.
func UnixFromNTP(seconds, fraction uint32) float64 {
	return float64(seconds) + float64(fraction)/(1<<32) - ntpEpochOffset
}
