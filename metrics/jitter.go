package metrics

import (
	"math"
	"time"
)

// JitterEstimator computes the RFC 3550 interarrival jitter: an
// exponential moving average (gain 1/16) of the deviation between the
// spacing of packets on the wire and the spacing implied by their media
// timestamps.
//
// The estimate is kept in seconds. The first observation only records
// the reference pair and leaves the estimate untouched.
type JitterEstimator struct {
	clockRate     float64
	initialized   bool
	lastTimestamp uint32
	lastArrival   time.Time
	estimate      float64
}

// NewJitterEstimator creates an estimator for a media clock running at
// clockRate ticks per second (90000 for the conventional video clock).
func NewJitterEstimator(clockRate uint32) *JitterEstimator {
	return &JitterEstimator{clockRate: float64(clockRate)}
}

// Observe feeds one arrival: the packet's media timestamp and the local
// arrival instant. It returns the updated estimate in seconds.
func (j *JitterEstimator) Observe(rtpTimestamp uint32, arrival time.Time) float64 {
	if !j.initialized {
		j.initialized = true
		j.lastTimestamp = rtpTimestamp
		j.lastArrival = arrival
		return j.estimate
	}

	arrivalDelta := arrival.Sub(j.lastArrival).Seconds()
	mediaDelta := (float64(rtpTimestamp) - float64(j.lastTimestamp)) / j.clockRate
	d := arrivalDelta - mediaDelta

	j.estimate += (math.Abs(d) - j.estimate) / 16

	j.lastTimestamp = rtpTimestamp
	j.lastArrival = arrival
	return j.estimate
}

// Estimate returns the current jitter estimate in seconds.
func (j *JitterEstimator) Estimate() float64 {
	return j.estimate
}

// ClockUnits returns the current estimate converted to media clock
// ticks, as carried in RTCP report blocks.
func (j *JitterEstimator) ClockUnits() uint32 {
	return uint32(j.estimate * j.clockRate)
}
