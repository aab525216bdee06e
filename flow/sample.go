package flow

import (
	"sync"
	"time"
)

// Sample is one derived-metrics record, produced by the receiver each
// time a Sender Report is processed. Samples are the only interface the
// logging and plotting collaborators consume.
type Sample struct {
	Timestamp       time.Time
	SSRC            uint32
	RTPTimestamp    uint32
	PacketsSent     uint32
	PacketsReceived uint32
	PacketsLost     uint32
	LossRate        float64
	JitterSeconds   float64
	DelayMS         float64
}

// Collector fans samples out to a single buffered subscription channel
// and keeps the most recent sample for polling.
//
// Publishing never blocks: when the subscriber falls behind, the oldest
// buffered sample is dropped to make room.
type Collector struct {
	mu   sync.Mutex
	ch   chan Sample
	last Sample
	has  bool
}

// NewCollector creates a collector whose subscription channel buffers up
// to size samples. A non-positive size gets a small default.
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = 16
	}
	return &Collector{ch: make(chan Sample, size)}
}

// Publish records s as the latest sample and offers it to the
// subscription channel.
func (c *Collector) Publish(s Sample) {
	c.mu.Lock()
	c.last = s
	c.has = true

	select {
	case c.ch <- s:
	default:
		select {
		case <-c.ch:
		default:
		}
		select {
		case c.ch <- s:
		default:
		}
	}
	c.mu.Unlock()
}

// Samples returns the subscription channel.
func (c *Collector) Samples() <-chan Sample {
	return c.ch
}

// Last returns the most recently published sample, and whether any
// sample has been published yet.
func (c *Collector) Last() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.has
}
