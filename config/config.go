// Package config holds the startup configuration for a measurement
// endpoint: transport addressing, flow pacing, report cadence, and the
// simulated network impairments used for experiments.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default transport and pacing values, matching the conventional
// RTP/RTCP port pair.
const (
	DefaultRTPPort  = 5005
	DefaultRTCPPort = 5006

	DefaultPacketCount = 20
	DefaultInterval    = 500 * time.Millisecond
	DefaultSRInterval  = 5
	DefaultAckTimeout  = 3 * time.Second
	DefaultPayloadSize = 160
	DefaultPayloadType = 96
	DefaultClockRate   = 90000
)

// Config describes one endpoint of a measurement flow.
type Config struct {
	// RemoteHost is the peer address a sender transmits to. Ignored by
	// receivers, which only bind locally.
	RemoteHost string `yaml:"remote_host,omitempty"`

	RTPPort  int `yaml:"rtp_port,omitempty"`
	RTCPPort int `yaml:"rtcp_port,omitempty"`

	// SSRC identifies the flow. Zero means pick a random identifier at
	// flow start.
	SSRC        uint32 `yaml:"ssrc,omitempty"`
	PayloadType uint8  `yaml:"payload_type,omitempty"`
	ClockRate   uint32 `yaml:"clock_rate,omitempty"`

	PacketCount int           `yaml:"packet_count,omitempty"`
	Interval    time.Duration `yaml:"interval,omitempty"`
	PayloadSize int           `yaml:"payload_size,omitempty"`

	// SRInterval is the number of successfully transmitted packets
	// between sender reports.
	SRInterval int `yaml:"sr_interval,omitempty"`

	// AckTimeout bounds the acknowledgment-ingestion loop; expiry sweeps
	// all outstanding sends as lost.
	AckTimeout time.Duration `yaml:"ack_timeout,omitempty"`

	// Simulated impairments applied by the emission loop.
	SimulatedLossRate float64       `yaml:"simulated_loss_rate,omitempty"`
	SimulatedDelay    time.Duration `yaml:"simulated_delay,omitempty"`
}

// Default returns a configuration with the conventional defaults
// applied.
func Default() *Config {
	return &Config{
		RemoteHost:        "127.0.0.1",
		RTPPort:           DefaultRTPPort,
		RTCPPort:          DefaultRTCPPort,
		PayloadType:       DefaultPayloadType,
		ClockRate:         DefaultClockRate,
		PacketCount:       DefaultPacketCount,
		Interval:          DefaultInterval,
		PayloadSize:       DefaultPayloadSize,
		SRInterval:        DefaultSRInterval,
		AckTimeout:        DefaultAckTimeout,
		SimulatedLossRate: 0.1,
		SimulatedDelay:    50 * time.Millisecond,
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	conf := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate rejects configurations no flow could run with.
func (c *Config) Validate() error {
	if c.RTPPort <= 0 || c.RTPPort > 65535 {
		return fmt.Errorf("rtp_port %d out of range", c.RTPPort)
	}
	if c.RTCPPort <= 0 || c.RTCPPort > 65535 {
		return fmt.Errorf("rtcp_port %d out of range", c.RTCPPort)
	}
	if c.RTPPort == c.RTCPPort {
		return fmt.Errorf("rtp_port and rtcp_port must differ, both %d", c.RTPPort)
	}
	if c.PacketCount <= 0 {
		return fmt.Errorf("packet_count must be positive, got %d", c.PacketCount)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.SRInterval <= 0 {
		return fmt.Errorf("sr_interval must be positive, got %d", c.SRInterval)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("ack_timeout must be positive, got %s", c.AckTimeout)
	}
	if c.SimulatedLossRate < 0 || c.SimulatedLossRate >= 1 {
		return fmt.Errorf("simulated_loss_rate must be in [0,1), got %g", c.SimulatedLossRate)
	}
	if c.SimulatedDelay < 0 {
		return fmt.Errorf("simulated_delay must not be negative, got %s", c.SimulatedDelay)
	}
	if c.ClockRate == 0 {
		return fmt.Errorf("clock_rate cannot be zero")
	}
	return nil
}

// RTPAddr returns the peer RTP address for a sender.
func (c *Config) RTPAddr() string {
	return fmt.Sprintf("%s:%d", c.RemoteHost, c.RTPPort)
}

// RTCPAddr returns the peer RTCP address for a sender.
func (c *Config) RTCPAddr() string {
	return fmt.Sprintf("%s:%d", c.RemoteHost, c.RTCPPort)
}
