package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/rtpmeter/rtpmeter/config"
	"github.com/rtpmeter/rtpmeter/flow"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "path to YAML config file",
	},
	&cli.IntFlag{
		Name:  "rtp-port",
		Usage: "UDP port for RTP media and acknowledgments",
	},
	&cli.IntFlag{
		Name:  "rtcp-port",
		Usage: "UDP port for RTCP sender/receiver reports",
	},
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "enable per-packet debug logging",
	},
}

func main() {
	app := &cli.App{
		Name:  "rtpmeter",
		Usage: "RTP/RTCP transport measurement endpoints",
		Commands: []*cli.Command{
			{
				Name:  "sender",
				Usage: "emit a paced RTP flow with periodic sender reports",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "remote",
						Usage: "receiver host",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "number of packets to emit",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "inter-packet interval",
					},
					&cli.Float64Flag{
						Name:  "loss",
						Usage: "simulated local loss probability [0,1)",
						Value: -1,
					},
					&cli.DurationFlag{
						Name:  "delay",
						Usage: "artificial delay before each transmission",
						Value: -1,
					},
				}, baseFlags...),
				Action: runSender,
			},
			{
				Name:   "receiver",
				Usage:  "consume an RTP flow, acknowledge packets, and log per-report metrics",
				Flags:  baseFlags,
				Action: runReceiver,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	conf := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}

	if c.IsSet("rtp-port") {
		conf.RTPPort = c.Int("rtp-port")
	}
	if c.IsSet("rtcp-port") {
		conf.RTCPPort = c.Int("rtcp-port")
	}
	if c.IsSet("remote") {
		conf.RemoteHost = c.String("remote")
	}
	if c.IsSet("count") {
		conf.PacketCount = c.Int("count")
	}
	if c.IsSet("interval") {
		conf.Interval = c.Duration("interval")
	}
	if c.IsSet("loss") && c.Float64("loss") >= 0 {
		conf.SimulatedLossRate = c.Float64("loss")
	}
	if c.IsSet("delay") && c.Duration("delay") >= 0 {
		conf.SimulatedDelay = c.Duration("delay")
	}

	if c.Bool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	return conf, conf.Validate()
}

func runSender(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}

	sender, err := flow.NewSender(conf)
	if err != nil {
		return err
	}
	defer sender.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := sender.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"packets_sent": result.PacketsSent,
		"octets_sent":  result.OctetsSent,
		"lost_acks":    result.LostAcks,
		"avg_rtt":      result.AverageRTT,
	}).Info("flow complete")
	return nil
}

func runReceiver(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}

	receiver, err := flow.NewReceiver(conf)
	if err != nil {
		return err
	}
	defer receiver.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Logging collaborator: drain the metrics stream into structured
	// log records until interrupted.
	go func() {
		for sample := range receiver.Samples() {
			logrus.WithFields(logrus.Fields{
				"timestamp_local":  sample.Timestamp.Format(time.RFC3339Nano),
				"ssrc":             fmt.Sprintf("%08x", sample.SSRC),
				"rtp_timestamp":    sample.RTPTimestamp,
				"packets_sent":     sample.PacketsSent,
				"packets_received": sample.PacketsReceived,
				"packets_lost":     sample.PacketsLost,
				"loss_rate":        sample.LossRate,
				"jitter_seconds":   sample.JitterSeconds,
				"delay_ms":         sample.DelayMS,
			}).Info("metrics sample")
		}
	}()

	err = receiver.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
