package tuncap

import (
	"context"
	"fmt"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/tuncap/config"
	"github.com/slackhq/tuncap/overlay"
	"github.com/slackhq/tuncap/util"
	"go.yaml.in/yaml/v3"
)

type m = map[string]any

// Main builds a Control from c. If dev is nil the device described by the tun.* keys is acquired, otherwise dev
// is used as is and owned by the returned Control. With configTest set nothing is acquired or started.
func Main(c *config.C, configTest bool, buildVersion string, logger *logrus.Logger, dev overlay.Device) (*Control, error) {
	l := logger
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Print the config if in test, the exit comes later
	if configTest {
		b, err := yaml.Marshal(c.Settings)
		if err != nil {
			return nil, err
		}

		// Print the final config
		l.Println(string(b))
	}

	err := configLogger(l, c)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to configure the logger", err)
	}

	c.RegisterReloadCallback(func(c *config.C) {
		err := configLogger(l, c)
		if err != nil {
			l.WithError(err).Error("Failed to configure the logger")
		}
	})

	name, mode, opts, err := overlay.OptionsFromConfig(c)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to parse the tun config", err)
	}

	statsStart, err := startStats(l, c, metrics.DefaultRegistry, buildVersion, configTest)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to start stats emitter", err)
	}

	if configTest {
		l.WithField("device", name).WithField("mode", mode.String()).WithField("capacity", opts.Capacity(mode)).
			Info("Config test passed")
		return &Control{l: l, ctx: context.Background(), cancel: func() {}}, nil
	}

	if dev == nil {
		dev, err = overlay.Open(l, name, mode, opts)
		if err != nil {
			return nil, util.NewContextualError("Failed to get a tun/tap device", m{"device": name, "mode": mode.String()}, err)
		}
	}

	sinks, err := sinksFromConfig(l, c, dev)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.CatchHUP(ctx)

	return &Control{
		l:          l,
		ctx:        ctx,
		cancel:     cancel,
		capture:    NewCapture(l, dev, sinks, metrics.DefaultRegistry),
		activate:   c.GetBool("tun.activate", false),
		statsStart: statsStart,
	}, nil
}

func sinksFromConfig(l *logrus.Logger, c *config.C, dev overlay.Device) (MultiSink, error) {
	var sinks MultiSink

	if c.GetBool("capture.log_datagrams", true) {
		sinks = append(sinks, NewHexSink(l))
	}

	if path := c.GetString("capture.pcap.path", ""); path != "" {
		ps, err := NewPcapSink(path, dev.Mode(), dev.Capacity())
		if err != nil {
			return nil, util.NewContextualError("Failed to open pcap file", m{"path": path}, err)
		}
		l.WithField("path", path).Info("Writing datagrams to pcap file")
		sinks = append(sinks, ps)
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no datagram consumers configured, enable capture.log_datagrams or capture.pcap.path")
	}

	return sinks, nil
}
