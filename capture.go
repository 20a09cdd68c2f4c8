package tuncap

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/tuncap/overlay"
	"github.com/slackhq/tuncap/util"
)

// Datagram is a view into the receive buffer. It is only valid until the next receive, Clone it to keep it.
type Datagram struct {
	b          []byte
	packetInfo bool
}

func (d Datagram) Len() int {
	return len(d.b)
}

// Bytes returns the datagram exactly as the device delivered it, including any packet information prefix.
func (d Datagram) Bytes() []byte {
	return d.b
}

// Payload returns the datagram without its packet information prefix.
func (d Datagram) Payload() []byte {
	if d.packetInfo && len(d.b) >= overlay.PacketInfoLen {
		return d.b[overlay.PacketInfoLen:]
	}
	return d.b
}

func (d Datagram) PacketInfo() (overlay.PacketInfo, bool) {
	if !d.packetInfo {
		return overlay.PacketInfo{}, false
	}
	return overlay.ParsePacketInfo(d.b)
}

// Clone copies the datagram out of the receive buffer.
func (d Datagram) Clone() []byte {
	return append(make([]byte, 0, len(d.b)), d.b...)
}

type captureMetrics struct {
	datagrams  metrics.Counter
	bytes      metrics.Counter
	oversized  metrics.Counter
	zeroLength metrics.Counter
}

func newCaptureMetrics(r metrics.Registry) *captureMetrics {
	if r == nil {
		r = metrics.DefaultRegistry
	}

	return &captureMetrics{
		datagrams:  metrics.GetOrRegisterCounter("capture.datagrams", r),
		bytes:      metrics.GetOrRegisterCounter("capture.bytes", r),
		oversized:  metrics.GetOrRegisterCounter("capture.oversized", r),
		zeroLength: metrics.GetOrRegisterCounter("capture.zero_length", r),
	}
}

// Capture owns a device and its receive buffer and hands every datagram to a Sink.
// Only Close may be called from another goroutine.
type Capture struct {
	dev      overlay.Device
	sink     Sink
	capacity int

	// one byte past capacity so an oversized datagram is visible instead of silently truncated
	buf []byte

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error

	metrics *captureMetrics
	l       *logrus.Logger
}

// NewCapture builds a loop over dev. A nil sink discards every datagram until AddSink is used.
func NewCapture(l *logrus.Logger, dev overlay.Device, sink Sink, r metrics.Registry) *Capture {
	if sink == nil {
		sink = MultiSink{}
	}

	capacity := dev.Capacity()
	return &Capture{
		dev:      dev,
		sink:     sink,
		capacity: capacity,
		buf:      make([]byte, capacity+1),
		metrics:  newCaptureMetrics(r),
		l:        l,
	}
}

// AddSink appends s to the consumers. It must be called before Run.
func (c *Capture) AddSink(s Sink) {
	if ms, ok := c.sink.(MultiSink); ok {
		c.sink = append(ms, s)
		return
	}
	c.sink = MultiSink{c.sink, s}
}

func (c *Capture) Capacity() int {
	return c.capacity
}

// Receive blocks until one datagram is read. A datagram larger than Capacity is consumed from the device and
// reported as overlay.ErrOversizedDatagram.
func (c *Capture) Receive() (Datagram, error) {
	n, err := c.dev.Read(c.buf)
	if err != nil {
		return Datagram{}, err
	}

	if n > c.capacity {
		c.metrics.oversized.Inc(1)
		return Datagram{}, fmt.Errorf("%w: more than %d bytes", overlay.ErrOversizedDatagram, c.capacity)
	}

	c.metrics.datagrams.Inc(1)
	c.metrics.bytes.Inc(int64(n))
	if n == 0 {
		c.metrics.zeroLength.Inc(1)
	}

	return Datagram{b: c.buf[:n], packetInfo: c.dev.PacketInfo()}, nil
}

// Run receives and delivers datagrams until a fatal error. It returns nil only when Close stopped it.
// On any other exit the device has already been released.
func (c *Capture) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.l.WithField("device", c.dev.Name()).WithField("capacity", c.capacity).Info("Capture loop started")

	for {
		d, err := c.Receive()
		if err != nil {
			if errors.Is(err, overlay.ErrOversizedDatagram) {
				c.l.WithField("device", c.dev.Name()).WithField("capacity", c.capacity).
					Warn("Dropped oversized datagram")
				continue
			}

			if c.closing.Load() {
				return nil
			}

			c.release()
			return util.NewContextualError(
				"Error while reading datagram",
				map[string]any{"device": c.dev.Name()},
				fmt.Errorf("%w: %w", overlay.ErrDeviceTornDown, err),
			)
		}

		if err = c.sink.Deliver(d); err != nil {
			if c.closing.Load() {
				return nil
			}

			c.release()
			return util.NewContextualError(
				"Datagram consumer failed",
				map[string]any{"device": c.dev.Name(), "bytes": d.Len()},
				err,
			)
		}
	}
}

// Close stops Run by releasing the device. Safe to call more than once and from any goroutine.
func (c *Capture) Close() error {
	c.closing.Store(true)
	return c.release()
}

func (c *Capture) release() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.dev.Close()
	})
	return c.closeErr
}
