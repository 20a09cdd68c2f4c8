package overlay

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// TestTun is an in-memory Device. Datagrams placed with Send are returned by Read in the same order,
// with the same truncation semantics as the kernel.
type TestTun struct {
	Device string
	mode   Mode
	opts   Options
	l      *logrus.Logger

	rxPackets chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Closes counts calls to Close that actually released the device
	Closes atomic.Int32
	// Reads counts Read calls, including ones that failed
	Reads atomic.Int32
	// ReadErr, when set, is returned by every Read after the queue drains
	ReadErr atomic.Pointer[error]

	Activated atomic.Bool
}

func NewTestTun(l *logrus.Logger, name string, mode Mode, o Options) *TestTun {
	return &TestTun{
		Device:    name,
		mode:      mode,
		opts:      o,
		l:         l,
		rxPackets: make(chan []byte, 64),
		done:      make(chan struct{}),
	}
}

// Send will place a copy of packet onto the receive queue
func (t *TestTun) Send(packet []byte) {
	if t.closed.Load() {
		return
	}

	if t.l.Level >= logrus.DebugLevel {
		t.l.WithField("dataLen", len(packet)).Debug("Tun receiving injected packet")
	}

	p := make([]byte, len(packet))
	copy(p, packet)
	select {
	case t.rxPackets <- p:
	case <-t.done:
	}
}

// Fail makes Read return err once every queued datagram has been read
func (t *TestTun) Fail(err error) {
	t.ReadErr.Store(&err)
	select {
	case t.rxPackets <- nil:
	case <-t.done:
	}
}

func (t *TestTun) Read(b []byte) (int, error) {
	t.Reads.Add(1)

	if t.closed.Load() {
		return 0, os.ErrClosed
	}

	var p []byte
	select {
	case p = <-t.rxPackets:
	case <-t.done:
		return 0, os.ErrClosed
	}

	if p == nil {
		if err := t.ReadErr.Load(); err != nil {
			return 0, *err
		}
	}

	return copy(b, p), nil
}

func (t *TestTun) Activate() error {
	t.Activated.Store(true)
	return nil
}

func (t *TestTun) Name() string {
	return t.Device
}

func (t *TestTun) Mode() Mode {
	return t.mode
}

func (t *TestTun) Capacity() int {
	return t.opts.Capacity(t.mode)
}

func (t *TestTun) PacketInfo() bool {
	return t.opts.PacketInfo
}

func (t *TestTun) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.Closes.Add(1)
		close(t.done)
	})
	return nil
}
