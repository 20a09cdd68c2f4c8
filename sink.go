package tuncap

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// Sink consumes datagrams. Deliver must not retain d past its return, see Datagram.Clone.
type Sink interface {
	Deliver(d Datagram) error
}

type SinkFunc func(d Datagram) error

func (f SinkFunc) Deliver(d Datagram) error {
	return f(d)
}

// HexSink logs the length and hex encoded contents of every datagram.
type HexSink struct {
	l *logrus.Logger
}

func NewHexSink(l *logrus.Logger) *HexSink {
	return &HexSink{l: l}
}

func (s *HexSink) Deliver(d Datagram) error {
	entry := s.l.WithField("bytes", d.Len())
	if pi, ok := d.PacketInfo(); ok {
		entry = entry.WithField("proto", pi.Proto.String())
	}

	entry.Infof("read %d bytes: [% x]", d.Len(), d.Bytes())
	return nil
}

// MultiSink delivers to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Deliver(d Datagram) error {
	for _, s := range m {
		if err := s.Deliver(d); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink that is an io.Closer.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
