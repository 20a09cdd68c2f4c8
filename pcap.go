package tuncap

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/slackhq/tuncap/overlay"
)

// PcapSink appends every datagram to a pcap stream. The packet information prefix is not written.
type PcapSink struct {
	w   *pcapgo.Writer
	c   io.Closer
	now func() time.Time
}

func linkType(mode overlay.Mode) layers.LinkType {
	if mode == overlay.ModeTap {
		return layers.LinkTypeEthernet
	}
	return layers.LinkTypeRaw
}

// NewPcapSink creates (or truncates) the file at path.
func NewPcapSink(path string, mode overlay.Mode, snaplen int) (*PcapSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	s, err := NewPcapWriterSink(f, mode, snaplen)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.c = f
	return s, nil
}

func NewPcapWriterSink(w io.Writer, mode overlay.Mode, snaplen int) (*PcapSink, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(uint32(snaplen), linkType(mode)); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	return &PcapSink{w: pw, now: time.Now}, nil
}

func (s *PcapSink) Deliver(d Datagram) error {
	p := d.Payload()
	ci := gopacket.CaptureInfo{
		Timestamp:     s.now(),
		CaptureLength: len(p),
		Length:        len(p),
	}

	if err := s.w.WritePacket(ci, p); err != nil {
		return fmt.Errorf("failed to write pcap record: %w", err)
	}
	return nil
}

func (s *PcapSink) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
