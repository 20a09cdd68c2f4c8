package tuncap

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/slackhq/tuncap/overlay"
	"github.com/slackhq/tuncap/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexSink(t *testing.T) {
	l, tl := test.NewCapturingLogger()
	s := NewHexSink(l)

	raw := overlay.AppendPacketInfo(nil, overlay.PacketInfo{Proto: layers.EthernetTypeIPv4})
	raw = append(raw, 0x45, 0x00)

	require.NoError(t, s.Deliver(Datagram{b: raw, packetInfo: true}))
	assert.Equal(t, []string{"level=info msg=\"read 6 bytes: [00 00 08 00 45 00]\" bytes=6 proto=IPv4\n"}, tl.Lines())

	tl.Reset()
	require.NoError(t, s.Deliver(Datagram{b: []byte{}}))
	assert.Equal(t, []string{"level=info msg=\"read 0 bytes: []\" bytes=0\n"}, tl.Lines())
}

type closingSink struct {
	delivered int
	err       error
	closed    bool
}

func (s *closingSink) Deliver(Datagram) error {
	s.delivered++
	return s.err
}

func (s *closingSink) Close() error {
	s.closed = true
	return nil
}

func TestMultiSink(t *testing.T) {
	broken := errors.New("nope")
	a := &closingSink{}
	b := &closingSink{err: broken}
	c := &closingSink{}
	plain := SinkFunc(func(Datagram) error { return nil })

	ms := MultiSink{a, plain, b, c}
	assert.ErrorIs(t, ms.Deliver(Datagram{b: []byte{1}}), broken)
	assert.Equal(t, 1, a.delivered)
	assert.Equal(t, 1, b.delivered)
	assert.Equal(t, 0, c.delivered)

	require.NoError(t, ms.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.True(t, c.closed)
}

func readPcap(t *testing.T, r io.Reader) (layers.LinkType, [][]byte) {
	t.Helper()
	pr, err := pcapgo.NewReader(r)
	require.NoError(t, err)

	var out [][]byte
	for {
		data, ci, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, len(data), ci.CaptureLength)
		out = append(out, data)
	}

	return pr.LinkType(), out
}

func TestPcapSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewPcapWriterSink(&buf, overlay.ModeTun, 1504)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	withPI := overlay.AppendPacketInfo(nil, overlay.PacketInfo{Proto: layers.EthernetTypeIPv4})
	withPI = append(withPI, 0x45, 0x00, 0x00, 0x14)

	require.NoError(t, s.Deliver(Datagram{b: withPI, packetInfo: true}))
	require.NoError(t, s.Deliver(Datagram{b: []byte{}, packetInfo: true}))
	require.NoError(t, s.Deliver(Datagram{b: []byte{0x60, 0x00}}))
	require.NoError(t, s.Close())

	lt, packets := readPcap(t, &buf)
	assert.Equal(t, layers.LinkTypeRaw, lt)
	require.Len(t, packets, 3)
	assert.Equal(t, []byte{0x45, 0x00, 0x00, 0x14}, packets[0])
	assert.Empty(t, packets[1])
	assert.Equal(t, []byte{0x60, 0x00}, packets[2])
}

func TestPcapSink_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	s, err := NewPcapSink(path, overlay.ModeTap, 1518)
	require.NoError(t, err)

	frame := bytes.Repeat([]byte{0xee}, 60)
	require.NoError(t, s.Deliver(Datagram{b: frame}))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lt, packets := readPcap(t, f)
	assert.Equal(t, layers.LinkTypeEthernet, lt)
	assert.Equal(t, [][]byte{frame}, packets)

	_, err = NewPcapSink(filepath.Join(t.TempDir(), "missing", "capture.pcap"), overlay.ModeTun, 1504)
	assert.Error(t, err)
}
