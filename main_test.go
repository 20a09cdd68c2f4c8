package tuncap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/slackhq/tuncap/config"
	"github.com/slackhq/tuncap/overlay"
	"github.com/slackhq/tuncap/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMain(t *testing.T, raw string) (*Control, *overlay.TestTun, error) {
	t.Helper()
	l := test.NewLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString(raw))

	name, mode, opts, err := overlay.OptionsFromConfig(c)
	require.NoError(t, err)

	tun := overlay.NewTestTun(l, name, mode, opts)
	ctrl, err := Main(c, false, "test", l, tun)
	return ctrl, tun, err
}

func TestMain_CaptureToPcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	ctrl, tun, err := newTestMain(t, "tun:\n  dev: tun7\ncapture:\n  pcap:\n    path: "+path+"\n")
	require.NoError(t, err)
	assert.Equal(t, "tun7", ctrl.Device().Name())
	assert.Equal(t, 1504, ctrl.Capture().Capacity())

	require.NoError(t, ctrl.Start())
	assert.False(t, tun.Activated.Load())

	ip := []byte{0x45, 0x00, 0x00, 0x14}
	tun.Send(append(overlay.AppendPacketInfo(nil, overlay.PacketInfo{Proto: layers.EthernetTypeIPv4}), ip...))
	tun.Send(make([]byte, 3000))
	tun.Send(overlay.AppendPacketInfo(nil, overlay.PacketInfo{}))

	// the loop only starts a read once the previous datagram has been handled
	assert.Eventually(t, func() bool { return tun.Reads.Load() >= 4 }, 5*time.Second, time.Millisecond)

	require.NoError(t, ctrl.Stop())
	assert.Equal(t, int32(1), tun.Closes.Load())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	lt, packets := readPcap(t, f)
	assert.Equal(t, layers.LinkTypeRaw, lt)
	require.Len(t, packets, 2)
	assert.Equal(t, ip, packets[0])
	assert.Empty(t, packets[1])
}

func TestMain_FatalError(t *testing.T) {
	ctrl, tun, err := newTestMain(t, "tun:\n  packet_info: false\n")
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())

	gone := errors.New("device gone")
	tun.Fail(gone)

	err = ctrl.Wait()
	assert.ErrorIs(t, err, overlay.ErrDeviceTornDown)
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, int32(1), tun.Closes.Load())

	// Stop after a failure returns the same error and does not release again
	assert.ErrorIs(t, ctrl.Stop(), gone)
	assert.Equal(t, int32(1), tun.Closes.Load())
}

func TestMain_Activate(t *testing.T) {
	ctrl, tun, err := newTestMain(t, "tun:\n  activate: true\n  addresses:\n    - 10.0.0.1/24\n")
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())
	assert.True(t, tun.Activated.Load())
	require.NoError(t, ctrl.Stop())
}

func TestMain_NoSinks(t *testing.T) {
	_, tun, err := newTestMain(t, "capture:\n  log_datagrams: false\n")
	assert.ErrorContains(t, err, "no datagram consumers configured")
	assert.Equal(t, int32(1), tun.Closes.Load())
}

func TestMain_ConfigTest(t *testing.T) {
	l := test.NewLogger()
	c := config.NewC(l)
	require.NoError(t, c.LoadString("tun:\n  dev: tun3\n  mode: tap\n"))

	ctrl, err := Main(c, true, "test", l, nil)
	require.NoError(t, err)
	assert.NotNil(t, ctrl)

	require.NoError(t, c.LoadString("tun:\n  mode: bridge\n"))
	_, err = Main(c, true, "test", l, nil)
	assert.ErrorContains(t, err, "unknown tun.mode `bridge`")

	require.NoError(t, c.LoadString("logging:\n  format: xml\n"))
	_, err = Main(c, true, "test", l, nil)
	assert.ErrorContains(t, err, "unknown log format")

	require.NoError(t, c.LoadString("stats:\n  type: carrier-pigeon\n  interval: 10s\n"))
	_, err = Main(c, true, "test", l, nil)
	assert.ErrorContains(t, err, "stats.type was not understood")
}
