//go:build linux
// +build linux

package overlay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const tunPath = "/dev/net/tun"

type tun struct {
	file       *os.File
	Device     string
	mode       Mode
	opts       Options
	capacity   int
	packetInfo bool

	closed atomic.Bool
	l      *logrus.Logger
}

type ifReq struct {
	Name  [16]byte
	Flags uint16
	pad   [22]byte
}

func ioctl(a1, a2, a3 uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, a1, a2, a3)
	if errno != 0 {
		return errno
	}
	return nil
}

// Open acquires the named device through /dev/net/tun. An empty name lets the kernel pick one.
func Open(l *logrus.Logger, name string, mode Mode, o Options) (Device, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, &OpenError{Device: name, Mode: mode, Err: fmt.Errorf("name is longer than %d bytes", unix.IFNAMSIZ-1)}
	}

	var req ifReq
	switch mode {
	case ModeTun:
		req.Flags = unix.IFF_TUN
	case ModeTap:
		req.Flags = unix.IFF_TAP
	default:
		return nil, &OpenError{Device: name, Mode: mode, Err: errors.New("unsupported mode")}
	}

	if !o.PacketInfo {
		req.Flags |= unix.IFF_NO_PI
	}
	copy(req.Name[:], name)

	fd, err := unix.Open(tunPath, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, newOpenError(name, mode, err)
	}

	if err = ioctl(uintptr(fd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); err != nil {
		unix.Close(fd)
		return nil, newOpenError(name, mode, err)
	}

	// Nonblocking puts the fd on the runtime netpoller so Close can interrupt a blocked Read
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, newOpenError(name, mode, err)
	}

	t := &tun{
		file:       os.NewFile(uintptr(fd), tunPath),
		Device:     strings.TrimRight(string(req.Name[:]), "\x00"),
		mode:       mode,
		opts:       o,
		capacity:   o.Capacity(mode),
		packetInfo: o.PacketInfo,
		l:          l,
	}

	l.WithField("device", t.Device).
		WithField("mode", mode.String()).
		WithField("capacity", t.capacity).
		Info("Acquired virtual device")

	return t, nil
}

func newOpenError(name string, mode Mode, err error) *OpenError {
	oe := &OpenError{Device: name, Mode: mode, Err: err}

	var errno unix.Errno
	if !errors.As(err, &errno) {
		return oe
	}

	switch errno {
	case unix.EPERM, unix.EACCES:
		oe.Kind = ErrPermissionDenied
	case unix.EBUSY, unix.EEXIST, unix.EINVAL:
		// EINVAL is what TUNSETIFF returns when the name exists with a different mode
		oe.Kind = ErrDeviceUnavailable
	case unix.ENOMEM, unix.ENFILE, unix.EMFILE, unix.ENOSPC, unix.ENOENT, unix.ENODEV, unix.ENXIO:
		oe.Kind = ErrResourceExhausted
	}

	return oe
}

// Read returns exactly one datagram. The kernel reports the untruncated length of a datagram that did not
// fit b, so n is clamped to len(b) and callers detect oversize by reading with a buffer larger than capacity.
func (t *tun) Read(b []byte) (int, error) {
	n, err := t.file.Read(b)
	if err != nil {
		// os.File reports a zero byte read as EOF, for a tun fd that is an empty datagram
		if errors.Is(err, io.EOF) && n == 0 {
			return 0, nil
		}
		return 0, err
	}

	if n > len(b) {
		n = len(b)
	}
	return n, nil
}

// Activate sets the MTU, assigns the configured addresses and brings the link up.
func (t *tun) Activate() error {
	link, err := netlink.LinkByName(t.Device)
	if err != nil {
		return fmt.Errorf("failed to get tun device link: %w", err)
	}

	mtu := t.opts.MTU
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if err = netlink.LinkSetMTU(link, mtu); err != nil {
		return fmt.Errorf("failed to set tun mtu: %w", err)
	}

	for _, p := range t.opts.Addresses {
		addr := &netlink.Addr{
			IPNet: &net.IPNet{
				IP:   p.Addr().AsSlice(),
				Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
			},
		}

		//AddrReplace still adds new IPs, but if their properties change it will change them as well
		if err = netlink.AddrReplace(link, addr); err != nil {
			return fmt.Errorf("failed to add address %s: %w", p, err)
		}
	}

	if err = netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring the tun device up: %w", err)
	}

	t.l.WithField("device", t.Device).WithField("mtu", mtu).WithField("addresses", t.opts.Addresses).Info("Activated virtual device")
	return nil
}

func (t *tun) Name() string {
	return t.Device
}

func (t *tun) Mode() Mode {
	return t.mode
}

func (t *tun) Capacity() int {
	return t.capacity
}

func (t *tun) PacketInfo() bool {
	return t.packetInfo
}

func (t *tun) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	return t.file.Close()
}
