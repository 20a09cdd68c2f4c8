package overlay

import (
	"fmt"
	"io"
	"net/netip"
	"strings"
)

// Mode selects the framing a device delivers.
type Mode int

const (
	// ModeTun carries raw network layer datagrams with no link layer framing.
	ModeTun Mode = iota
	// ModeTap carries ethernet frames.
	ModeTap
)

const (
	DefaultMTU = 1500

	// PacketInfoLen is the size of the flags/proto prefix the kernel adds when IFF_NO_PI is not set
	PacketInfoLen = 4

	// EthernetHeaderLen is the link layer header carried by every frame in ModeTap
	EthernetHeaderLen = 14
)

func (m Mode) String() string {
	switch m {
	case ModeTun:
		return "tun"
	case ModeTap:
		return "tap"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode turns a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "tun", "ptp", "point-to-point":
		return ModeTun, nil
	case "tap", "link", "link-layer":
		return ModeTap, nil
	default:
		return 0, fmt.Errorf("unknown tun.mode `%s`. possible modes: %s", s, []string{"tun", "tap"})
	}
}

// Options control how a device is acquired and how large its receive buffer must be.
type Options struct {
	MTU int

	// PacketInfo keeps the 4 byte flags/proto prefix on every datagram
	PacketInfo bool

	// BufferSize overrides the computed capacity when > 0
	BufferSize int

	// Addresses are assigned to the link by Activate
	Addresses []netip.Prefix
}

// HeaderLen is the number of bytes that precede the payload in every datagram for the mode.
func (o Options) HeaderLen(m Mode) int {
	n := 0
	if o.PacketInfo {
		n += PacketInfoLen
	}
	if m == ModeTap {
		n += EthernetHeaderLen
	}
	return n
}

// Capacity is the largest datagram a device in mode m can deliver.
func (o Options) Capacity(m Mode) int {
	if o.BufferSize > 0 {
		return o.BufferSize
	}

	mtu := o.MTU
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return mtu + o.HeaderLen(m)
}

// Device is an exclusively owned virtual interface handle.
// Each Read returns exactly one datagram. Close releases the handle and is safe to call more than once.
type Device interface {
	io.ReadCloser
	Activate() error
	Name() string
	Mode() Mode

	// Capacity is the receive buffer size required to hold any datagram this device can deliver
	Capacity() int

	// PacketInfo reports whether datagrams begin with a PacketInfoLen prefix
	PacketInfo() bool
}
