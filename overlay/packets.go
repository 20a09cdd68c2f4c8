package overlay

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"
)

// TUN_PKT_STRIP, set by the kernel when the datagram did not fit the read buffer
const PacketInfoStripped uint16 = 0x0001

// PacketInfo is the prefix the kernel writes ahead of every datagram when IFF_NO_PI is not set.
type PacketInfo struct {
	Flags uint16
	Proto layers.EthernetType
}

// ParsePacketInfo reads the prefix from b. ok is false if b is too short to hold one.
func ParsePacketInfo(b []byte) (pi PacketInfo, ok bool) {
	if len(b) < PacketInfoLen {
		return pi, false
	}

	pi.Flags = binary.BigEndian.Uint16(b[0:2])
	pi.Proto = layers.EthernetType(binary.BigEndian.Uint16(b[2:4]))
	return pi, true
}

// Stripped reports whether the kernel truncated the datagram that followed this prefix.
func (pi PacketInfo) Stripped() bool {
	return pi.Flags&PacketInfoStripped != 0
}

// AppendPacketInfo encodes pi onto b, used to build injected datagrams.
func AppendPacketInfo(b []byte, pi PacketInfo) []byte {
	b = binary.BigEndian.AppendUint16(b, pi.Flags)
	return binary.BigEndian.AppendUint16(b, uint16(pi.Proto))
}
