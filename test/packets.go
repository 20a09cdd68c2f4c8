package test

import (
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// UDPPacket serializes an IPv4/UDP datagram, 28 bytes of headers plus data
func UDPPacket(from, to netip.AddrPort, data []byte) []byte {
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    from.Addr().AsSlice(),
		DstIP:    to.Addr().AsSlice(),
	}

	udp := layers.UDP{
		SrcPort: layers.UDPPort(from.Port()),
		DstPort: layers.UDPPort(to.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		panic(err)
	}

	buffer := gopacket.NewSerializeBuffer()
	opt := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buffer, opt, &ip, &udp, gopacket.Payload(data)); err != nil {
		panic(err)
	}

	return buffer.Bytes()
}
