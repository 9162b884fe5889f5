package generator

import (
	"encoding/binary"

	"github.com/openperf/packetcore/pktio"
	"github.com/openperf/packetcore/trafficspec"
)

// Offsets of the length and checksum fields within their own header,
// grounded on parser/pcap.go's IPv4Header/IPv6Header layouts and
// tcp/tcp.go's TCPHeader field order.
const (
	ipv4TotalLengthOffset = 2
	ipv6PayloadLenOffset  = 4
	udpLengthOffset       = 4
	udpChecksumOffset     = 6
	tcpChecksumOffset     = 16
)

// rewriteLengths fixes up the IPv4 total_length, IPv6 payload_length or
// UDP length field to match the actual emitted packet size, then folds
// that length into the precomputed TCP/UDP pseudo-header checksum.
func rewriteLengths(data []byte, p *trafficspec.UnpackedPacket, wireLen uint16) {
	l2 := p.HeaderLengths.Layer2()
	l3 := p.HeaderLengths.Layer3()

	switch p.Flags.IP() {
	case pktio.IPv4:
		binary.BigEndian.PutUint16(data[int(l2)+ipv4TotalLengthOffset:], wireLen-l2)
	case pktio.IPv6:
		binary.BigEndian.PutUint16(data[int(l2)+ipv6PayloadLenOffset:], wireLen-l2-l3)
	}

	l4Len := wireLen - l2 - l3 // L4 header + payload
	off := int(l2) + int(l3)

	switch p.Flags.Protocol() {
	case pktio.ProtocolUDP:
		binary.BigEndian.PutUint16(data[off+udpLengthOffset:], l4Len)
		sum := trafficspec.FoldChecksum(trafficspec.AddLength(p.PseudoChecksum, l4Len))
		binary.BigEndian.PutUint16(data[off+udpChecksumOffset:], sum)
	case pktio.ProtocolTCP:
		sum := trafficspec.FoldChecksum(trafficspec.AddLength(p.PseudoChecksum, l4Len))
		binary.BigEndian.PutUint16(data[off+tcpChecksumOffset:], sum)
	}
}
