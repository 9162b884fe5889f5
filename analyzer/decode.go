package analyzer

import (
	"log"
	"os"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/openperf/packetcore/pktio"
)

// signatureTrailerLen is the fixed size of a Spirent-style signature
// trailer once a packet carries a decoded signature.
const signatureTrailerLen = 20

// truncatedLogger rate-limits the warning emitted when a received packet
// is too short to carry the headers its ethertype/protocol chain
// implies, so a run of malformed traffic logs at most once per interval
// instead of once per packet.
var truncatedLogger = logx.NewLogEvery(log.New(os.Stderr, "analyzer: ", log.LstdFlags), 50*time.Millisecond)

// decodeLengths derives the combined layer2+3+4 header length and the
// signature trailer length a flow's PRBS payload-octet accounting needs,
// reading only the handful of header bytes required rather than doing a
// full gopacket decode.
func decodeLengths(buf pktio.Buffer, hasSig bool) (headerLen, sigLen uint16) {
	data := buf.Data(0)
	if len(data) < 14 {
		truncatedLogger.Println("packet shorter than an ethernet header:", len(data), "bytes")
		return uint16(len(data)), trailerLen(hasSig)
	}
	off := 14
	etherType := uint16(data[12])<<8 | uint16(data[13])
	for etherType == 0x8100 || etherType == 0x88a8 { // 802.1Q / QinQ
		if len(data) < off+4 {
			truncatedLogger.Println("packet truncated inside a vlan tag at offset", off)
			return uint16(off), trailerLen(hasSig)
		}
		etherType = uint16(data[off+2])<<8 | uint16(data[off+3])
		off += 4
	}
	switch etherType {
	case 0x0800: // IPv4
		if len(data) <= off {
			return uint16(off), trailerLen(hasSig)
		}
		ihl := int(data[off]&0x0f) * 4
		if ihl < 20 {
			ihl = 20
		}
		l4Off := off + ihl
		var proto byte
		if len(data) > off+9 {
			proto = data[off+9]
		}
		off = l4Off + l4HeaderLen(proto, data, l4Off)
	case 0x86dd: // IPv6
		l4Off := off + 40
		var proto byte
		if len(data) > off+6 {
			proto = data[off+6]
		}
		off = l4Off + l4HeaderLen(proto, data, l4Off)
	}
	return uint16(off), trailerLen(hasSig)
}

func trailerLen(hasSig bool) uint16 {
	if hasSig {
		return signatureTrailerLen
	}
	return 0
}

func l4HeaderLen(proto byte, data []byte, off int) int {
	switch proto {
	case 6: // TCP: data offset in the high nibble of byte 12, in 32-bit words
		if len(data) > off+12 {
			return int(data[off+12]>>4) * 4
		}
		return 20
	case 17: // UDP
		return 8
	default:
		return 0
	}
}
