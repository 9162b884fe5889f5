// Package capture implements the capture-buffer variants a capturesink
// writes into: a linear mmap buffer, a wrapping mmap buffer that
// reclaims oldest packets in whole-packet units, and a PCAPNG file
// buffer built on gopacket/pcapgo, plus a timestamp-ordered reader that
// merges several per-worker readers. Grounded on parser/pcap.go's
// existing use of gopacket/pcapgo for PCAPNG decode (writing is added
// symmetrically here) and storage/localwriter.go's buffered-sink shape.
package capture

import (
	"encoding/binary"

	"github.com/openperf/packetcore/pktio"
)

// headerSize is the on-disk/on-wire size of a CapturePacketHeader
// record: 8-byte timestamp, two 4-byte lengths, a 1-byte direction flag
// and 3 bytes of reserved padding, chosen so the record is already
// 4-byte aligned before the payload starts.
const headerSize = 20

// CapturePacketHeader precedes each packet's captured payload in a
// LinearBuffer or WrappingBuffer.
type CapturePacketHeader struct {
	RxTimestamp int64
	OrigLen     uint32
	CapturedLen uint32
	Direction   uint8 // 0 = rx, 1 = tx
}

// CapturedPacket is a decoded record: Header by value, Data aliasing
// the buffer's backing memory (or the PCAPNG reader's scratch slice)
// for the lifetime of the next read call.
type CapturedPacket struct {
	Header CapturePacketHeader
	Data   []byte
}

// CaptureBufferStats reports lifetime and current-occupancy counters
// for a capture buffer.
type CaptureBufferStats struct {
	PacketsWritten   uint64
	BytesWritten     uint64
	PacketsDropped   uint64
	PacketsReclaimed uint64
	PacketsLive      int
	BytesLive        uint64
	Full             bool
}

// Buffer is the common write-side surface of the linear, wrapping and
// PCAPNG buffer variants.
type Buffer interface {
	WritePackets(pkts []pktio.Buffer) int
	Stats() CaptureBufferStats
}

// Reader is the common read-side surface: fills out with up to
// len(out) records and reports how many were written.
type Reader interface {
	ReadPackets(out []CapturedPacket) (int, error)
}

func align4(n int) int { return (n + 3) &^ 3 }

func recordSize(capturedLen int) int { return align4(headerSize + capturedLen) }

func direction(tx bool) uint8 {
	if tx {
		return 1
	}
	return 0
}

func writeRecord(dst []byte, h CapturePacketHeader, payload []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(h.RxTimestamp))
	binary.LittleEndian.PutUint32(dst[8:12], h.OrigLen)
	binary.LittleEndian.PutUint32(dst[12:16], h.CapturedLen)
	dst[16] = h.Direction
	copy(dst[headerSize:], payload)
}

func readRecord(src []byte) (CapturePacketHeader, []byte) {
	h := CapturePacketHeader{
		RxTimestamp: int64(binary.LittleEndian.Uint64(src[0:8])),
		OrigLen:     binary.LittleEndian.Uint32(src[8:12]),
		CapturedLen: binary.LittleEndian.Uint32(src[12:16]),
		Direction:   src[16],
	}
	data := src[headerSize : headerSize+int(h.CapturedLen)]
	return h, data
}

func captureLen(pkt pktio.Buffer, maxPacketSize int) int {
	n := int(pkt.Length())
	if maxPacketSize > 0 && n > maxPacketSize {
		n = maxPacketSize
	}
	return n
}

func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}
