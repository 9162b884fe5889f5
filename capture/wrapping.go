package capture

import (
	"github.com/openperf/packetcore/pktio"
	"golang.org/x/sys/unix"
)

// record tracks one live packet's byte range inside a WrappingBuffer's
// backing memory, in FIFO (oldest-first) order.
type record struct {
	offset int
	size   int
}

// WrappingBuffer is an mmap-backed region that, once a packet would
// cross the end, wraps the write cursor back to the start and reclaims
// oldest packets in whole-packet units ahead of it until there is room.
//
// The live packet queue doubles as the read order: a WrappingReader
// walks it by sequence number rather than re-deriving wrap_addr/wrap_end
// segment boundaries from raw offsets, since the queue already records
// that order directly.
type WrappingBuffer struct {
	mem           []byte
	maxPacketSize int
	write         int
	queue         []record
	reclaimed     int
	stats         CaptureBufferStats
}

// NewWrappingBuffer mmaps an anonymous region rounded up to a whole
// number of pages.
func NewWrappingBuffer(size, maxPacketSize int) (*WrappingBuffer, error) {
	mem, err := mmapAnon(size)
	if err != nil {
		return nil, err
	}
	return &WrappingBuffer{mem: mem, maxPacketSize: maxPacketSize}, nil
}

// Close unmaps the buffer's backing memory.
func (b *WrappingBuffer) Close() error { return unix.Munmap(b.mem) }

// WritePackets appends packets, wrapping and reclaiming as needed. A
// packet whose encoded size exceeds the entire buffer capacity is
// dropped without reclaiming anything, the floor case of "fails when
// full" applied to a buffer that can never make room for it.
func (b *WrappingBuffer) WritePackets(pkts []pktio.Buffer) int {
	written := 0
	for _, pkt := range pkts {
		capLen := captureLen(pkt, b.maxPacketSize)
		sz := recordSize(capLen)
		if sz > len(b.mem) {
			b.stats.PacketsDropped++
			continue
		}
		if b.write+sz > len(b.mem) {
			b.write = 0
		}
		end := b.write + sz
		for len(b.queue) > 0 && rangesOverlap(b.write, end, b.queue[0].offset, b.queue[0].offset+b.queue[0].size) {
			old := b.queue[0]
			b.queue = b.queue[1:]
			b.reclaimed++
			b.stats.PacketsLive--
			b.stats.BytesLive -= uint64(old.size)
			b.stats.PacketsReclaimed++
		}
		h := CapturePacketHeader{
			RxTimestamp: pkt.RxTimestamp(),
			OrigLen:     uint32(pkt.Length()),
			CapturedLen: uint32(capLen),
			Direction:   direction(pkt.TxSink()),
		}
		writeRecord(b.mem[b.write:end], h, pkt.Data(0)[:capLen])
		b.queue = append(b.queue, record{offset: b.write, size: sz})
		b.write = end
		b.stats.PacketsWritten++
		b.stats.BytesWritten += uint64(sz)
		b.stats.PacketsLive++
		b.stats.BytesLive += uint64(sz)
		written++
	}
	return written
}

// Stats returns a snapshot of the buffer's counters.
func (b *WrappingBuffer) Stats() CaptureBufferStats { return b.stats }

// NewReader returns a fresh reader positioned at the oldest packet
// currently live in the buffer.
func (b *WrappingBuffer) NewReader() *WrappingReader {
	return &WrappingReader{buf: b, seq: b.reclaimed}
}

// WrappingReader walks a WrappingBuffer's live queue in FIFO order.
type WrappingReader struct {
	buf *WrappingBuffer
	seq int // next sequence number to read
}

// ReadPackets fills out with up to len(out) records. If the reader
// fell behind far enough that its next sequence number was already
// reclaimed, it jumps forward to the oldest packet still live rather
// than returning stale data.
func (r *WrappingReader) ReadPackets(out []CapturedPacket) (int, error) {
	if r.seq < r.buf.reclaimed {
		r.seq = r.buf.reclaimed
	}
	n := 0
	for n < len(out) {
		idx := r.seq - r.buf.reclaimed
		if idx >= len(r.buf.queue) {
			break
		}
		rec := r.buf.queue[idx]
		h, data := readRecord(r.buf.mem[rec.offset : rec.offset+rec.size])
		out[n] = CapturedPacket{Header: h, Data: data}
		r.seq++
		n++
	}
	return n, nil
}

// Rewind resets the reader to the oldest packet still live in the
// buffer.
func (r *WrappingReader) Rewind() { r.seq = r.buf.reclaimed }
