package capture

import (
	"github.com/openperf/packetcore/pktio"
	"golang.org/x/sys/unix"
)

// LinearBuffer is a single mmap-backed region written once from start to
// end; once full it stops accepting packets until rewound.
type LinearBuffer struct {
	mem           []byte
	maxPacketSize int
	write         int
	stats         CaptureBufferStats
}

// NewLinearBuffer mmaps an anonymous region rounded up to a whole number
// of pages and advises the kernel that access will be sequential.
func NewLinearBuffer(size, maxPacketSize int) (*LinearBuffer, error) {
	mem, err := mmapAnon(size)
	if err != nil {
		return nil, err
	}
	return &LinearBuffer{mem: mem, maxPacketSize: maxPacketSize}, nil
}

func mmapAnon(size int) ([]byte, error) {
	page := unix.Getpagesize()
	size = ((size + page - 1) / page) * page
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	_ = unix.Madvise(mem, unix.MADV_SEQUENTIAL)
	_ = unix.Madvise(mem, unix.MADV_WILLNEED)
	return mem, nil
}

// Close unmaps the buffer's backing memory.
func (b *LinearBuffer) Close() error { return unix.Munmap(b.mem) }

// WritePackets appends packets until one would not fit, at which point
// it marks the buffer full and returns the count actually written.
func (b *LinearBuffer) WritePackets(pkts []pktio.Buffer) int {
	written := 0
	for _, pkt := range pkts {
		if b.stats.Full {
			break
		}
		capLen := captureLen(pkt, b.maxPacketSize)
		sz := recordSize(capLen)
		if b.write+sz > len(b.mem) {
			b.stats.Full = true
			break
		}
		h := CapturePacketHeader{
			RxTimestamp: pkt.RxTimestamp(),
			OrigLen:     uint32(pkt.Length()),
			CapturedLen: uint32(capLen),
			Direction:   direction(pkt.TxSink()),
		}
		writeRecord(b.mem[b.write:b.write+sz], h, pkt.Data(0)[:capLen])
		b.write += sz
		b.stats.PacketsWritten++
		b.stats.BytesWritten += uint64(sz)
		b.stats.PacketsLive++
		b.stats.BytesLive += uint64(sz)
		written++
	}
	return written
}

// Stats returns a snapshot of the buffer's counters.
func (b *LinearBuffer) Stats() CaptureBufferStats { return b.stats }

// Rewind discards all written packets and resets the buffer to empty,
// as if freshly allocated.
func (b *LinearBuffer) Rewind() {
	b.write = 0
	b.stats = CaptureBufferStats{}
}

// NewReader returns a fresh reader positioned at the start of the
// buffer's current contents.
func (b *LinearBuffer) NewReader() *LinearReader { return &LinearReader{buf: b} }

// LinearReader walks a LinearBuffer from start to its current write
// cursor.
type LinearReader struct {
	buf *LinearBuffer
	pos int
}

// ReadPackets fills out with up to len(out) records and reports how
// many were written; it stops when it catches up to the write cursor.
func (r *LinearReader) ReadPackets(out []CapturedPacket) (int, error) {
	n := 0
	for n < len(out) && r.pos < r.buf.write {
		h, data := readRecord(r.buf.mem[r.pos:])
		out[n] = CapturedPacket{Header: h, Data: data}
		r.pos += recordSize(int(h.CapturedLen))
		n++
	}
	return n, nil
}

// Rewind resets the reader to the start of the buffer.
func (r *LinearReader) Rewind() { r.pos = 0 }
