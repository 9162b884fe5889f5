package capture

import (
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/openperf/packetcore/pktio"
)

const (
	ngFlagInbound  = 0x01
	ngFlagOutbound = 0x02
)

// PCAPNGWriter is a file capture buffer: a Section Header Block and one
// Interface Description Block (link-type Ethernet, nanosecond
// resolution) followed by one Enhanced Packet Block per packet, written
// via gopacket/pcapgo the same way parser/pcap.go reads PCAPNG archives.
type PCAPNGWriter struct {
	w             *pcapgo.NgWriter
	maxPacketSize int
	stats         CaptureBufferStats
}

// NewPCAPNGWriter writes the Section Header Block and Interface
// Description Block immediately, then returns a writer ready for
// per-packet Enhanced Packet Blocks.
func NewPCAPNGWriter(w io.Writer, maxPacketSize int) (*PCAPNGWriter, error) {
	ngw, err := pcapgo.NewNgWriter(w, layers.LinkTypeEthernet)
	if err != nil {
		return nil, err
	}
	return &PCAPNGWriter{w: ngw, maxPacketSize: maxPacketSize}, nil
}

// WritePackets writes one Enhanced Packet Block per packet, truncating
// the captured payload to max_packet_size and recording the direction
// flag (inbound/outbound) as a packet option.
func (p *PCAPNGWriter) WritePackets(pkts []pktio.Buffer) int {
	written := 0
	for _, pkt := range pkts {
		capLen := captureLen(pkt, p.maxPacketSize)
		data := pkt.Data(0)[:capLen]
		ci := gopacket.CaptureInfo{
			Timestamp:      time.Unix(0, pkt.RxTimestamp()),
			CaptureLength:  capLen,
			Length:         int(pkt.Length()),
			InterfaceIndex: 0,
		}
		flags := uint32(ngFlagInbound)
		if pkt.TxSink() {
			flags = ngFlagOutbound
		}
		opts := pcapgo.NgPacketOptions{Flags: flags}
		if err := p.w.WritePacketWithOptions(ci, data, opts); err != nil {
			p.stats.PacketsDropped++
			continue
		}
		p.stats.PacketsWritten++
		p.stats.BytesWritten += uint64(capLen)
		written++
	}
	return written
}

// Flush forces any buffered blocks out to the underlying writer.
func (p *PCAPNGWriter) Flush() error { return p.w.Flush() }

// Stats returns a snapshot of the writer's counters.
func (p *PCAPNGWriter) Stats() CaptureBufferStats { return p.stats }

// PCAPNGReader replays a PCAPNG file buffer's Enhanced Packet Blocks in
// write order.
type PCAPNGReader struct {
	r             *pcapgo.NgReader
	maxPacketSize int
}

// NewPCAPNGReader parses the Section Header Block and Interface
// Description Block and returns a reader positioned at the first
// Enhanced Packet Block. maxPacketSize, if non-zero, truncates payloads
// on read the same way the writer truncated them on capture.
func NewPCAPNGReader(r io.Reader, maxPacketSize int) (*PCAPNGReader, error) {
	ngr, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, err
	}
	return &PCAPNGReader{r: ngr, maxPacketSize: maxPacketSize}, nil
}

// ReadPackets fills out with up to len(out) records, stopping at EOF.
func (p *PCAPNGReader) ReadPackets(out []CapturedPacket) (int, error) {
	n := 0
	for n < len(out) {
		data, ci, err := p.r.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		capLen := len(data)
		if p.maxPacketSize > 0 && capLen > p.maxPacketSize {
			capLen = p.maxPacketSize
			data = data[:capLen]
		}
		out[n] = CapturedPacket{
			Header: CapturePacketHeader{
				RxTimestamp: ci.Timestamp.UnixNano(),
				OrigLen:     uint32(ci.Length),
				CapturedLen: uint32(capLen),
			},
			Data: data,
		}
		n++
	}
	return n, nil
}
