// Package sim is a minimal in-memory stand-in for the packet I/O driver,
// which is out of scope for this module. It exists so the analyzer,
// capture and generator cores are exercisable end to end in tests
// without a real DPDK-backed driver.
package sim

import "github.com/openperf/packetcore/pktio"

// Packet is a mutable, heap-backed implementation of pktio.Buffer.
type Packet struct {
	buf        []byte
	length     uint16
	rxTS       int64
	rssHash    uint32
	typeFlags  pktio.PacketTypeFlags
	streamID   *uint32
	seq        *uint32
	txTS       *int64
	prbsErrors *uint32
	ipErr      bool
	tcpErr     bool
	udpErr     bool
	fcsErr     bool
	tx         bool

	hdrLens pktio.HeaderLengths
	offload pktio.TxOffloadFlags
}

// NewPacket wraps raw bytes (copied) into a Packet sized to cap(data).
func NewPacket(data []byte) *Packet {
	buf := make([]byte, len(data), max(cap(data), len(data)))
	copy(buf, data)
	return &Packet{buf: buf, length: uint16(len(data))}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (p *Packet) Length() uint16    { return p.length }
func (p *Packet) MaxLength() uint16 { return uint16(cap(p.buf)) }
func (p *Packet) Data(offset int) []byte {
	// Checked against p.length, not len(p.buf): a recycled buffer fresh
	// off NewPacket has len(p.buf) == 0 with its real size held in cap,
	// and SetLength is expected to run before Data on the write path, so
	// len(p.buf) itself never reflects the packet's current size.
	if offset > int(p.length) {
		return nil
	}
	return p.buf[offset:p.length]
}

func (p *Packet) RxTimestamp() int64               { return p.rxTS }
func (p *Packet) RSSHash() uint32                   { return p.rssHash }
func (p *Packet) PacketTypeFlags() pktio.PacketTypeFlags { return p.typeFlags }

func (p *Packet) SignatureStreamID() (uint32, bool) {
	if p.streamID == nil {
		return 0, false
	}
	return *p.streamID, true
}

func (p *Packet) SignatureSequenceNumber() (uint32, bool) {
	if p.seq == nil {
		return 0, false
	}
	return *p.seq, true
}

func (p *Packet) SignatureTxTimestamp() (int64, bool) {
	if p.txTS == nil {
		return 0, false
	}
	return *p.txTS, true
}

func (p *Packet) PRBSBitErrors() (uint32, bool) {
	if p.prbsErrors == nil {
		return 0, false
	}
	return *p.prbsErrors, true
}

func (p *Packet) IPChecksumError() bool  { return p.ipErr }
func (p *Packet) TCPChecksumError() bool { return p.tcpErr }
func (p *Packet) UDPChecksumError() bool { return p.udpErr }
func (p *Packet) FCSError() bool         { return p.fcsErr }
func (p *Packet) TxSink() bool           { return p.tx }

func (p *Packet) SetLength(n uint16) { p.length = n }
func (p *Packet) SetTxOffload(hdrLens pktio.HeaderLengths, flags pktio.TxOffloadFlags) {
	p.hdrLens = hdrLens
	p.offload = flags
}
func (p *Packet) SetSignature(streamID, seq uint32, flags uint32) {
	p.streamID = &streamID
	p.seq = &seq
}

// --- test/sim-only setters, not part of pktio.Buffer ---

func (p *Packet) SetRxTimestamp(ns int64)                  { p.rxTS = ns }
func (p *Packet) SetRSSHash(h uint32)                       { p.rssHash = h }
func (p *Packet) SetPacketTypeFlags(f pktio.PacketTypeFlags) { p.typeFlags = f }
func (p *Packet) SetSignatureFields(streamID, seq uint32, txTS int64) {
	p.streamID = &streamID
	p.seq = &seq
	p.txTS = &txTS
}
// TxOffload returns the header lengths and offload flags most recently
// recorded by SetTxOffload.
func (p *Packet) TxOffload() (pktio.HeaderLengths, pktio.TxOffloadFlags) {
	return p.hdrLens, p.offload
}

func (p *Packet) SetPRBSBitErrors(n uint32) { p.prbsErrors = &n }
func (p *Packet) SetChecksumErrors(ip, tcp, udp, fcs bool) {
	p.ipErr, p.tcpErr, p.udpErr, p.fcsErr = ip, tcp, udp, fcs
}
func (p *Packet) SetTxSink(tx bool) { p.tx = tx }

// ToBuffers adapts a []*Packet to []pktio.Buffer for burst APIs.
func ToBuffers(pkts []*Packet) []pktio.Buffer {
	out := make([]pktio.Buffer, len(pkts))
	for i, p := range pkts {
		out[i] = p
	}
	return out
}
