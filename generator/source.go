package generator

import (
	"sync/atomic"

	"github.com/openperf/packetcore/control"
	"github.com/openperf/packetcore/pktio"
	"github.com/openperf/packetcore/simdcopy"
	"github.com/openperf/packetcore/trafficspec"
)

const chunkSize = 16

// FlowCounters is one flow's running transmit totals, updated
// atomically since multiple transmit workers may hit the same flow
// index concurrently (unlike the per-worker-shard rx counters in
// flowstats, tx counters are indexed by flow, not by worker).
type FlowCounters struct {
	Packet atomic.Uint64
	Octet  atomic.Uint64
	First  atomic.Int64
	Last   atomic.Int64
}

// update records one packet whose Packet count the caller has already
// incremented; first marks the flow's first packet.
func (fc *FlowCounters) update(pktLen uint16, now int64, first bool) {
	if first {
		fc.First.Store(now)
	}
	fc.Octet.Add(uint64(pktLen))
	fc.Last.Store(now)
}

// SourceResult is a generator's installed, stoppable state: one
// FlowCounters per flow in the configured sequence.
type SourceResult struct {
	active   atomic.Bool
	counters []FlowCounters
}

// NewSourceResult allocates a fresh result sized to flowCount flows.
func NewSourceResult(flowCount int) *SourceResult {
	return &SourceResult{counters: make([]FlowCounters, flowCount)}
}

func (r *SourceResult) Active() bool       { return r.active.Load() }
func (r *SourceResult) SetActive(v bool)   { r.active.Store(v) }
func (r *SourceResult) Counters() []FlowCounters { return r.counters }

// Source drives a trafficspec.Sequence across however many transmit
// workers the driver registers it with; a single shared atomic cursor
// (txIdx) hands out disjoint, contiguous index ranges per poll, so
// concurrent Transform calls never double-send the same sequence
// position.
type Source struct {
	cfg   Config
	limit int64 // -1 means unbounded

	result atomic.Pointer[SourceResult]
	txIdx  atomic.Int64
}

// New validates cfg and returns an idle Source.
func New(cfg Config) (*Source, error) {
	if cfg.Sequence == nil {
		return nil, control.Errorf(control.InvalidArgument, "generator source requires a sequence")
	}
	if cfg.Sequence.Size() <= 0 {
		return nil, control.Errorf(control.InvalidArgument, "generator sequence has zero size")
	}
	return &Source{cfg: cfg, limit: txLimit(cfg)}, nil
}

// Start installs a fresh SourceResult and resets the transmit cursor.
func (s *Source) Start() error {
	if s.Active() {
		return control.Errorf(control.FailedPrecondition, "source is already started")
	}
	result := NewSourceResult(s.cfg.Sequence.FlowCount())
	result.SetActive(true)
	s.txIdx.Store(0)
	s.result.Store(result)
	return nil
}

// Stop clears the installed result.
func (s *Source) Stop() error {
	old := s.result.Swap(nil)
	if old == nil {
		return control.Errorf(control.FailedPrecondition, "source is not started")
	}
	old.SetActive(false)
	return nil
}

// Active reports whether a result is currently installed.
func (s *Source) Active() bool {
	r := s.result.Load()
	return r != nil && r.Active()
}

// Result returns the currently installed result, or nil if stopped.
func (s *Source) Result() *SourceResult { return s.result.Load() }

// RequiredFeatures reports the pktio.FeatureFlags this source needs.
func (s *Source) RequiredFeatures() pktio.FeatureFlags {
	return pktio.FeatureSignatureEncode
}

// Transform fills up to len(out) buffers drawn from in with the next
// packets of the configured sequence, in chunks of 16, and returns the
// number written. It implements pktio.Source.
func (s *Source) Transform(in []pktio.Buffer, out []pktio.Buffer) int {
	result := s.result.Load()
	if result == nil {
		return 0
	}

	n := len(in)
	if len(out) < n {
		n = len(out)
	}
	if n == 0 {
		return 0
	}

	// Reserve [base, base+toSend) with a compare-and-swap so concurrent
	// callers can neither overlap nor overrun the limit.
	var base int64
	var toSend int
	for {
		base = s.txIdx.Load()
		toSend = n
		if s.limit >= 0 {
			remaining := s.limit - base
			if remaining <= 0 {
				return 0
			}
			if int64(toSend) > remaining {
				toSend = int(remaining)
			}
		}
		if s.txIdx.CompareAndSwap(base, base+int64(toSend)) {
			break
		}
	}
	now := pktio.Now()

	for off := 0; off < toSend; off += chunkSize {
		end := off + chunkSize
		if end > toSend {
			end = toSend
		}
		pkts, err := s.cfg.Sequence.Unpack(int(base)+off, end-off)
		if err != nil {
			return off
		}
		for i, p := range pkts {
			buf := in[off+i]
			transformOne(buf, &p, &result.counters[p.FlowIndex], now)
			out[off+i] = buf
		}
	}
	return toSend
}

// transformOne writes one unpacked template instance into buf: header
// bytes, rewritten length fields, folded checksum, offload flags, an
// optional signature stamp, and the flow's running counters.
func transformOne(buf pktio.Buffer, p *trafficspec.UnpackedPacket, fc *FlowCounters, now int64) {
	const fcsLen = 4
	wireLen := p.PacketLength
	if int(wireLen) < len(p.Header)+fcsLen {
		wireLen = uint16(len(p.Header) + fcsLen)
	}
	buf.SetLength(wireLen - fcsLen)

	data := buf.Data(0)
	simdcopy.Memcpy(data, p.Header, len(p.Header))
	rewriteLengths(data, p, wireLen-fcsLen)

	buf.SetTxOffload(p.HeaderLengths, offloadFlagsFor(p.Flags))

	// Taking the packet's slot in the flow count up front hands every
	// concurrent caller a distinct signature sequence number.
	seq := fc.Packet.Add(1) - 1
	if p.Signature != nil {
		buf.SetSignature(p.Signature.StreamID, uint32(seq), 0)
	}

	fc.update(wireLen, now, seq == 0)
}

func offloadFlagsFor(flags pktio.PacketTypeFlags) pktio.TxOffloadFlags {
	var out pktio.TxOffloadFlags
	switch flags.IP() {
	case pktio.IPv4:
		out |= pktio.TxOffloadIPChecksum
	}
	switch flags.Protocol() {
	case pktio.ProtocolTCP:
		out |= pktio.TxOffloadTCPChecksum
	case pktio.ProtocolUDP:
		out |= pktio.TxOffloadUDPChecksum
	}
	return out
}
