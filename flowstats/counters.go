package flowstats

import "github.com/openperf/packetcore/pktio"

// CounterFlags selects which members of a FlowCounters tuple are
// generated for a flow: given a CounterFlags value, NewFlowCounters
// allocates exactly the tuple of counter types required and no more.
type CounterFlags uint16

const (
	FlagInterarrival CounterFlags = 1 << iota
	FlagFrameLength
	FlagSequencing
	FlagLatency
	FlagJitterRFC
	FlagJitterIPDV
	FlagPRBS
	FlagHeader
	FlagDigestFrameLength
	FlagDigestInterarrival
	FlagDigestJitterIPDV
	FlagDigestJitterRFC
	FlagDigestLatency
	FlagDigestSequenceRunLength
)

func (f CounterFlags) has(bit CounterFlags) bool { return f&bit != 0 }

// ResolveDependencies expands f to include every implied dependency:
// jitter_rfc needs latency; jitter_ipdv needs latency and sequencing; any
// digest needs its source counter.
func ResolveDependencies(f CounterFlags) CounterFlags {
	if f.has(FlagJitterRFC) {
		f |= FlagLatency
	}
	if f.has(FlagJitterIPDV) {
		f |= FlagLatency | FlagSequencing
	}
	if f.has(FlagDigestFrameLength) {
		f |= FlagFrameLength
	}
	if f.has(FlagDigestInterarrival) {
		f |= FlagInterarrival
	}
	if f.has(FlagDigestJitterIPDV) {
		f |= FlagJitterIPDV | FlagLatency | FlagSequencing
	}
	if f.has(FlagDigestJitterRFC) {
		f |= FlagJitterRFC | FlagLatency
	}
	if f.has(FlagDigestLatency) {
		f |= FlagLatency
	}
	if f.has(FlagDigestSequenceRunLength) {
		f |= FlagSequencing
	}
	return f
}

// headerCaptureBytes is how much of the first packet of a flow the
// header counter snapshots.
const headerCaptureBytes = 124

// FrameCounter is always present in a FlowCounters tuple.
type FrameCounter struct {
	Count     uint64
	OctetsSum uint64
	FirstRx   int64
	LastRx    int64
}

// LatencyCounter tracks signature round-trip delay.
type LatencyCounter struct {
	Sum       float64
	SumSq     float64
	Min       float64
	Max       float64
	Count     uint64
	LastDelay float64
}

func (l *LatencyCounter) add(delay float64) {
	if l.Count == 0 {
		l.Min, l.Max = delay, delay
	} else {
		if delay < l.Min {
			l.Min = delay
		}
		if delay > l.Max {
			l.Max = delay
		}
	}
	l.Count++
	l.Sum += delay
	l.SumSq += delay * delay
	l.LastDelay = delay
}

// PRBSCounter tracks pseudo-random bit sequence payload octets and
// detected bit errors.
type PRBSCounter struct {
	Octets    uint64
	BitErrors uint64
}

// HeaderCounter snapshots the first packet of a flow.
type HeaderCounter struct {
	Captured bool
	Flags    pktio.PacketTypeFlags
	First    [headerCaptureBytes]byte
	FirstLen int
}

// FlowCounters is the construction-time-selected subset of counters for
// one flow. Fields are nil unless CounterFlags requested them, giving a
// façade over a capability set without runtime type assertions on the
// hot path: callers test Holds(flag) or just check the pointer.
type FlowCounters struct {
	flags CounterFlags

	Frame        FrameCounter
	Interarrival *MomentCounter
	FrameLength  *MomentCounter
	Sequencing   *SequencingCounter
	Latency      *LatencyCounter
	JitterRFC    *MomentCounter
	JitterIPDV   *MomentCounter
	PRBS         *PRBSCounter
	Header       *HeaderCounter
	Digests      *FlowDigests
}

// NewFlowCounters builds the tuple selected by flags, after expanding
// implied dependencies.
func NewFlowCounters(flags CounterFlags) *FlowCounters {
	flags = ResolveDependencies(flags)
	fc := &FlowCounters{flags: flags}
	if flags.has(FlagInterarrival) {
		fc.Interarrival = &MomentCounter{}
	}
	if flags.has(FlagFrameLength) {
		fc.FrameLength = &MomentCounter{}
	}
	if flags.has(FlagSequencing) {
		fc.Sequencing = newSequencingCounter()
	}
	if flags.has(FlagLatency) {
		fc.Latency = &LatencyCounter{}
	}
	if flags.has(FlagJitterRFC) {
		fc.JitterRFC = &MomentCounter{}
	}
	if flags.has(FlagJitterIPDV) {
		fc.JitterIPDV = &MomentCounter{}
	}
	if flags.has(FlagPRBS) {
		fc.PRBS = &PRBSCounter{}
	}
	if flags.has(FlagHeader) {
		fc.Header = &HeaderCounter{}
	}
	if flags&(FlagDigestFrameLength|FlagDigestInterarrival|FlagDigestJitterIPDV|
		FlagDigestJitterRFC|FlagDigestLatency|FlagDigestSequenceRunLength) != 0 {
		fc.Digests = &FlowDigests{}
		if flags.has(FlagDigestFrameLength) {
			fc.Digests.FrameLength = &Digest{}
		}
		if flags.has(FlagDigestInterarrival) {
			fc.Digests.Interarrival = &Digest{}
		}
		if flags.has(FlagDigestJitterIPDV) {
			fc.Digests.JitterIPDV = &Digest{}
		}
		if flags.has(FlagDigestJitterRFC) {
			fc.Digests.JitterRFC = &Digest{}
		}
		if flags.has(FlagDigestLatency) {
			fc.Digests.Latency = &Digest{}
		}
		if flags.has(FlagDigestSequenceRunLength) {
			fc.Digests.SequenceRunLength = &Digest{}
		}
	}
	return fc
}

// Holds reports whether flag was requested for this tuple, directly or
// as an implied dependency.
func (fc *FlowCounters) Holds(flag CounterFlags) bool { return fc.flags.has(flag) }

// SetHeader records the header snapshot on the first packet of a flow,
// if not already captured.
func (fc *FlowCounters) SetHeader(buf pktio.Buffer) {
	if fc.Header == nil || fc.Header.Captured {
		return
	}
	data := buf.Data(0)
	n := len(data)
	if n > headerCaptureBytes {
		n = headerCaptureBytes
	}
	copy(fc.Header.First[:n], data[:n])
	fc.Header.FirstLen = n
	fc.Header.Flags = buf.PacketTypeFlags()
	fc.Header.Captured = true
}

// Update applies the per-packet update rule for every counter this tuple
// holds. headerLen and sigLen are the decoded header and signature
// trailer lengths, used to
// derive the PRBS payload octet count (length - headerLen - sigLen);
// the analyzer core computes these during decode and passes them
// through rather than FlowCounters re-deriving them from raw bytes.
func (fc *FlowCounters) Update(buf pktio.Buffer, headerLen, sigLen uint16) {
	rx := buf.RxTimestamp()
	length := buf.Length()

	firstPacket := fc.Frame.Count == 0
	prevRx := fc.Frame.LastRx

	if firstPacket {
		fc.Frame.FirstRx = rx
	}
	fc.Frame.Count++
	fc.Frame.OctetsSum += uint64(length)
	fc.Frame.LastRx = rx

	if fc.Header != nil {
		fc.SetHeader(buf)
	}

	if fc.Interarrival != nil && !firstPacket {
		drx := float64(rx - prevRx)
		fc.Interarrival.Add(drx)
		if fc.Digests != nil && fc.Digests.Interarrival != nil {
			fc.Digests.Interarrival.Add(drx)
		}
	}

	var runBroke bool
	var priorRun uint64
	var seq uint32
	var hasSeq bool
	if fc.Sequencing != nil {
		seq, hasSeq = buf.SignatureSequenceNumber()
		if hasSeq {
			runBroke, priorRun = fc.Sequencing.Update(seq)
			if runBroke && fc.Digests != nil && fc.Digests.SequenceRunLength != nil {
				fc.Digests.SequenceRunLength.Add(float64(priorRun))
			}
		}
	}

	if fc.Latency != nil {
		if txTS, ok := buf.SignatureTxTimestamp(); ok {
			delay := float64(rx - txTS)
			prevDelay := fc.Latency.LastDelay
			hadPrior := fc.Latency.Count > 0
			fc.Latency.add(delay)

			if fc.JitterRFC != nil && hadPrior {
				d := delay - prevDelay
				if d < 0 {
					d = -d
				}
				fc.JitterRFC.Add(d)
				if fc.Digests != nil && fc.Digests.JitterRFC != nil {
					fc.Digests.JitterRFC.Add(d)
				}
			}
			if fc.JitterIPDV != nil && hadPrior && fc.Sequencing != nil && fc.Sequencing.RunLength > 1 {
				d := delay - prevDelay
				fc.JitterIPDV.Add(d)
				if fc.Digests != nil && fc.Digests.JitterIPDV != nil {
					fc.Digests.JitterIPDV.Add(d)
				}
			}
			if fc.Digests != nil && fc.Digests.Latency != nil {
				fc.Digests.Latency.Add(delay)
			}
		}
	}

	if fc.PRBS != nil {
		payload := int(length) - int(headerLen) - int(sigLen)
		if payload > 0 {
			fc.PRBS.Octets += uint64(payload)
		}
		if n, ok := buf.PRBSBitErrors(); ok {
			fc.PRBS.BitErrors += uint64(n)
		}
	}

	if fc.FrameLength != nil {
		fc.FrameLength.Add(float64(length))
		if fc.Digests != nil && fc.Digests.FrameLength != nil {
			fc.Digests.FrameLength.Add(float64(length))
		}
	}
}
