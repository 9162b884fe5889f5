package trafficspec

import (
	"sort"

	"github.com/openperf/packetcore/control"
	"github.com/openperf/packetcore/pktio"
)

// SignatureConfig marks a Definition's packets for latency/loss
// signature stamping at a given stream id.
type SignatureConfig struct {
	StreamID uint32
}

// Definition pairs a frozen packet template with a length template, a
// round-robin/sequential weight, and an optional signature config. Each
// template instance is treated as a distinct flow.
type Definition struct {
	Template  *PacketTemplate
	Lengths   LengthTemplate
	Weight    int
	Signature *SignatureConfig
}

func (d *Definition) templateSize() int {
	if d.Template == nil {
		return 0
	}
	return d.Template.Size()
}

// UnpackedPacket is one packet instance resolved from a Sequence: enough
// to hand straight to the generator's transform hot path.
type UnpackedPacket struct {
	FlowIndex      int
	Header         []byte
	HeaderLengths  pktio.HeaderLengths
	Flags          pktio.PacketTypeFlags
	PseudoChecksum uint32
	Signature      *SignatureConfig
	PacketLength   uint16
}

// Sequence indexes an ordered list of Definitions into a flat,
// restartable packet stream.
type Sequence interface {
	Size() int
	FlowCount() int
	MaxPacketLength() uint16
	SumPacketLengths(n int) uint64
	Unpack(start, count int) ([]UnpackedPacket, error)
}

func flowBases(defs []Definition) []int {
	bases := make([]int, len(defs))
	acc := 0
	for i, d := range defs {
		bases[i] = acc
		acc += d.templateSize()
	}
	return bases
}

func totalFlows(defs []Definition) int {
	n := 0
	for _, d := range defs {
		n += d.templateSize()
	}
	return n
}

func maxPacketLength(defs []Definition) uint16 {
	var max uint16
	for _, d := range defs {
		for _, l := range d.Lengths {
			if l > max {
				max = l
			}
		}
	}
	return max
}

func resolve(d *Definition, flowBase, templateIdx int) UnpackedPacket {
	tmplIdx := templateIdx % d.templateSize()
	length := d.Lengths[templateIdx%len(d.Lengths)]
	return UnpackedPacket{
		FlowIndex:      flowBase + tmplIdx,
		Header:         d.Template.Data[tmplIdx],
		HeaderLengths:  d.Template.HeaderLengths[tmplIdx],
		Flags:          d.Template.Flags[tmplIdx],
		PseudoChecksum: d.Template.PseudoChecksums[tmplIdx],
		Signature:      d.Signature,
		PacketLength:   length,
	}
}

func sumPacketLengths(s Sequence, n int) uint64 {
	var sum uint64
	const batch = 1024
	for start := 0; start < n; start += batch {
		count := batch
		if start+count > n {
			count = n - start
		}
		pkts, err := s.Unpack(start, count)
		if err != nil {
			return sum
		}
		for _, p := range pkts {
			sum += uint64(p.PacketLength)
		}
	}
	return sum
}

// --- RoundRobin ---

type rrSlot struct {
	def  int
	turn int
}

// RoundRobin visits definitions in order, each contributing Weight
// consecutive packets from its own template before the next definition's
// turn, repeating for enough rounds that every definition's template
// cycles back to its start at the same global index: the period. The
// per-period visitation plan is precomputed once so Unpack resolves any
// index in O(1) given the (period count, offset) decomposition.
type RoundRobin struct {
	defs         []Definition
	flowBase     []int
	period       int // packets per period
	plan         []rrSlot
	perIterCount []int // per-definition packets contributed in one period
}

// NewRoundRobin builds a RoundRobin sequence over defs. The period is
// chosen so that every definition's weight-sized contribution divides
// its own template size a whole number of times: this is what lets
// Unpack resolve template indices with a plain running counter instead
// of re-deriving phase from scratch on every call, and it's what makes
// the weight ratio exact over one full period rather than merely
// approximate (a definition with a tiny template size next to a large
// weight would otherwise never get its fair share before the period
// wrapped back to the start).
func NewRoundRobin(defs []Definition) (*RoundRobin, error) {
	if len(defs) == 0 {
		return nil, control.Errorf(control.InvalidArgument, "round robin sequence requires at least one definition")
	}
	rounds := 1
	for _, d := range defs {
		if d.templateSize() == 0 || d.Weight <= 0 {
			return nil, control.Errorf(control.InvalidArgument, "definition has zero template size or non-positive weight")
		}
		alignAfter := d.templateSize() / gcd(d.templateSize(), d.Weight)
		rounds = lcm(rounds, alignAfter)
	}

	perIterCount := make([]int, len(defs))
	for i, d := range defs {
		perIterCount[i] = rounds * d.Weight
	}
	period := 0
	for _, c := range perIterCount {
		period += c
	}

	plan := make([]rrSlot, 0, period)
	turn := make([]int, len(defs))
	for r := 0; r < rounds; r++ {
		for i, d := range defs {
			for j := 0; j < d.Weight; j++ {
				plan = append(plan, rrSlot{def: i, turn: turn[i]})
				turn[i]++
			}
		}
	}

	return &RoundRobin{
		defs:         defs,
		flowBase:     flowBases(defs),
		period:       period,
		plan:         plan,
		perIterCount: perIterCount,
	}, nil
}

func (r *RoundRobin) Size() int               { return r.period }
func (r *RoundRobin) FlowCount() int          { return totalFlows(r.defs) }
func (r *RoundRobin) MaxPacketLength() uint16 { return maxPacketLength(r.defs) }
func (r *RoundRobin) SumPacketLengths(n int) uint64 { return sumPacketLengths(r, n) }

// Unpack resolves count packets starting at the global index start.
func (r *RoundRobin) Unpack(start, count int) ([]UnpackedPacket, error) {
	if start < 0 || count < 0 {
		return nil, control.Errorf(control.InvalidArgument, "negative start or count")
	}
	out := make([]UnpackedPacket, count)
	for i := 0; i < count; i++ {
		g := start + i
		iter := g / r.period
		slot := r.plan[g%r.period]
		d := &r.defs[slot.def]
		turn := iter*r.perIterCount[slot.def] + slot.turn
		out[i] = resolve(d, r.flowBase[slot.def], turn)
	}
	return out, nil
}

// --- Sequential ---

// Sequential emits Weight*TemplateSize consecutive packets of one
// definition before moving to the next, repeating once all definitions
// have run. Definition boundaries are precomputed as a prefix-sum table,
// so Unpack resolves any index with a binary search over definitions.
type Sequential struct {
	defs     []Definition
	flowBase []int
	prefix   []int // prefix[i] = packets from defs[0:i]
	total    int
}

// NewSequential builds a Sequential sequence over defs.
func NewSequential(defs []Definition) (*Sequential, error) {
	if len(defs) == 0 {
		return nil, control.Errorf(control.InvalidArgument, "sequential sequence requires at least one definition")
	}
	prefix := make([]int, len(defs)+1)
	for i, d := range defs {
		if d.templateSize() == 0 || d.Weight <= 0 {
			return nil, control.Errorf(control.InvalidArgument, "definition has zero template size or non-positive weight")
		}
		prefix[i+1] = prefix[i] + d.Weight*d.templateSize()
	}
	return &Sequential{
		defs:     defs,
		flowBase: flowBases(defs),
		prefix:   prefix,
		total:    prefix[len(defs)],
	}, nil
}

func (s *Sequential) Size() int               { return s.total }
func (s *Sequential) FlowCount() int          { return totalFlows(s.defs) }
func (s *Sequential) MaxPacketLength() uint16 { return maxPacketLength(s.defs) }
func (s *Sequential) SumPacketLengths(n int) uint64 { return sumPacketLengths(s, n) }

// Unpack resolves count packets starting at the global index start.
func (s *Sequential) Unpack(start, count int) ([]UnpackedPacket, error) {
	if start < 0 || count < 0 {
		return nil, control.Errorf(control.InvalidArgument, "negative start or count")
	}
	out := make([]UnpackedPacket, count)
	for i := 0; i < count; i++ {
		g := (start + i) % s.total
		// prefix is sorted ascending; find the last definition whose
		// prefix boundary is <= g.
		di := sort.Search(len(s.prefix), func(k int) bool { return s.prefix[k] > g }) - 1
		d := &s.defs[di]
		local := g - s.prefix[di]
		out[i] = resolve(d, s.flowBase[di], local)
	}
	return out, nil
}
