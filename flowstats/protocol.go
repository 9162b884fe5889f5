package flowstats

import (
	"sync/atomic"

	"github.com/openperf/packetcore/pktio"
)

// cachePadding keeps each lane's counter on its own cache line, the same
// false-sharing avoidance idiom as vsa.stripe's padded atomics: pad
// every independently-written atomic out to a full line.
const cachePadding = 64 - 8

type paddedCounter struct {
	val atomic.Uint64
	_   [cachePadding]byte
}

func (p *paddedCounter) add(n uint64) { p.val.Add(n) }
func (p *paddedCounter) load() uint64 { return p.val.Load() }

const laneCount = 1 << 4 // pktio lanes are 4-bit values

// ProtocolCounters holds three lane-indexed counter arrays (ethernet, ip,
// transport), one slot per possible 4-bit lane value.
type ProtocolCounters struct {
	ethernet  [laneCount]paddedCounter
	ip        [laneCount]paddedCounter
	transport [laneCount]paddedCounter
}

// Observe increments the three lane counters derived from flags.
func (p *ProtocolCounters) Observe(flags pktio.PacketTypeFlags) {
	p.ethernet[flags.Ethernet()&(laneCount-1)].add(1)
	p.ip[flags.IP()&(laneCount-1)].add(1)
	p.transport[flags.Protocol()&(laneCount-1)].add(1)
}

// Ethernet returns the counter value for an ethernet-lane value.
func (p *ProtocolCounters) Ethernet(v pktio.PacketTypeFlags) uint64 { return p.ethernet[v&(laneCount-1)].load() }

// IP returns the counter value for an ip-lane value.
func (p *ProtocolCounters) IP(v pktio.PacketTypeFlags) uint64 { return p.ip[v&(laneCount-1)].load() }

// Transport returns the counter value for a transport-lane value.
func (p *ProtocolCounters) Transport(v pktio.PacketTypeFlags) uint64 {
	return p.transport[v&(laneCount-1)].load()
}

// EthernetTotal sums every ethernet lane, used to check the
// sum(flow_counters.packet) == protocol_counters.ethernet[all] invariant.
func (p *ProtocolCounters) EthernetTotal() uint64 {
	var total uint64
	for i := range p.ethernet {
		total += p.ethernet[i].load()
	}
	return total
}

// Merge folds other's counts into p, used when aggregating per-worker
// shards into a SinkResult-wide view.
func (p *ProtocolCounters) Merge(other *ProtocolCounters) {
	for i := range p.ethernet {
		p.ethernet[i].add(other.ethernet[i].load())
		p.ip[i].add(other.ip[i].load())
		p.transport[i].add(other.transport[i].load())
	}
}
