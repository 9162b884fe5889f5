package flowstats

import "sync/atomic"

// SinkResult is the per-analyzer-sink aggregate: one FlowMap shard and
// one ProtocolCounters shard per worker, plus an atomic active flag
// flipped by the owning analyzer.Sink's lifecycle operations
// (start/stop/reset).
type SinkResult struct {
	active atomic.Bool

	flowShards     []*FlowMap
	protocolShards []*ProtocolCounters
}

// NewSinkResult allocates workers shards, each a FlowMap configured with
// the given counter flags.
func NewSinkResult(workers int, flags CounterFlags) *SinkResult {
	sr := &SinkResult{
		flowShards:     make([]*FlowMap, workers),
		protocolShards: make([]*ProtocolCounters, workers),
	}
	for i := 0; i < workers; i++ {
		sr.flowShards[i] = NewFlowMap(flags)
		sr.protocolShards[i] = &ProtocolCounters{}
	}
	return sr
}

// Flows returns the FlowMap shard owned by worker w.
func (sr *SinkResult) Flows(w int) *FlowMap { return sr.flowShards[w] }

// Protocol returns the ProtocolCounters shard owned by worker w.
func (sr *SinkResult) Protocol(w int) *ProtocolCounters { return sr.protocolShards[w] }

// Workers reports the configured worker/shard count.
func (sr *SinkResult) Workers() int { return len(sr.flowShards) }

// Active reports whether the owning sink is currently started.
func (sr *SinkResult) Active() bool { return sr.active.Load() }

// SetActive flips the atomic active flag.
func (sr *SinkResult) SetActive(v bool) { sr.active.Store(v) }

// Reset drops every shard's flows and protocol counters, reallocating
// fresh ones in place.
func (sr *SinkResult) Reset(flags CounterFlags) {
	for i := range sr.flowShards {
		sr.flowShards[i] = NewFlowMap(flags)
		sr.protocolShards[i] = &ProtocolCounters{}
	}
}

// MergedEthernetTotal sums the ethernet-lane totals across every worker
// shard, used to check the invariant that summed flow packet counts
// equal the merged ethernet protocol counter total.
func (sr *SinkResult) MergedEthernetTotal() uint64 {
	var total uint64
	for _, p := range sr.protocolShards {
		total += p.EthernetTotal()
	}
	return total
}
