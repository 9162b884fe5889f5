// Package analyzer implements the receive-side flow statistics sink: a
// driver-registered pktio.Sink per worker that classifies, filters and
// accumulates per-flow counters into a result the control plane can
// query, grounded on parser/pcap.go's PCAPParser/Sink wiring and
// row/row.go's Sink interface shape.
package analyzer

import (
	"github.com/openperf/packetcore/bpfengine"
	"github.com/openperf/packetcore/flowstats"
)

// Config describes a new analyzer sink.
type Config struct {
	// Counters selects which FlowCounters members are generated per flow.
	Counters flowstats.CounterFlags
	// WorkerIDs enumerates the I/O workers this sink is attached to, in
	// the order their shard indexes are assigned.
	WorkerIDs []uint32
	// Filter is an optional attached BPF filter; packets failing it are
	// dropped before flow classification.
	Filter *bpfengine.Filter
}
