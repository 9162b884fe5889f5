// Package capturesink implements the capture-side sink state machine:
// Stopped, an optional Armed phase gated by a start trigger filter, and
// Started, writing received bursts into a per-worker capture.Buffer
// until a stop trigger, a duration, or the buffer filling stops it
// again. Grounded on parser/pcap.go's sink wiring and the state-flag
// idioms in etl/globals.go (an atomic int32 state with named
// transitions rather than a bare bool).
package capturesink

import (
	"time"

	"github.com/openperf/packetcore/bpfengine"
	"github.com/openperf/packetcore/capture"
)

// Config describes a new capture sink.
type Config struct {
	// WorkerIDs enumerates the I/O workers this sink is attached to, in
	// the order their shard indexes are assigned.
	WorkerIDs []uint32

	// Buffers supplies one capture.Buffer per worker directly, for file
	// (PCAPNG) capture where construction needs an io.Writer the sink
	// itself has no opinion about. Leave nil to have New build an
	// in-memory buffer per worker from WrapBuffer/BufferSize/
	// MaxPacketSize instead.
	Buffers []capture.Buffer

	WrapBuffer    bool
	BufferSize    int
	MaxPacketSize int

	// Duration bounds how long a Started capture runs before it stops
	// itself, measured from Start (or, with a StartTrigger, from the rx
	// timestamp of the packet that fired the trigger). Zero means unbounded (subject only to triggers or the buffer
	// filling).
	Duration time.Duration

	// Filter, if set, drops packets before they reach the buffer.
	Filter *bpfengine.Filter
	// StartTrigger, if set, puts the sink in Armed instead of Started on
	// Start; the first packet it matches opens the capture.
	StartTrigger *bpfengine.Filter
	// StopTrigger, if set, ends the capture at the first packet it
	// matches (inclusive).
	StopTrigger *bpfengine.Filter

	// OnStateChanged, if set, is invoked (off the push hot path's
	// locking, but still from a worker goroutine) whenever a push stops
	// the capture (stop trigger, duration, or buffer full). An explicit
	// Stop call does not invoke it.
	OnStateChanged func(State)
}
