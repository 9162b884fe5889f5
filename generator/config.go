// Package generator implements the transmit-side source: a frozen
// trafficspec.Sequence driven by an atomic transmit cursor, filling
// recycled buffers with header bytes, rewritten length fields and
// folded checksums, offload flags, and an optional signature stamp on
// each poll. Grounded on analyzer.Sink's atomic-result/Start-Stop shape
// and parser.GetPackets' fixed-size burst processing, generalized from a
// read-side iterator to a write-side one.
package generator

import (
	"time"

	"github.com/openperf/packetcore/trafficspec"
)

// TxDurationKind selects how a generator bounds its total transmit
// count.
type TxDurationKind int

const (
	// Continuous runs until stopped; the Source's frame limit is unbounded (-1).
	Continuous TxDurationKind = iota
	// Frames bounds the run to an exact packet count.
	Frames
	// Time bounds the run to approximately Value, converted to a packet
	// count via the configured load's rate.
	Time
)

// TxDuration describes a generator's stop condition.
type TxDuration struct {
	Kind  TxDurationKind
	Count uint64        // used when Kind == Frames
	Time  time.Duration // used when Kind == Time
}

// SourceLoad bounds how fast and how much a generator sends per poll.
type SourceLoad struct {
	BurstSize int
	// RatePacketsPerHour converts a Time-bounded TxDuration to a packet
	// count.
	RatePacketsPerHour uint64
}

// Config describes a new generator source.
type Config struct {
	Sequence trafficspec.Sequence
	Load     SourceLoad
	Duration TxDuration
}

// txLimit computes the packet-count ceiling implied by cfg.Duration,
// or -1 for an unbounded (Continuous) run.
func txLimit(cfg Config) int64 {
	switch cfg.Duration.Kind {
	case Frames:
		return int64(cfg.Duration.Count)
	case Time:
		hours := cfg.Duration.Time.Hours()
		return int64(float64(cfg.Load.RatePacketsPerHour) * hours)
	default:
		return -1
	}
}
