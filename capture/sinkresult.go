package capture

import "sync/atomic"

// SinkResult is a capturesink's per-worker aggregate: one Buffer shard
// per worker plus an atomic active flag flipped by the owning sink's
// lifecycle operations, the same shape as flowstats.SinkResult applied
// to capture buffers instead of flow counters.
type SinkResult struct {
	active  atomic.Bool
	buffers []Buffer
}

// NewSinkResult wraps an already-constructed buffer per worker. Buffers
// are supplied by the caller (capturesink.New) since the buffer variant
// (linear, wrapping, PCAPNG file) is a per-deployment choice.
func NewSinkResult(buffers []Buffer) *SinkResult {
	return &SinkResult{buffers: buffers}
}

// Buffer returns the shard owned by worker w.
func (sr *SinkResult) Buffer(w int) Buffer { return sr.buffers[w] }

// Workers reports the configured worker/shard count.
func (sr *SinkResult) Workers() int { return len(sr.buffers) }

// Active reports whether the owning sink is currently started.
func (sr *SinkResult) Active() bool { return sr.active.Load() }

// SetActive flips the atomic active flag.
func (sr *SinkResult) SetActive(v bool) { sr.active.Store(v) }
