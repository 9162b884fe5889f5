package analyzer

import (
	"strconv"
	"sync/atomic"

	"github.com/openperf/packetcore/control"
	"github.com/openperf/packetcore/flowstats"
	"github.com/openperf/packetcore/pktio"
)

const maxSubBurst = 64

// Sink accumulates per-flow and per-protocol counters across a fixed set
// of I/O workers. It is registered with the driver once per worker via
// ForWorker; Push calls from multiple workers run concurrently against
// disjoint shards, so Sink itself needs no internal locking beyond the
// atomic result handoff.
type Sink struct {
	cfg     Config
	indexes map[uint32]uint8

	result atomic.Pointer[flowstats.SinkResult]
}

// New validates cfg and returns an idle Sink. No result is installed
// until Start.
func New(cfg Config) (*Sink, error) {
	if len(cfg.WorkerIDs) == 0 {
		return nil, control.Errorf(control.InvalidArgument, "analyzer sink requires at least one worker id")
	}
	if len(cfg.WorkerIDs) > 256 {
		return nil, control.Errorf(control.InvalidArgument,
			"worker_ids must fit an 8-bit shard index (max 256), got %d", len(cfg.WorkerIDs))
	}
	indexes := make(map[uint32]uint8, len(cfg.WorkerIDs))
	for i, id := range cfg.WorkerIDs {
		if _, dup := indexes[id]; dup {
			return nil, control.Errorf(control.InvalidArgument, "duplicate worker id %d", id)
		}
		indexes[id] = uint8(i)
	}
	return &Sink{cfg: cfg, indexes: indexes}, nil
}

// Start installs result and marks it active. Start implements
// control.Resource by building a fresh result from the sink's own
// configuration when called with no argument available (see
// StartResult for the form that takes an externally supplied result).
func (s *Sink) Start() error {
	return s.StartResult(flowstats.NewSinkResult(len(s.cfg.WorkerIDs), s.cfg.Counters))
}

// StartResult installs an explicit result, e.g. one previously returned
// by Reset so accumulated counters carry over a restart.
func (s *Sink) StartResult(result *flowstats.SinkResult) error {
	if result == nil {
		return control.Errorf(control.InvalidArgument, "start requires a non-nil result")
	}
	if s.Active() {
		return control.Errorf(control.FailedPrecondition, "sink is already started")
	}
	result.SetActive(true)
	s.result.Store(result)
	return nil
}

// Stop clears the installed result. The worker that owns each shard may
// complete one more burst against the old result; callers must not
// reuse or free it until a quiescent period has passed.
func (s *Sink) Stop() error {
	old := s.result.Swap(nil)
	if old == nil {
		return control.Errorf(control.FailedPrecondition, "sink is not started")
	}
	old.SetActive(false)
	return nil
}

// Reset installs a fresh result built from the sink's configured counter
// flags and returns whatever was previously installed (nil if the sink
// was stopped).
func (s *Sink) Reset() *flowstats.SinkResult {
	fresh := flowstats.NewSinkResult(len(s.cfg.WorkerIDs), s.cfg.Counters)
	fresh.SetActive(s.Active())
	return s.result.Swap(fresh)
}

// Active reports whether a result is currently installed and started.
func (s *Sink) Active() bool {
	r := s.result.Load()
	return r != nil && r.Active()
}

// Result returns the currently installed result, or nil if none is
// installed. Reset on a stopped sink installs an inactive result.
func (s *Sink) Result() *flowstats.SinkResult { return s.result.Load() }

// RequiredFeatures reports the pktio.FeatureFlags this sink's configured
// counters and attached filter need the driver to decode.
func (s *Sink) RequiredFeatures() pktio.FeatureFlags {
	resolved := flowstats.ResolveDependencies(s.cfg.Counters)
	f := pktio.FeatureRxTimestamp | pktio.FeatureRSSHash | pktio.FeaturePacketTypeDecode
	if resolved&(flowstats.FlagJitterIPDV|flowstats.FlagJitterRFC|flowstats.FlagLatency|flowstats.FlagSequencing) != 0 {
		f |= pktio.FeatureSignatureDecode
	}
	if resolved&flowstats.FlagPRBS != 0 {
		f |= pktio.FeatureSignatureDecode | pktio.FeaturePRBSErrorDetect
	}
	if s.cfg.Filter != nil {
		f |= s.cfg.Filter.RequiredFeatures()
	}
	return f
}

// workerSink is the pktio.Sink handle bound to one configured worker.
type workerSink struct {
	s   *Sink
	idx uint8
}

// ForWorker returns the pktio.Sink the driver should register for
// workerID.
func (s *Sink) ForWorker(workerID uint32) (pktio.Sink, error) {
	idx, ok := s.indexes[workerID]
	if !ok {
		return nil, control.Errorf(control.NotFound, "unknown worker id %d", workerID)
	}
	return &workerSink{s: s, idx: idx}, nil
}

func (w *workerSink) RequiredFeatures() pktio.FeatureFlags { return w.s.RequiredFeatures() }
func (w *workerSink) Push(pkts []pktio.Buffer) int          { return w.s.push(w.idx, pkts) }

func (s *Sink) push(idx uint8, pkts []pktio.Buffer) int {
	n := len(pkts)
	label := strconv.Itoa(int(idx))
	result := s.result.Load()
	if result == nil {
		packetsDropped.WithLabelValues(label).Add(float64(n))
		return 0
	}
	packetsPushed.WithLabelValues(label).Add(float64(n))

	if f := s.cfg.Filter; f != nil {
		var filtered [maxSubBurst]pktio.Buffer
		for off := 0; off < n; off += maxSubBurst {
			end := off + maxSubBurst
			if end > n {
				end = n
			}
			sub := pkts[off:end]
			kept := f.FilterBurst(sub, filtered[:len(sub)])
			s.update(result, idx, filtered[:kept])
		}
	} else {
		s.update(result, idx, pkts)
	}

	shard := result.Flows(int(idx))
	shard.Commit()
	flowsActive.WithLabelValues(label).Set(float64(shard.Len()))
	return n
}

// update classifies and accumulates one already-filtered burst: protocol
// counters in sub-bursts of maxSubBurst, then per-packet flow counter
// updates against the worker's own shard.
func (s *Sink) update(result *flowstats.SinkResult, idx uint8, pkts []pktio.Buffer) {
	if len(pkts) == 0 {
		return
	}
	proto := result.Protocol(int(idx))
	shard := result.Flows(int(idx))

	for off := 0; off < len(pkts); off += maxSubBurst {
		end := off + maxSubBurst
		if end > len(pkts) {
			end = len(pkts)
		}
		sub := pkts[off:end]

		for _, buf := range sub {
			proto.Observe(buf.PacketTypeFlags())
		}
		for _, buf := range sub {
			streamID, hasSig := buf.SignatureStreamID()
			key := flowstats.NewFlowKey(buf.RSSHash(), streamID, hasSig)
			fc := shard.GetOrCreate(key)
			fc.SetHeader(buf)
			headerLen, sigLen := decodeLengths(buf, hasSig)
			fc.Update(buf, headerLen, sigLen)
		}
	}
}
