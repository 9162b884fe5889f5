package capturesink

import (
	"sync/atomic"

	"github.com/openperf/packetcore/capture"
	"github.com/openperf/packetcore/control"
	"github.com/openperf/packetcore/pktio"
)

const maxSubBurst = 64

// Sink drives the capture state machine for a fixed set of I/O workers.
// It is registered with the driver once per worker via ForWorker; state
// transitions are coordinated across concurrently pushing workers with
// a single atomic state word and compare-and-swap, since any worker's
// burst may be the one that satisfies a start or stop trigger.
type Sink struct {
	cfg     Config
	indexes map[uint32]uint8

	result atomic.Pointer[capture.SinkResult]
	state  atomic.Int32

	startTimeNs atomic.Int64
	stopTimeNs  atomic.Int64 // 0 means no duration deadline is active
}

// New validates cfg and returns an idle sink. No result is installed
// until Start.
func New(cfg Config) (*Sink, error) {
	if len(cfg.WorkerIDs) == 0 {
		return nil, control.Errorf(control.InvalidArgument, "capture sink requires at least one worker id")
	}
	if len(cfg.WorkerIDs) > 256 {
		return nil, control.Errorf(control.InvalidArgument,
			"worker_ids must fit an 8-bit shard index (max 256), got %d", len(cfg.WorkerIDs))
	}
	if cfg.Buffers != nil && len(cfg.Buffers) != len(cfg.WorkerIDs) {
		return nil, control.Errorf(control.InvalidArgument,
			"buffers count %d does not match worker count %d", len(cfg.Buffers), len(cfg.WorkerIDs))
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

// Start builds a buffer per worker (unless cfg.Buffers was supplied
// directly) and installs a fresh capture.SinkResult. The initial state
// is Armed if a start trigger is configured, Started otherwise.
func (s *Sink) Start() error {
	if s.Active() {
		return control.Errorf(control.FailedPrecondition, "sink is already started")
	}
	buffers := s.cfg.Buffers
	if buffers == nil {
		buffers = make([]capture.Buffer, len(s.cfg.WorkerIDs))
		for i := range buffers {
			var buf capture.Buffer
			var err error
			if s.cfg.WrapBuffer {
				buf, err = capture.NewWrappingBuffer(s.cfg.BufferSize, s.cfg.MaxPacketSize)
			} else {
				buf, err = capture.NewLinearBuffer(s.cfg.BufferSize, s.cfg.MaxPacketSize)
			}
			if err != nil {
				return control.Wrap(control.ResourceExhausted, err, "allocating capture buffer")
			}
			buffers[i] = buf
		}
	}
	result := capture.NewSinkResult(buffers)
	result.SetActive(true)
	s.result.Store(result)
	s.startTimeNs.Store(0)
	s.stopTimeNs.Store(0)
	if s.cfg.StartTrigger != nil {
		s.state.Store(int32(Armed))
	} else {
		now := pktio.Now()
		s.startTimeNs.Store(now)
		if s.cfg.Duration > 0 {
			s.stopTimeNs.Store(now + int64(s.cfg.Duration))
		}
		s.state.Store(int32(Started))
	}
	return nil
}

// Stop clears the installed result and returns to Stopped.
func (s *Sink) Stop() error {
	old := s.result.Swap(nil)
	if old == nil {
		return control.Errorf(control.FailedPrecondition, "sink is not started")
	}
	old.SetActive(false)
	s.state.Store(int32(Stopped))
	return nil
}

// Active reports whether a result is currently installed and still
// active (a push that stops the capture clears the active flag).
func (s *Sink) Active() bool {
	r := s.result.Load()
	return r != nil && r.Active()
}

// State reports the current lifecycle state.
func (s *Sink) State() State { return State(s.state.Load()) }

// Result returns the currently installed result, or nil before Start and
// after Stop. A capture that stopped itself during a push keeps its
// (now inactive) result installed.
func (s *Sink) Result() *capture.SinkResult { return s.result.Load() }

// RequiredFeatures reports the pktio.FeatureFlags this sink's attached
// filter and triggers need the driver to decode; rx timestamp is always
// needed to evaluate duration deadlines.
func (s *Sink) RequiredFeatures() pktio.FeatureFlags {
	f := pktio.FeatureRxTimestamp
	if s.cfg.Filter != nil {
		f |= s.cfg.Filter.RequiredFeatures()
	}
	if s.cfg.StartTrigger != nil {
		f |= s.cfg.StartTrigger.RequiredFeatures()
	}
	if s.cfg.StopTrigger != nil {
		f |= s.cfg.StopTrigger.RequiredFeatures()
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
	result := s.result.Load()
	if result == nil {
		return n
	}

	work := pkts
	stopping := false
	state := State(s.state.Load())

	if state == Armed {
		hit := s.cfg.StartTrigger.FindNext(pkts, 0)
		if hit >= n {
			return n
		}
		startTS := pkts[hit].RxTimestamp()
		if s.state.CompareAndSwap(int32(Armed), int32(Started)) {
			s.startTimeNs.Store(startTS)
			if s.cfg.Duration > 0 {
				s.stopTimeNs.Store(startTS + int64(s.cfg.Duration))
			}
		}
		// A racing worker that loses the CAS above still observes
		// Started (and the stop deadline, if any) on this same push via
		// the loads below, since the store happened-before them.
		work = pkts[hit:]
		state = Started
	}

	if state != Started {
		return n
	}

	if s.cfg.StopTrigger != nil {
		if hit := s.cfg.StopTrigger.FindNext(work, 0); hit < len(work) {
			work = work[:hit+1]
			stopping = true
		}
	}

	if stopTime := s.stopTimeNs.Load(); stopTime != 0 {
		for i, buf := range work {
			if buf.RxTimestamp() > stopTime {
				work = work[:i]
				stopping = true
				break
			}
		}
	}

	buffer := result.Buffer(int(idx))

	if f := s.cfg.Filter; f != nil {
		var filtered [maxSubBurst]pktio.Buffer
		for off := 0; off < len(work); off += maxSubBurst {
			end := off + maxSubBurst
			if end > len(work) {
				end = len(work)
			}
			sub := work[off:end]
			kept := f.FilterBurst(sub, filtered[:len(sub)])
			buffer.WritePackets(filtered[:kept])
		}
	} else if len(work) > 0 {
		buffer.WritePackets(work)
	}

	if stopping || buffer.Stats().Full {
		if s.state.CompareAndSwap(int32(Started), int32(Stopped)) {
			result.SetActive(false)
			if cb := s.cfg.OnStateChanged; cb != nil {
				cb(Stopped)
			}
		}
	}

	return n
}
