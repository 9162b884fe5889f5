package flowstats

// sequenceWindowSize is the fixed ring size backing SequencingCounter's
// dup/late/reordered classification (decided open question: a duplicate
// that has already scrolled out of this window is counted as `late`
// rather than `dup`, since we can no longer prove it is an exact repeat
// once evicted).
const sequenceWindowSize = 1000

// SequencingCounter tracks gap/dup/late/reordered classification over a
// 32-bit signature sequence number stream, using the same
// wraparound-safe signed-delta idiom TCP sequence numbers use, applied
// here to the generator's signature sequence number instead.
type SequencingCounter struct {
	initialized bool
	LastSeq     uint32
	InOrder     uint64
	Dup         uint64
	Late        uint64
	Reordered   uint64
	Gap         uint64
	RunLength   uint64

	window [sequenceWindowSize]uint32
	seen   map[uint32]struct{}
	cursor int
	filled int
}

func newSequencingCounter() *SequencingCounter {
	return &SequencingCounter{seen: make(map[uint32]struct{}, sequenceWindowSize)}
}

// seqDiff mirrors tcp.SeqNum.diff: a signed wraparound-aware delta.
func seqDiff(a, b uint32) int32 {
	return int32(a - b)
}

// remember pushes seq into the ring, evicting the oldest entry from the
// membership set once the ring wraps.
func (s *SequencingCounter) remember(seq uint32) {
	if s.filled == sequenceWindowSize {
		delete(s.seen, s.window[s.cursor])
	} else {
		s.filled++
	}
	s.window[s.cursor] = seq
	s.seen[seq] = struct{}{}
	s.cursor = (s.cursor + 1) % sequenceWindowSize
}

func (s *SequencingCounter) inWindow(seq uint32) bool {
	_, ok := s.seen[seq]
	return ok
}

// Update applies the sequencing update rule for one observed signature
// sequence number. priorRunLength receives the run length that was just
// broken, for the caller to push into the sequence_run_length digest
// (only meaningful when brokeRun is true).
func (s *SequencingCounter) Update(seq uint32) (brokeRun bool, priorRunLength uint64) {
	if !s.initialized {
		s.initialized = true
		s.LastSeq = seq
		s.InOrder++
		s.RunLength = 1
		s.remember(seq)
		return false, 0
	}

	delta := seqDiff(seq, s.LastSeq)
	switch {
	case delta == 1:
		s.InOrder++
		s.RunLength++
		s.LastSeq = seq
		s.remember(seq)
		return false, 0

	case delta > 1:
		s.Gap += uint64(delta - 1)
		prior := s.RunLength
		s.RunLength = 1
		s.LastSeq = seq
		s.remember(seq)
		return true, prior

	default:
		// delta <= 0: out of order with respect to LastSeq.
		if s.inWindow(seq) {
			s.Dup++
		} else {
			s.Late++
		}
		s.Reordered++
		return false, 0
	}
}
