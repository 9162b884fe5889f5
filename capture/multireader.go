package capture

import "container/heap"

// multiReaderBatch bounds how many records a lookahead refill pulls
// from one reader at a time.
const multiReaderBatch = 32

// mrItem is one per-worker reader's lookahead window.
type mrItem struct {
	reader Reader
	buf    []CapturedPacket
	pos    int
}

func (it *mrItem) head() (CapturedPacket, bool) {
	if it.pos < len(it.buf) {
		return it.buf[it.pos], true
	}
	return CapturedPacket{}, false
}

func (it *mrItem) refill() error {
	it.buf = make([]CapturedPacket, multiReaderBatch)
	n, err := it.reader.ReadPackets(it.buf)
	it.buf = it.buf[:n]
	it.pos = 0
	return err
}

// mrHeap orders items by their head record's timestamp; an item with no
// buffered data has no business being in the heap.
type mrHeap []*mrItem

func (h mrHeap) Len() int { return len(h) }
func (h mrHeap) Less(i, j int) bool {
	a, _ := h[i].head()
	b, _ := h[j].head()
	return a.Header.RxTimestamp < b.Header.RxTimestamp
}
func (h mrHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mrHeap) Push(x interface{}) { *h = append(*h, x.(*mrItem)) }
func (h *mrHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// MultiReader merges N per-worker Readers into one global timestamp
// order. Internally it keeps a min-heap over readers keyed by each
// reader's next packet timestamp; the winning reader is drained of any
// immediately-following packets whose timestamps are still ahead of the
// runner-up before it is pushed back onto the heap. A reader that drains
// its lookahead window is set aside and only refilled the next time
// Next is called, so a buffer slice already handed back to the caller
// is never invalidated out from under it.
type MultiReader struct {
	heap   mrHeap
	idle   []*mrItem
	active *mrItem
}

// NewMultiReader wraps one Reader per worker.
func NewMultiReader(readers []Reader) *MultiReader {
	m := &MultiReader{idle: make([]*mrItem, len(readers))}
	for i, r := range readers {
		m.idle[i] = &mrItem{reader: r}
	}
	return m
}

// Next returns the next packet in global timestamp order, or ok=false
// if every reader is caught up (for now).
func (m *MultiReader) Next() (pkt CapturedPacket, ok bool, err error) {
	if m.active != nil {
		if _, has := m.active.head(); !has {
			m.idle = append(m.idle, m.active)
			m.active = nil
		}
	}
	if len(m.idle) > 0 {
		if err := m.promoteIdle(); err != nil {
			return CapturedPacket{}, false, err
		}
	}
	if m.active == nil {
		if m.heap.Len() == 0 {
			return CapturedPacket{}, false, nil
		}
		m.active = heap.Pop(&m.heap).(*mrItem)
	}

	for {
		if _, has := m.active.head(); !has {
			m.idle = append(m.idle, m.active)
			m.active = nil
			if m.heap.Len() == 0 {
				return CapturedPacket{}, false, nil
			}
			m.active = heap.Pop(&m.heap).(*mrItem)
			continue
		}

		head, _ := m.active.head()
		if m.heap.Len() > 0 {
			if top, has := m.heap[0].head(); has && top.Header.RxTimestamp < head.Header.RxTimestamp {
				heap.Push(&m.heap, m.active)
				m.active = heap.Pop(&m.heap).(*mrItem)
				continue
			}
		}

		m.active.pos++
		return head, true, nil
	}
}

func (m *MultiReader) promoteIdle() error {
	remaining := m.idle[:0]
	for _, it := range m.idle {
		if err := it.refill(); err != nil {
			return err
		}
		if _, has := it.head(); has {
			heap.Push(&m.heap, it)
		} else {
			remaining = append(remaining, it)
		}
	}
	m.idle = remaining
	return nil
}
