package generator_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openperf/packetcore/generator"
	"github.com/openperf/packetcore/pktio"
	"github.com/openperf/packetcore/trafficspec"
)

// TestConcurrentTransformReservesDisjointRanges drives many goroutines
// against a single shared Source, each polling Transform concurrently,
// and checks the signature sequence numbers handed out across all of
// them form a contiguous set with no repeats and no gaps: the atomic
// tx_idx reservation must partition the stream correctly regardless of
// how many callers race on it.
func TestConcurrentTransformReservesDisjointRanges(t *testing.T) {
	tmpl := udpTemplate(t)
	defs := []trafficspec.Definition{
		{Template: tmpl, Lengths: trafficspec.LengthTemplate{100}, Weight: 1, Signature: &trafficspec.SignatureConfig{StreamID: 7}},
	}
	seq, err := trafficspec.NewRoundRobin(defs)
	if err != nil {
		t.Fatal(err)
	}
	const total = 4000
	src, err := generator.New(generator.Config{
		Sequence: seq,
		Duration: generator.TxDuration{Kind: generator.Frames, Count: total},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const perCallBatch = 13 // deliberately awkward to stress partial-batch boundaries
	var g errgroup.Group
	var mu sync.Mutex
	seen := make(map[uint32]bool)
	sent := 0

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				in := recycledBuffers(perCallBatch, 256)
				out := make([]pktio.Buffer, perCallBatch)
				n := src.Transform(in, out)
				if n == 0 {
					return nil
				}
				if err := func() error {
					mu.Lock()
					defer mu.Unlock()
					for i := 0; i < n; i++ {
						p := out[i]
						seqNum, ok := p.SignatureSequenceNumber()
						if !ok {
							return fmt.Errorf("packet missing signature sequence number")
						}
						if seen[seqNum] {
							return fmt.Errorf("sequence number %d emitted twice", seqNum)
						}
						seen[seqNum] = true
					}
					sent += n
					return nil
				}(); err != nil {
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if sent != total {
		t.Fatalf("total packets sent = %d, want %d", sent, total)
	}
	if len(seen) != total {
		t.Fatalf("distinct sequence numbers = %d, want %d", len(seen), total)
	}
	for i := uint32(0); i < total; i++ {
		if !seen[i] {
			t.Fatalf("sequence number %d was never emitted", i)
		}
	}
}

// TestRoundRobinTwoDefinitionsInterleaveByWeight drives a generator
// over two definitions of unequal weight and checks packets alternate
// between their flow index ranges in proportion to weight, rather than
// draining one definition before touching the other.
func TestRoundRobinTwoDefinitionsInterleaveByWeight(t *testing.T) {
	tmplA := udpTemplate(t)
	tmplB := udpTemplate(t)
	defs := []trafficspec.Definition{
		{Template: tmplA, Lengths: trafficspec.LengthTemplate{100}, Weight: 1},
		{Template: tmplB, Lengths: trafficspec.LengthTemplate{200}, Weight: 2},
	}
	seq, err := trafficspec.NewRoundRobin(defs)
	if err != nil {
		t.Fatal(err)
	}
	src, err := generator.New(generator.Config{Sequence: seq})
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}

	in := recycledBuffers(6, 256)
	out := make([]pktio.Buffer, 6)
	if n := src.Transform(in, out); n != 6 {
		t.Fatalf("Transform wrote %d, want 6", n)
	}

	// flow 0 belongs to definition A (one template instance), flow 1
	// belongs to definition B: with weights 1:2 every packet in this
	// batch was written, and the 1:2 weight split must show up in the
	// per-flow packet counts.
	// One round is A,B,B; the two definitions are told apart by their
	// written lengths (the 4-byte FCS excluded).
	wantLen := []int{96, 196, 196, 96, 196, 196}
	for i := 0; i < 6; i++ {
		if out[i].Length() == 0 {
			t.Fatalf("packet %d was never written", i)
		}
		if got := int(out[i].Length()); got != wantLen[i] {
			t.Fatalf("packet %d length = %d, want %d (round robin order A,B,B,A,B,B)", i, got, wantLen[i])
		}
	}
	counters := src.Result().Counters()
	if got := counters[0].Packet.Load(); got != 2 {
		t.Fatalf("flow 0 (definition A) packet count = %d, want 2", got)
	}
	if got := counters[1].Packet.Load(); got != 4 {
		t.Fatalf("flow 1 (definition B) packet count = %d, want 4", got)
	}
}

// TestTimeBoundedDurationConvertsRateToFrameLimit checks a Time
// duration is converted to a frame limit via the configured rate
// before any packets are sent.
func TestTimeBoundedDurationConvertsRateToFrameLimit(t *testing.T) {
	tmpl := udpTemplate(t)
	defs := []trafficspec.Definition{{Template: tmpl, Lengths: trafficspec.LengthTemplate{100}, Weight: 1}}
	seq, err := trafficspec.NewRoundRobin(defs)
	if err != nil {
		t.Fatal(err)
	}
	src, err := generator.New(generator.Config{
		Sequence: seq,
		Load:     generator.SourceLoad{RatePacketsPerHour: 3600},
		Duration: generator.TxDuration{Kind: generator.Time, Time: 5 * time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}

	in := recycledBuffers(10, 256)
	out := make([]pktio.Buffer, 10)
	// 3600 packets/hour for 5s ~= 5 packets.
	if n := src.Transform(in, out); n != 5 {
		t.Fatalf("Transform wrote %d, want 5", n)
	}
}
