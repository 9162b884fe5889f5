package flowstats_test

import (
	"sync"
	"testing"

	"github.com/openperf/packetcore/flowstats"
)

func TestFlowMapGetOrCreateInsertsOnMiss(t *testing.T) {
	fm := flowstats.NewFlowMap(flowstats.FlagFrameLength)
	k := flowstats.NewFlowKey(1, 0, false)
	fc1 := fm.GetOrCreate(k)
	fc2 := fm.GetOrCreate(k)
	if fc1 != fc2 {
		t.Fatal("GetOrCreate should return the same node for the same key")
	}
	if fm.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", fm.Len())
	}
}

func TestFlowMapDeleteSchedulesGC(t *testing.T) {
	fm := flowstats.NewFlowMap(0)
	k := flowstats.NewFlowKey(1, 0, false)
	fm.GetOrCreate(k)

	r := fm.OpenReader()
	if r == nil {
		t.Fatal("OpenReader returned nil")
	}

	fm.Delete(k)
	if fm.PendingGC() != 1 {
		t.Fatalf("PendingGC() = %d, want 1 immediately after delete", fm.PendingGC())
	}

	// The open reader is still parked at an old epoch, so a Commit must
	// not drop the pending reclamation: a reader at epoch E only ever
	// observes a node whose reclamation was scheduled at epoch ≥ E.
	fm.Commit()
	if fm.PendingGC() != 1 {
		t.Fatalf("PendingGC() = %d after Commit with a stale reader, want 1", fm.PendingGC())
	}

	r.Advance()
	fm.Commit()
	if fm.PendingGC() != 0 {
		t.Fatalf("PendingGC() = %d after reader advanced, want 0", fm.PendingGC())
	}
	r.Close()
}

func TestFlowMapDeleteWithNoReadersReclaimsImmediately(t *testing.T) {
	fm := flowstats.NewFlowMap(0)
	k := flowstats.NewFlowKey(7, 3, true)
	fm.GetOrCreate(k)
	fm.Delete(k)
	fm.Commit()
	if fm.PendingGC() != 0 {
		t.Fatalf("PendingGC() = %d with no registered readers, want 0", fm.PendingGC())
	}
}

func TestFlowMapConcurrentReadersDoNotRace(t *testing.T) {
	fm := flowstats.NewFlowMap(flowstats.FlagFrameLength)
	for i := 0; i < 50; i++ {
		fm.GetOrCreate(flowstats.NewFlowKey(uint32(i), 0, false))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := fm.OpenReader()
			if r == nil {
				return
			}
			defer r.Close()
			for j := 0; j < 20; j++ {
				_ = fm.Snapshot()
				r.Advance()
			}
		}()
	}

	for i := 50; i < 100; i++ {
		fm.GetOrCreate(flowstats.NewFlowKey(uint32(i), 0, false))
		fm.Commit()
	}
	wg.Wait()

	if fm.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", fm.Len())
	}
}
