package capturesink_test

import (
	"testing"
	"time"

	"github.com/openperf/packetcore/bpfengine"
	"github.com/openperf/packetcore/capturesink"
	"github.com/openperf/packetcore/pktio"
	"github.com/openperf/packetcore/pktio/sim"
)

func packet(rxTS int64) *sim.Packet {
	p := sim.NewPacket(make([]byte, 64))
	p.SetRxTimestamp(rxTS)
	return p
}

// udpPacket builds a minimal Ethernet/IPv4/UDP frame so the "udp" BPF
// filter's raw-byte protocol check (IPv4 header's protocol field) has
// something to match against.
func udpPacket(rxTS int64) *sim.Packet {
	b := make([]byte, 14+20+8+16)
	b[12], b[13] = 0x08, 0x00 // IPv4 ethertype
	b[14] = 0x45              // version 4, IHL 5
	b[14+9] = 17              // protocol UDP
	p := sim.NewPacket(b)
	p.SetRxTimestamp(rxTS)
	return p
}

func TestStartsImmediatelyWithoutTrigger(t *testing.T) {
	s, err := capturesink.New(capturesink.Config{
		WorkerIDs: []uint32{0}, BufferSize: 4096, MaxPacketSize: 128,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if s.State() != capturesink.Started {
		t.Fatalf("state = %v, want Started", s.State())
	}

	w, err := s.ForWorker(0)
	if err != nil {
		t.Fatal(err)
	}
	n := w.Push([]pktio.Buffer{packet(1), packet(2), packet(3)})
	if n != 3 {
		t.Fatalf("Push returned %d, want 3", n)
	}
}

func TestArmedUntilStartTriggerMatches(t *testing.T) {
	f := bpfengine.New()
	if err := f.Parse("udp", 1); err != nil {
		t.Fatal(err)
	}

	s, err := capturesink.New(capturesink.Config{
		WorkerIDs:     []uint32{0},
		BufferSize:    4096,
		MaxPacketSize: 128,
		StartTrigger:  f,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if s.State() != capturesink.Armed {
		t.Fatalf("state = %v, want Armed", s.State())
	}

	w, err := s.ForWorker(0)
	if err != nil {
		t.Fatal(err)
	}

	// Neither of these packets is UDP, so the trigger never fires and
	// every push is dropped while Armed.
	tcpPkt1, tcpPkt2 := packet(1), packet(2)
	n := w.Push([]pktio.Buffer{tcpPkt1, tcpPkt2})
	if n != 2 {
		t.Fatalf("Push (still Armed) returned %d, want 2 (dropped, not an error)", n)
	}
	if s.State() != capturesink.Armed {
		t.Fatalf("state = %v, want still Armed", s.State())
	}

	n = w.Push([]pktio.Buffer{udpPacket(3), packet(4)})
	if n != 2 {
		t.Fatalf("Push returned %d, want 2", n)
	}
	if s.State() != capturesink.Started {
		t.Fatalf("state = %v, want Started once the trigger matches", s.State())
	}
}

func TestStopTriggerTruncatesAndStops(t *testing.T) {
	f := bpfengine.New() // always-pass filter used as a deterministic stop trigger
	s, err := capturesink.New(capturesink.Config{
		WorkerIDs:     []uint32{0},
		BufferSize:    4096,
		MaxPacketSize: 128,
		StopTrigger:   f,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	w, err := s.ForWorker(0)
	if err != nil {
		t.Fatal(err)
	}
	n := w.Push([]pktio.Buffer{packet(1), packet(2), packet(3)})
	if n != 3 {
		t.Fatalf("Push returned %d, want 3 (accepted count, not written count)", n)
	}
	if s.State() != capturesink.Stopped {
		t.Fatalf("state = %v, want Stopped after an always-match stop trigger", s.State())
	}

	result := s.Result()
	if result.Active() {
		t.Fatal("result should no longer be active once Stopped")
	}
}

func TestDurationStopsCapture(t *testing.T) {
	f := bpfengine.New() // always-pass filter, used only to pin the capture's start timestamp
	s, err := capturesink.New(capturesink.Config{
		WorkerIDs:     []uint32{0},
		BufferSize:    4096,
		MaxPacketSize: 128,
		Duration:      10 * time.Nanosecond,
		StartTrigger:  f,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	w, err := s.ForWorker(0)
	if err != nil {
		t.Fatal(err)
	}
	// The first packet's rx timestamp becomes the capture's start time;
	// the second, 20ns later, falls outside the 10ns duration window.
	const start = 1_000_000
	n := w.Push([]pktio.Buffer{packet(start), packet(start + 20)})
	if n != 2 {
		t.Fatalf("Push returned %d, want 2", n)
	}
	if s.State() != capturesink.Stopped {
		t.Fatalf("state = %v, want Stopped once a packet's rx timestamp exceeds the duration deadline", s.State())
	}
}

func TestStopReturnsFailedPreconditionWhenNotStarted(t *testing.T) {
	s, err := capturesink.New(capturesink.Config{WorkerIDs: []uint32{0}, BufferSize: 4096, MaxPacketSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err == nil {
		t.Fatal("expected FailedPrecondition stopping a sink that was never started")
	}
}
