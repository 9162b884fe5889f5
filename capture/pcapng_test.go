package capture_test

import (
	"bytes"
	"testing"

	"github.com/openperf/packetcore/capture"
	"github.com/openperf/packetcore/pktio"
)

func TestPCAPNGRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := capture.NewPCAPNGWriter(&buf, 128)
	if err != nil {
		t.Fatal(err)
	}

	pkts := []pktio.Buffer{
		makePacket(40, 1000),
		makePacket(60, 2000),
		makePacket(80, 3000),
	}
	if n := w.WritePackets(pkts); n != len(pkts) {
		t.Fatalf("WritePackets wrote %d, want %d", n, len(pkts))
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r, err := capture.NewPCAPNGReader(bytes.NewReader(buf.Bytes()), 0)
	if err != nil {
		t.Fatal(err)
	}

	out := make([]capture.CapturedPacket, 8)
	n, err := r.ReadPackets(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(pkts) {
		t.Fatalf("read back %d records, want %d", n, len(pkts))
	}
	wantTS := []int64{1000, 2000, 3000}
	for i, cp := range out[:n] {
		if cp.Header.RxTimestamp != wantTS[i] {
			t.Fatalf("record %d RxTimestamp = %d, want %d", i, cp.Header.RxTimestamp, wantTS[i])
		}
		if len(cp.Data) != len(pkts[i].Data(0)) {
			t.Fatalf("record %d payload length = %d, want %d", i, len(cp.Data), len(pkts[i].Data(0)))
		}
	}
}

func TestPCAPNGReaderTruncatesToMaxPacketSize(t *testing.T) {
	var buf bytes.Buffer
	w, err := capture.NewPCAPNGWriter(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n := w.WritePackets([]pktio.Buffer{makePacket(200, 1)}); n != 1 {
		t.Fatalf("WritePackets wrote %d, want 1", n)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r, err := capture.NewPCAPNGReader(bytes.NewReader(buf.Bytes()), 50)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]capture.CapturedPacket, 1)
	n, err := r.ReadPackets(out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("got %d records, want 1", n)
	}
	if len(out[0].Data) != 50 {
		t.Fatalf("truncated payload length = %d, want 50", len(out[0].Data))
	}
	if out[0].Header.OrigLen != 200 {
		t.Fatalf("OrigLen = %d, want 200 (truncation must not shrink the original length)", out[0].Header.OrigLen)
	}
}
