package bpfengine

import (
	"math/rand"
	"testing"

	"github.com/openperf/packetcore/pktio"
	"github.com/openperf/packetcore/pktio/sim"
)

// representativeFilters spans mac/ip/ip6 src+dst, length predicates,
// signature, not signature, signature streamid range, valid
// fcs|chksum|prbs, and conjunctions.
var representativeFilters = []string{
	"ether src aabbccddeeff",
	"ether dst aabbccddeeff",
	"ip src 10.0.0.1",
	"ip dst 10.0.0.2",
	"ip6 src ::1",
	"ip6 dst ::2",
	"less 100",
	"greater 40",
	"port 443",
	"tcp",
	"udp",
	"icmp",
	"signature",
	"not signature",
	"signature streamid 2",
	"signature streamid 2-4",
	"valid fcs",
	"valid chksum",
	"valid prbs",
	"not signature and ip src 10.0.0.1",
	"ip src 10.0.0.1 and port 443",
	"ip src 10.0.0.1 or valid fcs",
}

func buildCorpus(rng *rand.Rand, n int) []*sim.Packet {
	pkts := make([]*sim.Packet, n)
	for i := range pkts {
		data := make([]byte, 14+20+8)
		rng.Read(data)
		copy(data[0:6], []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
		data[12], data[13] = 0x08, 0x00
		data[14+9] = byte([]int{6, 17, 1}[rng.Intn(3)])
		copy(data[14+12:14+16], []byte{10, 0, 0, byte(rng.Intn(3) + 1)})
		p := sim.NewPacket(data)
		if rng.Intn(2) == 0 {
			p.SetSignatureFields(uint32(rng.Intn(6)), 0, 0)
		}
		p.SetChecksumErrors(rng.Intn(5) == 0, rng.Intn(5) == 0, rng.Intn(5) == 0, rng.Intn(5) == 0)
		if rng.Intn(5) == 0 {
			p.SetPRBSBitErrors(uint32(rng.Intn(3)))
		}
		pkts[i] = p
	}
	return pkts
}

func TestBurstAPIsAgreeWithNaiveEval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pkts := buildCorpus(rng, 64)
	bufs := sim.ToBuffers(pkts)

	for _, expr := range representativeFilters {
		root, err := Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", expr, err)
		}
		rewritten, err := splitSpecial(root)
		if err != nil {
			t.Fatalf("splitSpecial(%q): %v", expr, err)
		}

		f := New()
		if err := f.Parse(expr, 1); err != nil {
			t.Fatalf("Filter.Parse(%q): %v", expr, err)
		}

		want := make([]bool, len(bufs))
		for i, b := range bufs {
			want[i] = Eval(rewritten, b)
		}

		res := make([]uint64, len(bufs))
		f.ExecBurst(bufs, res)
		for i := range bufs {
			if (res[i] != 0) != want[i] {
				t.Errorf("%q: ExecBurst[%d]=%d, want %v", expr, i, res[i], want[i])
			}
		}

		out := make([]pktio.Buffer, len(bufs))
		n := f.FilterBurst(bufs, out)
		wantCount := 0
		for _, w := range want {
			if w {
				wantCount++
			}
		}
		if n != wantCount {
			t.Errorf("%q: FilterBurst kept %d, want %d", expr, n, wantCount)
		}

		firstWant := len(bufs)
		for i, w := range want {
			if w {
				firstWant = i
				break
			}
		}
		if got := f.FindNext(bufs, 0); got != firstWant {
			t.Errorf("%q: FindNext(0)=%d, want %d", expr, got, firstWant)
		}
	}
}

func TestFastPathSelection(t *testing.T) {
	cases := []struct {
		expr string
		want FastPath
	}{
		{"signature", FastPathSignatureOnly},
		{"not signature", FastPathNotSignatureOnly},
		{"not signature and ip src 10.0.0.1", FastPathNotSigAndBPF},
		{"ip src 10.0.0.1 and not signature", FastPathNotSigAndBPF},
		{"ip src 10.0.0.1", FastPathNone},
		{"signature streamid 2", FastPathNone},
	}
	for _, c := range cases {
		f := New()
		if err := f.Parse(c.expr, 1); err != nil {
			t.Fatalf("Parse(%q): %v", c.expr, err)
		}
		if got := f.FastPath(); got != c.want {
			t.Errorf("%q: FastPath()=%v, want %v", c.expr, got, c.want)
		}
	}
}

func TestAlwaysPassDefault(t *testing.T) {
	f := New()
	p := sim.NewPacket(make([]byte, 64))
	if !f.Match(p) {
		t.Fatal("default Filter should always pass")
	}
}

func TestSignatureShortCircuitsBeforeBPF(t *testing.T) {
	f := New()
	if err := f.Parse("not signature and ip src 10.0.0.1", 1); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 14+20)
	data[12], data[13] = 0x08, 0x00
	// Address deliberately does NOT match ip src 10.0.0.1, so if the BPF
	// half ran it would reject; the signature-present short circuit must
	// reject first regardless.
	p := sim.NewPacket(data)
	p.SetSignatureFields(3, 0, 0)
	if f.Match(p) {
		t.Fatal("expected reject: signature present should short-circuit before BPF runs")
	}
}
