package trafficspec_test

import (
	"testing"

	"github.com/openperf/packetcore/trafficspec"
)

func u32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func TestModifierRampSkipAndPermute(t *testing.T) {
	m := &trafficspec.Modifier{
		Kind: trafficspec.FieldU32,
		Ramp: &trafficspec.RampConfig{First: u32(10), Last: u32(20), Count: 5, Skip: []int{2}},
	}
	vals, err := m.Expand()
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 4 {
		t.Fatalf("got %d values, want 4 after skipping one of 5", len(vals))
	}

	permuted := &trafficspec.Modifier{
		Kind:    trafficspec.FieldU32,
		Ramp:    &trafficspec.RampConfig{First: u32(0), Last: u32(100), Count: 10},
		Permute: true,
		Seed:    7,
	}
	first, err := permuted.Expand()
	if err != nil {
		t.Fatal(err)
	}
	second, err := permuted.Expand()
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if string(first[i]) != string(second[i]) {
			t.Fatalf("permute with a fixed seed produced different orders across calls at index %d", i)
		}
	}
	inOrder := true
	for i := 1; i < len(first); i++ {
		if string(first[i-1]) >= string(first[i]) {
			inOrder = false
			break
		}
	}
	if inOrder {
		t.Fatal("permuted output looks monotone; expected a shuffled order")
	}
}

func TestExpandHeaderZipAndCartesian(t *testing.T) {
	base := make([]byte, 20)
	hc := &trafficspec.HeaderConfig{
		Kind: trafficspec.HeaderIPv4,
		Base: base,
		Modifiers: []trafficspec.FieldModifier{
			{Field: "src", Modifier: trafficspec.Modifier{Kind: trafficspec.FieldIPv4,
				List: &trafficspec.ListConfig{Items: [][]byte{{10, 0, 0, 1}, {10, 0, 0, 2}}}}},
			{Field: "dst", Modifier: trafficspec.Modifier{Kind: trafficspec.FieldIPv4,
				List: &trafficspec.ListConfig{Items: [][]byte{{192, 168, 0, 1}, {192, 168, 0, 2}, {192, 168, 0, 3}}}}},
		},
		Mux: trafficspec.MuxCartesian,
	}
	c, err := trafficspec.ExpandHeader(hc)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 6 {
		t.Fatalf("cartesian expansion length = %d, want 2*3=6", c.Len())
	}
	seen := map[string]bool{}
	for _, h := range c.Headers {
		key := string(h[12:16]) + string(h[16:20])
		if seen[key] {
			t.Fatalf("duplicate src/dst combination %x", key)
		}
		seen[key] = true
	}

	hc.Mux = trafficspec.MuxZip
	z, err := trafficspec.ExpandHeader(hc)
	if err != nil {
		t.Fatal(err)
	}
	if z.Len() != 6 { // lcm(2,3) == 6
		t.Fatalf("zip expansion length = %d, want lcm(2,3)=6", z.Len())
	}
}

func TestContextFixupEthernetIPv4TCP(t *testing.T) {
	eth := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderEthernet, Base: make([]byte, 14)}
	ip := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderIPv4, Base: make([]byte, 20)}
	tcp := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderTCP, Base: make([]byte, 20)}

	if err := trafficspec.ContextFixup([]*trafficspec.HeaderConfig{eth, ip, tcp}); err != nil {
		t.Fatal(err)
	}
	if eth.Base[12] != 0x08 || eth.Base[13] != 0x00 {
		t.Fatalf("ethernet ethertype = %02x%02x, want 0800", eth.Base[12], eth.Base[13])
	}
	if ip.Base[9] != 6 {
		t.Fatalf("ipv4 protocol = %d, want 6 (tcp)", ip.Base[9])
	}
}

func TestContextFixupDoubleVLANSetsQinQ(t *testing.T) {
	eth := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderEthernet, Base: make([]byte, 14)}
	outer := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderVLAN, Base: make([]byte, 4)}
	inner := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderVLAN, Base: make([]byte, 4)}
	ip := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderIPv4, Base: make([]byte, 20)}

	if err := trafficspec.ContextFixup([]*trafficspec.HeaderConfig{eth, outer, inner, ip}); err != nil {
		t.Fatal(err)
	}
	if eth.Base[12] != 0x88 || eth.Base[13] != 0xA8 {
		t.Fatalf("outer ethernet ethertype = %02x%02x, want 88a8 (QinQ)", eth.Base[12], eth.Base[13])
	}
	if outer.Base[2] != 0x81 || outer.Base[3] != 0x00 {
		t.Fatalf("outer vlan ethertype = %02x%02x, want 8100", outer.Base[2], outer.Base[3])
	}
	if inner.Base[2] != 0x08 || inner.Base[3] != 0x00 {
		t.Fatalf("inner vlan ethertype = %02x%02x, want 0800", inner.Base[2], inner.Base[3])
	}
}

func TestContextFixupMPLSBottomOfStack(t *testing.T) {
	a := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderMPLS, Base: make([]byte, 4)}
	b := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderMPLS, Base: make([]byte, 4)}
	ip := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderIPv4, Base: make([]byte, 20)}

	if err := trafficspec.ContextFixup([]*trafficspec.HeaderConfig{a, b, ip}); err != nil {
		t.Fatal(err)
	}
	if a.Base[2]&0x01 != 0 {
		t.Fatal("first mpls label should not have bottom_of_stack set")
	}
	if b.Base[2]&0x01 == 0 {
		t.Fatal("last mpls label should have bottom_of_stack set")
	}
}

func buildPacketTemplate(t *testing.T, srcCount int) *trafficspec.PacketTemplate {
	t.Helper()
	eth := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderEthernet, Base: make([]byte, 14)}
	ip := &trafficspec.HeaderConfig{
		Kind: trafficspec.HeaderIPv4,
		Base: make([]byte, 20),
		Modifiers: []trafficspec.FieldModifier{
			{Field: "src", Modifier: trafficspec.Modifier{
				Kind: trafficspec.FieldIPv4,
				Ramp: &trafficspec.RampConfig{First: []byte{10, 0, 0, 1}, Count: srcCount},
			}},
		},
	}
	udp := &trafficspec.HeaderConfig{Kind: trafficspec.HeaderUDP, Base: make([]byte, 8)}

	configs := []*trafficspec.HeaderConfig{eth, ip, udp}
	if err := trafficspec.ContextFixup(configs); err != nil {
		t.Fatal(err)
	}
	tmpl, err := trafficspec.BuildPacketTemplate(configs, trafficspec.MuxZip)
	if err != nil {
		t.Fatal(err)
	}
	return tmpl
}

func TestBuildPacketTemplatePrecomputesPseudoChecksum(t *testing.T) {
	tmpl := buildPacketTemplate(t, 3)
	if tmpl.Size() != 3 {
		t.Fatalf("template size = %d, want 3", tmpl.Size())
	}
	seen := map[uint32]bool{}
	for i, sum := range tmpl.PseudoChecksums {
		if sum == 0 {
			t.Fatalf("packet %d has a zero pseudo-header checksum accumulator", i)
		}
		seen[sum] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct pseudo-header sums (one per distinct src address), got %d", len(seen))
	}
}

func TestRoundRobinDistributesByWeight(t *testing.T) {
	tmplA := buildPacketTemplate(t, 2)
	tmplB := buildPacketTemplate(t, 3)
	defs := []trafficspec.Definition{
		{Template: tmplA, Lengths: trafficspec.LengthTemplate{64}, Weight: 1},
		{Template: tmplB, Lengths: trafficspec.LengthTemplate{128}, Weight: 2},
	}
	seq, err := trafficspec.NewRoundRobin(defs)
	if err != nil {
		t.Fatal(err)
	}
	// A's template (size 2) aligns every 2 rounds, B's (size 3, weight 2)
	// every 3 rounds; lcm(2,3) == 6 rounds per period, each round
	// contributing 1 packet from A and 2 from B.
	if got, want := seq.Size(), 6*(1+2); got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	pkts, err := seq.Unpack(0, seq.Size())
	if err != nil {
		t.Fatal(err)
	}
	var aCount, bCount int
	for _, p := range pkts {
		if p.PacketLength == 64 {
			aCount++
		} else {
			bCount++
		}
	}
	if aCount != 6 || bCount != 12 {
		t.Fatalf("round robin did not split exactly by weight: aCount=%d bCount=%d, want 6 and 12", aCount, bCount)
	}

	// Restartable: re-unpacking the same range is deterministic.
	again, err := seq.Unpack(0, seq.Size())
	if err != nil {
		t.Fatal(err)
	}
	for i := range pkts {
		if pkts[i].FlowIndex != again[i].FlowIndex || pkts[i].PacketLength != again[i].PacketLength {
			t.Fatalf("round robin unpack is not deterministic at index %d", i)
		}
	}
}

func TestSequentialEmitsWeightTimesTemplateSizePerDefinition(t *testing.T) {
	tmplA := buildPacketTemplate(t, 2)
	tmplB := buildPacketTemplate(t, 3)
	defs := []trafficspec.Definition{
		{Template: tmplA, Lengths: trafficspec.LengthTemplate{64}, Weight: 2},
		{Template: tmplB, Lengths: trafficspec.LengthTemplate{128}, Weight: 1},
	}
	seq, err := trafficspec.NewSequential(defs)
	if err != nil {
		t.Fatal(err)
	}
	wantSize := 2*2 + 1*3
	if seq.Size() != wantSize {
		t.Fatalf("Size() = %d, want %d", seq.Size(), wantSize)
	}
	pkts, err := seq.Unpack(0, seq.Size())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if pkts[i].PacketLength != 64 {
			t.Fatalf("packet %d length = %d, want 64 (still definition A's run)", i, pkts[i].PacketLength)
		}
	}
	for i := 4; i < 7; i++ {
		if pkts[i].PacketLength != 128 {
			t.Fatalf("packet %d length = %d, want 128 (definition B's run)", i, pkts[i].PacketLength)
		}
	}

	// Indexable: unpacking mid-stream matches the equivalent full unpack.
	mid, err := seq.Unpack(5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if mid[0].PacketLength != pkts[5].PacketLength || mid[1].PacketLength != pkts[6].PacketLength {
		t.Fatal("mid-stream Unpack does not match the equivalent range of a full Unpack")
	}
}
