// Package trafficspec describes the generator's packet templates: field
// modifiers, header configs, context fixup between adjacent headers, the
// byte-level expansion of a header config into a container of packet
// instances, and the length/sequence types that pick which definition and
// which expanded instance to emit next. Field byte layouts are grounded on
// parser/pcap.go's EthernetHeader/IPv4Header/IPv6Header and tcp/tcp.go's
// TCPHeader.
package trafficspec

import (
	"math/big"
	"math/rand"

	"github.com/openperf/packetcore/control"
)

// FieldKind identifies the numeric type a Modifier ranges over.
type FieldKind int

const (
	FieldU32 FieldKind = iota
	FieldMAC
	FieldIPv4
	FieldIPv6
)

// Width returns the field's byte width on the wire.
func (k FieldKind) Width() int {
	switch k {
	case FieldU32:
		return 4
	case FieldMAC:
		return 6
	case FieldIPv4:
		return 4
	case FieldIPv6:
		return 16
	default:
		return 0
	}
}

// RampConfig describes a sequence modifier: {first, last, count, skip[]}.
// When Last is nil the step is 1 (over the field's numeric embedding);
// when Last is set the step is (Last-First)/Count. Skip holds zero-based
// positions within the generated [0,Count) range to omit from the output.
type RampConfig struct {
	First []byte
	Last  []byte
	Count int
	Skip  []int
}

// ListConfig iterates a fixed list of values.
type ListConfig struct {
	Items [][]byte
}

// Modifier expands to a Range<Value> over one field. Exactly one of Ramp
// or List is set.
type Modifier struct {
	Kind FieldKind
	Ramp *RampConfig
	List *ListConfig

	// Permute yields a deterministic but non-monotone order via a seeded
	// Fisher-Yates shuffle. Seed defaults to permuteDefaultSeed when zero,
	// so permuted runs stay reproducible across processes without ever
	// touching the global math/rand source.
	Permute bool
	Seed    int64
}

// permuteDefaultSeed is used when a Modifier sets Permute but leaves Seed
// unset (zero), so an accidentally-omitted seed still reproduces rather
// than silently falling back to a time-seeded shuffle.
const permuteDefaultSeed = 0x4f50656e // "OPen"

// Expand materializes the modifier's range as an ordered slice of
// Kind-width byte values, skip-filtered and then permuted if requested.
func (m *Modifier) Expand() ([][]byte, error) {
	var values [][]byte
	var err error
	switch {
	case m.Ramp != nil:
		values, err = m.Ramp.expand(m.Kind)
	case m.List != nil:
		values = m.List.Items
	default:
		return nil, control.Errorf(control.InvalidArgument, "modifier has neither a ramp nor a list config")
	}
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if len(v) != m.Kind.Width() {
			return nil, control.Errorf(control.InvalidArgument,
				"modifier value width %d does not match field kind width %d", len(v), m.Kind.Width())
		}
	}
	if m.Permute {
		values = permute(values, m.seed())
	}
	return values, nil
}

func (m *Modifier) seed() int64 {
	if m.Seed != 0 {
		return m.Seed
	}
	return permuteDefaultSeed
}

func permute(values [][]byte, seed int64) [][]byte {
	out := make([][]byte, len(values))
	copy(out, values)
	rng := rand.New(rand.NewSource(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (r *RampConfig) expand(kind FieldKind) ([][]byte, error) {
	if r.Count <= 0 {
		return nil, control.Errorf(control.InvalidArgument, "ramp count must be positive, got %d", r.Count)
	}
	width := kind.Width()
	if len(r.First) != width {
		return nil, control.Errorf(control.InvalidArgument, "ramp first width %d does not match field width %d", len(r.First), width)
	}
	first := new(big.Int).SetBytes(r.First)
	step := big.NewInt(1)
	if r.Last != nil {
		if len(r.Last) != width {
			return nil, control.Errorf(control.InvalidArgument, "ramp last width %d does not match field width %d", len(r.Last), width)
		}
		last := new(big.Int).SetBytes(r.Last)
		span := new(big.Int).Sub(last, first)
		step = new(big.Int).Div(span, big.NewInt(int64(r.Count)))
	}

	skip := make(map[int]bool, len(r.Skip))
	for _, s := range r.Skip {
		skip[s] = true
	}

	cur := new(big.Int).Set(first)
	values := make([][]byte, 0, r.Count)
	mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
	for i := 0; i < r.Count; i++ {
		if !skip[i] {
			v := new(big.Int).Mod(cur, mod)
			values = append(values, padLeft(v.Bytes(), width))
		}
		cur.Add(cur, step)
	}
	return values, nil
}

func padLeft(b []byte, width int) []byte {
	if len(b) == width {
		return b
	}
	out := make([]byte, width)
	copy(out[width-len(b):], b)
	return out
}

// Len reports the modifier's expanded length. It runs a full Expand and
// counts the values.
func (m *Modifier) Len() (int, error) {
	values, err := m.Expand()
	if err != nil {
		return 0, err
	}
	return len(values), nil
}
