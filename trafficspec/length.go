package trafficspec

import "github.com/openperf/packetcore/control"

// LengthConfig describes how a Definition's packet lengths vary.
// Exactly one of the three forms is set.
type LengthConfig struct {
	Fixed    *uint16
	List     []uint16
	Sequence *LengthSequence
}

// LengthSequence is the length-specific analogue of RampConfig: a
// linear run of count values from first to last, with positions in
// Skip omitted.
type LengthSequence struct {
	First, Last uint16
	Count       int
	Skip        []int
}

// LengthTemplate is a LengthConfig's frozen expansion.
type LengthTemplate []uint16

// ExpandLength expands a LengthConfig into a LengthTemplate.
func ExpandLength(cfg *LengthConfig) (LengthTemplate, error) {
	switch {
	case cfg.Fixed != nil:
		return LengthTemplate{*cfg.Fixed}, nil
	case cfg.List != nil:
		out := make(LengthTemplate, len(cfg.List))
		copy(out, cfg.List)
		return out, nil
	case cfg.Sequence != nil:
		s := cfg.Sequence
		if s.Count <= 0 {
			return nil, control.Errorf(control.InvalidArgument, "length sequence count must be positive, got %d", s.Count)
		}
		skip := make(map[int]bool, len(s.Skip))
		for _, idx := range s.Skip {
			skip[idx] = true
		}
		step := float64(int(s.Last)-int(s.First)) / float64(s.Count)
		out := make(LengthTemplate, 0, s.Count)
		for i := 0; i < s.Count; i++ {
			if skip[i] {
				continue
			}
			out = append(out, uint16(float64(s.First)+step*float64(i)))
		}
		return out, nil
	default:
		return nil, control.Errorf(control.InvalidArgument, "length config has no fixed, list, or sequence form")
	}
}
