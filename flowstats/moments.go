// Package flowstats implements the per-flow counter tuple, flow map and
// protocol counters used by the analyzer core: a construction-time
// selected subset of counters generated per flow, a single-writer/
// multi-reader flow map with epoch-deferred reclamation, and digest
// sketches for approximate quantiles.
package flowstats

import "math"

// MomentCounter accumulates sum/sum-of-squares/min/max over a stream of
// observations, the same running-moments shape as tcp.LinReg
// (tcp/stats.go), specialized to one variable instead of two.
type MomentCounter struct {
	Count uint64
	Sum   float64
	SumSq float64
	Min   float64
	Max   float64
}

// Add folds x into the running moments.
func (m *MomentCounter) Add(x float64) {
	if m.Count == 0 {
		m.Min, m.Max = x, x
	} else {
		if x < m.Min {
			m.Min = x
		}
		if x > m.Max {
			m.Max = x
		}
	}
	m.Count++
	m.Sum += x
	m.SumSq += x * x
}

// Mean returns the running mean, or 0 if no observations were added.
func (m *MomentCounter) Mean() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.Sum / float64(m.Count)
}

// Variance returns the population variance, or 0 if fewer than one
// observation was added.
func (m *MomentCounter) Variance() float64 {
	if m.Count == 0 {
		return 0
	}
	n := float64(m.Count)
	mean := m.Sum / n
	v := m.SumSq/n - mean*mean
	if v < 0 {
		// Clamp floating-point drift from the sum-of-squares formulation.
		v = 0
	}
	return v
}

// Stddev returns the population standard deviation.
func (m *MomentCounter) Stddev() float64 {
	return math.Sqrt(m.Variance())
}
