package flowstats

import (
	"math"
	"sort"
)

// digestCentroids is the fixed centroid budget for the approximate
// quantile sketch attached to each tracked distribution. No sketch/
// digest library is available here, so this is a small from-scratch
// centroid digest rather than an imported quantile sketch (documented in
// DESIGN.md as an additional stdlib-only component beyond simdcopy's
// memcpy leaf).
const digestCentroids = 16

type centroid struct {
	mean   float64
	weight float64
}

// Digest is a bounded-size merging centroid digest used for approximate
// quantiles over a counter's value stream.
type Digest struct {
	centroids []centroid
}

// Add folds one observation into the digest, merging into an existing
// centroid when at capacity.
func (d *Digest) Add(x float64) {
	if len(d.centroids) < digestCentroids {
		d.centroids = append(d.centroids, centroid{mean: x, weight: 1})
		return
	}
	// At capacity: merge into the nearest centroid by mean.
	best := 0
	bestDist := math.Abs(d.centroids[0].mean - x)
	for i := 1; i < len(d.centroids); i++ {
		dist := math.Abs(d.centroids[i].mean - x)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	c := &d.centroids[best]
	totalWeight := c.weight + 1
	c.mean += (x - c.mean) / totalWeight
	c.weight = totalWeight
}

// Quantile returns an approximate value at quantile q (0..1) by walking
// the weighted, mean-sorted centroids.
func (d *Digest) Quantile(q float64) float64 {
	if len(d.centroids) == 0 {
		return 0
	}
	sorted := make([]centroid, len(d.centroids))
	copy(sorted, d.centroids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].mean < sorted[j].mean })

	var total float64
	for _, c := range sorted {
		total += c.weight
	}
	target := q * total
	var cum float64
	for _, c := range sorted {
		cum += c.weight
		if cum >= target {
			return c.mean
		}
	}
	return sorted[len(sorted)-1].mean
}

// Count returns the total weight (observation count) folded into d.
func (d *Digest) Count() float64 {
	var total float64
	for _, c := range d.centroids {
		total += c.weight
	}
	return total
}

// FlowDigests holds the six approximate-quantile sketches a flow can
// carry. Only the digests implied by the flow's CounterFlags are
// allocated (non-nil); see ResolveDependencies.
type FlowDigests struct {
	FrameLength       *Digest
	Interarrival      *Digest
	JitterIPDV        *Digest
	JitterRFC         *Digest
	Latency           *Digest
	SequenceRunLength *Digest
}
