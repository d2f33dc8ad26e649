package align

import (
	"math"
	"sort"
	"time"

	"github.com/okian/physalign/internal/domain/model"
)

// Sample is a reading expressed as seconds relative to an event start.
type Sample struct {
	Offset float64
	Value  float64
}

// Offsets converts readings to samples relative to start. Readings with a
// NaN value are dropped.
func Offsets(readings []model.Reading, start time.Time) []Sample {
	out := make([]Sample, 0, len(readings))
	for _, r := range readings {
		if math.IsNaN(r.Value) {
			continue
		}
		out = append(out, Sample{Offset: r.Time.Sub(start).Seconds(), Value: r.Value})
	}
	return out
}

// Select keeps samples with lo <= offset <= hi, in input order.
func Select(samples []Sample, lo, hi float64) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Offset >= lo && s.Offset <= hi {
			out = append(out, s)
		}
	}
	return out
}

// Dedupe orders samples by offset and collapses repeated offsets, keeping the
// first sample seen at each offset. The input is not modified.
func Dedupe(samples []Sample) []Sample {
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s.Offset == out[len(out)-1].Offset {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Nearest resamples sorted, deduplicated samples onto grid by nearest
// neighbour. A grid point is NaN when its nearest sample lies farther than
// tolerance. On an exact tie the later sample wins.
func Nearest(samples []Sample, grid []int, tolerance float64) []float64 {
	out := make([]float64, len(grid))
	for i, g := range grid {
		out[i] = math.NaN()
		if len(samples) == 0 {
			continue
		}
		x := float64(g)
		j := sort.Search(len(samples), func(k int) bool { return samples[k].Offset >= x })

		best := -1
		bestDist := math.Inf(1)
		if j < len(samples) {
			best, bestDist = j, samples[j].Offset-x
		}
		if j > 0 {
			if d := x - samples[j-1].Offset; d < bestDist {
				best, bestDist = j-1, d
			}
		}
		if best >= 0 && bestDist <= tolerance {
			out[i] = samples[best].Value
		}
	}
	return out
}

// Interpolate resamples sorted, deduplicated samples onto grid by linear
// interpolation between bracketing samples. Grid points outside the samples'
// own offset range are NaN; nothing is extrapolated.
func Interpolate(samples []Sample, grid []int) []float64 {
	out := make([]float64, len(grid))
	for i, g := range grid {
		out[i] = math.NaN()
		if len(samples) == 0 {
			continue
		}
		x := float64(g)
		if x < samples[0].Offset || x > samples[len(samples)-1].Offset {
			continue
		}
		j := sort.Search(len(samples), func(k int) bool { return samples[k].Offset >= x })
		if samples[j].Offset == x {
			out[i] = samples[j].Value
			continue
		}
		lo, hi := samples[j-1], samples[j]
		frac := (x - lo.Offset) / (hi.Offset - lo.Offset)
		out[i] = lo.Value + frac*(hi.Value-lo.Value)
	}
	return out
}
