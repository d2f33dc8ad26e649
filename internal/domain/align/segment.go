package align

import (
	"fmt"
	"math"

	"github.com/okian/physalign/internal/domain/model"
)

// duringMinutes is the end of the "during" sub-window, minutes after start.
const duringMinutes = 2.0

// Segment returns the raw readings of series that fall inside the window
// around start, as (minutes from start, value) points in source order. No
// resampling happens; this is what charts draw.
func (a *Aligner) Segment(series model.Series, start string) ([]model.Point, error) {
	startAt, err := model.ParseClock(start)
	if err != nil {
		return nil, fmt.Errorf("event start: %w", err)
	}
	if err := a.window.CheckSameDay(startAt); err != nil {
		return nil, err
	}

	samples := Select(Offsets(series.Readings, startAt), float64(a.window.Before), float64(a.window.After))
	points := make([]model.Point, len(samples))
	for i, s := range samples {
		points[i] = model.Point{X: s.Offset / 60, Y: s.Value}
	}
	return points, nil
}

// Summary holds mean values over the pre, during and post sub-windows of a
// segment. Empty sub-windows are NaN.
type Summary struct {
	Pre    float64
	During float64
	Post   float64
}

// Summarize averages segment points (X in minutes) before start, from start
// to two minutes after, and after that.
func Summarize(points []model.Point) Summary {
	var sums, counts [3]float64
	for _, p := range points {
		if math.IsNaN(p.Y) {
			continue
		}
		k := 1
		switch {
		case p.X < 0:
			k = 0
		case p.X > duringMinutes:
			k = 2
		}
		sums[k] += p.Y
		counts[k]++
	}
	mean := func(k int) float64 {
		if counts[k] == 0 {
			return math.NaN()
		}
		return sums[k] / counts[k]
	}
	return Summary{Pre: mean(0), During: mean(1), Post: mean(2)}
}

// Format renders the summary as "pre/during/post" with the given precision.
func (s Summary) Format(precision int) string {
	return fmt.Sprintf("%.*f/%.*f/%.*f", precision, s.Pre, precision, s.During, precision, s.Post)
}
