// Package align slices raw series around event start times and resamples
// them onto a shared relative-time grid.
package align

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for this package.
var (
	ErrInvalidWindow    = errors.New("invalid alignment window")
	ErrMidnightCrossing = errors.New("event window crosses midnight")
)

const secondsPerDay = 24 * 60 * 60

// Window is the span around an event start, in whole seconds. Before is
// normally negative. Margin widens the sample selection on both sides without
// widening the output grid, so edge grid points can interpolate against
// readings just outside the window.
type Window struct {
	Before int
	After  int
	Margin float64
}

// DefaultWindow is -5 min to +7 min with a 10 s selection margin.
var DefaultWindow = Window{Before: -300, After: 420, Margin: 10}

// Validate checks the window bounds.
func (w Window) Validate() error {
	if w.Before > w.After {
		return fmt.Errorf("%w: before %d > after %d", ErrInvalidWindow, w.Before, w.After)
	}
	if w.Margin < 0 {
		return fmt.Errorf("%w: negative margin %v", ErrInvalidWindow, w.Margin)
	}
	return nil
}

// Grid returns the integer-second offsets Before..After inclusive.
func (w Window) Grid() []int {
	if w.After < w.Before {
		return nil
	}
	grid := make([]int, 0, w.After-w.Before+1)
	for s := w.Before; s <= w.After; s++ {
		grid = append(grid, s)
	}
	return grid
}

// selection returns the inclusive offset range samples are drawn from.
func (w Window) selection() (lo, hi float64) {
	return float64(w.Before) - w.Margin, float64(w.After) + w.Margin
}

// CheckSameDay rejects windows whose grid would leave the day of start.
// Readings carry only a time of day, so such a window cannot be computed
// correctly.
func (w Window) CheckSameDay(start time.Time) error {
	h, m, s := start.Clock()
	sec := h*3600 + m*60 + s
	if sec+w.Before < 0 || sec+w.After >= secondsPerDay {
		return fmt.Errorf("%w: start %02d:%02d:%02d window [%d,%d]", ErrMidnightCrossing, h, m, s, w.Before, w.After)
	}
	return nil
}
