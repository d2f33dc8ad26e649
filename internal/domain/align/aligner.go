package align

import (
	"fmt"
	"math"

	"github.com/okian/physalign/internal/domain/model"
)

// Default snap tolerance for heart-rate nearest-neighbour lookup, seconds.
const DefaultHeartRateTolerance = 1.5

// Catalog answers which raw series a subject has for a modality.
type Catalog interface {
	Lookup(subject string, m model.Modality) (model.Series, bool)
}

// Aligner resamples raw series onto the grid of a Window.
type Aligner struct {
	window      Window
	hrTolerance float64
}

// Option applies a configuration option to the Aligner.
type Option func(*Aligner)

// WithWindow sets the alignment window.
func WithWindow(w Window) Option {
	return func(a *Aligner) {
		if w.Validate() == nil {
			a.window = w
		}
	}
}

// WithHeartRateTolerance sets the nearest-neighbour snap tolerance in seconds.
func WithHeartRateTolerance(seconds float64) Option {
	return func(a *Aligner) {
		if seconds >= 0 {
			a.hrTolerance = seconds
		}
	}
}

// New constructs an Aligner with the default window and tolerance.
func New(opts ...Option) *Aligner {
	a := &Aligner{
		window:      DefaultWindow,
		hrTolerance: DefaultHeartRateTolerance,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Window returns the configured window.
func (a *Aligner) Window() Window { return a.window }

// Grid returns the output grid offsets.
func (a *Aligner) Grid() []int { return a.window.Grid() }

// Resample aligns one series to the event starting at start (a clock string).
// Heart rate snaps to the nearest sample; core temperature interpolates. An
// empty series yields an all-NaN column.
func (a *Aligner) Resample(series model.Series, start string) ([]float64, error) {
	startAt, err := model.ParseClock(start)
	if err != nil {
		return nil, fmt.Errorf("event start: %w", err)
	}
	if err := a.window.CheckSameDay(startAt); err != nil {
		return nil, err
	}

	grid := a.window.Grid()
	lo, hi := a.window.selection()
	samples := Dedupe(Select(Offsets(series.Readings, startAt), lo, hi))

	switch series.Modality {
	case model.HeartRate:
		return Nearest(samples, grid, a.hrTolerance), nil
	case model.CoreTemp:
		return Interpolate(samples, grid), nil
	default:
		return nil, fmt.Errorf("unknown modality %q", series.Modality)
	}
}

// Label builds the column label for subject within exp.
func Label(exp model.Experiment, subject, suffix string) string {
	if exp.LabelSuffix && suffix != "" {
		return exp.Prefix + subject + "_" + suffix
	}
	return exp.Prefix + subject
}

// EventError records an event that could not be aligned.
type EventError struct {
	Experiment string
	Event      model.Event
	Err        error
}

func (e EventError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Experiment, e.Event.Start, e.Err)
}

func (e EventError) Unwrap() error { return e.Err }

// UniqueEvents keeps the first failure reported for each experiment and
// event start, in input order.
func UniqueEvents(failures []EventError) []EventError {
	type key struct{ exp, start string }
	seen := make(map[key]struct{}, len(failures))
	var out []EventError
	for _, f := range failures {
		k := key{f.Experiment, f.Event.Start}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Experiment aligns every (event, subject) pair of exp for modality m and
// puts the columns into tbl in event order. Subjects with no series still get
// an all-NaN column. Events that cannot be aligned are reported and their
// columns are left all-NaN.
func (a *Aligner) Experiment(exp model.Experiment, m model.Modality, cat Catalog, tbl *model.AlignedTable) []EventError {
	var failures []EventError
	grid := a.window.Grid()
	if tbl.Offsets == nil {
		tbl.Offsets = grid
	}

	for _, ev := range exp.Events {
		evErr := a.checkEvent(ev)
		if evErr != nil {
			failures = append(failures, EventError{Experiment: exp.Name, Event: ev, Err: evErr})
		}
		for _, subject := range ev.Subjects {
			col := model.AlignedColumn{
				Label:   Label(exp, subject, ev.Suffix),
				Subject: subject,
				Values:  missing(len(grid)),
			}
			if series, ok := cat.Lookup(subject, m); ok && evErr == nil {
				if values, err := a.Resample(series, ev.Start); err == nil {
					col.Values = values
				} else {
					failures = append(failures, EventError{Experiment: exp.Name, Event: ev, Err: err})
				}
			}
			tbl.Put(col)
		}
	}
	return failures
}

func (a *Aligner) checkEvent(ev model.Event) error {
	startAt, err := model.ParseClock(ev.Start)
	if err != nil {
		return fmt.Errorf("event start: %w", err)
	}
	return a.window.CheckSameDay(startAt)
}

func missing(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
