// Package outcome carries per-file load results so callers can tell "no data
// available" apart from "data present but unusable".
package outcome

import "fmt"

// Status classifies a load attempt.
type Status int

const (
	// Loaded means the source was read; Value holds the data (possibly empty
	// after filtering).
	Loaded Status = iota
	// Missing means the source does not exist. Not an error.
	Missing
	// Skipped means the source exists but could not be used; Reason says why.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Missing:
		return "missing"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of loading one source.
type Result[T any] struct {
	Source  string
	Status  Status
	Value   T
	Reason  error
	Dropped int // rows discarded as malformed or filtered
}

// Ok wraps a successfully loaded value.
func Ok[T any](source string, v T, dropped int) Result[T] {
	return Result[T]{Source: source, Status: Loaded, Value: v, Dropped: dropped}
}

// NotFound reports an absent source.
func NotFound[T any](source string) Result[T] {
	return Result[T]{Source: source, Status: Missing}
}

// Skip reports a source that exists but could not be used.
func Skip[T any](source string, reason error) Result[T] {
	return Result[T]{Source: source, Status: Skipped, Reason: reason}
}

// OK reports whether the result carries loaded data.
func (r Result[T]) OK() bool { return r.Status == Loaded }

func (r Result[T]) String() string {
	if r.Reason != nil {
		return fmt.Sprintf("%s: %s (%v)", r.Source, r.Status, r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Source, r.Status)
}
