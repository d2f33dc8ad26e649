// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// Modality identifies which physiological signal a series carries.
type Modality string

const (
	HeartRate Modality = "heart_rate"
	CoreTemp  Modality = "core_temp"
)

// Title is the human-readable name used for sheet and panel titles.
func (m Modality) Title() string {
	switch m {
	case CoreTemp:
		return "Core Temp"
	case HeartRate:
		return "Heart Rate"
	default:
		return string(m)
	}
}

// Reading is one timestamped sample. Time is a time of day normalized onto
// ReferenceDate; only the clock component is meaningful.
type Reading struct {
	Time  time.Time
	Value float64
}

// Series is a subject's raw readings for one modality, in source order.
type Series struct {
	Subject  string
	Modality Modality
	Readings []Reading
}

// Empty reports whether the series carries no readings.
func (s Series) Empty() bool { return len(s.Readings) == 0 }

// Event defines an analysis window anchored at a time of day.
type Event struct {
	Start    string   // "15:04:05"
	Subjects []string // participating subjects, in display order
	Suffix   string   // optional trial label, e.g. "1回目"
}

// Experiment groups events that export under one column prefix.
type Experiment struct {
	Name        string  // e.g. "Exp1", used in chart titles and file names
	Prefix      string  // column label prefix, e.g. "Exp1_"
	LabelSuffix bool    // append "_<suffix>" to column labels
	Events      []Event // in export order
}

// AlignedColumn is one (subject, event) series resampled onto a grid.
// Missing grid points are NaN.
type AlignedColumn struct {
	Label   string
	Subject string
	Values  []float64
}

// Filled returns the number of non-missing grid points.
func (c AlignedColumn) Filled() int {
	n := 0
	for _, v := range c.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// AlignedTable holds every aligned column of one modality over a shared grid.
type AlignedTable struct {
	Modality Modality
	Offsets  []int // seconds relative to event start
	Columns  []AlignedColumn
}

// Column returns the column labelled label.
func (t *AlignedTable) Column(label string) (AlignedColumn, bool) {
	for _, c := range t.Columns {
		if c.Label == label {
			return c, true
		}
	}
	return AlignedColumn{}, false
}

// Put appends col, or replaces an existing column with the same label so the
// last assignment wins while keeping first-seen column order. An all-missing
// col never replaces an existing column.
func (t *AlignedTable) Put(col AlignedColumn) {
	for i := range t.Columns {
		if t.Columns[i].Label == col.Label {
			if col.Filled() > 0 {
				t.Columns[i] = col
			}
			return
		}
	}
	t.Columns = append(t.Columns, col)
}

// Point is a (relative time, value) pair used by charts and summaries.
type Point struct {
	X float64
	Y float64
}
