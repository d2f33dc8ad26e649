package chart

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/okian/physalign/internal/domain/align"
	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/pkg/logger"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	xLabel    = "Time from Start (min)"
	hrLabel   = "Heart Rate (bpm)"
	tempLabel = "Core Temp (°C)"
)

// TrialFile names the per-subject figure of one event.
func TrialFile(exp, subject string, ev model.Event) string {
	return fmt.Sprintf("Aligned_%s_%s_%s_%s.png",
		exp, subject, model.CompactClock(ev.Start), strings.ReplaceAll(ev.Suffix, " ", ""))
}

// OverlayFile names the experiment overlay figure.
func OverlayFile(exp string) string { return exp + "_Aligned.png" }

// GridFile names the experiment grid figure.
func GridFile(exp string) string { return exp + "_Grid_Refined.png" }

// IndividualFile names the per-subject temperature figure. Characters other
// than letters, digits, space, '_', '-' and '.' are dropped from subject.
func IndividualFile(subject string) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(" _-.", r) {
			return r
		}
		return -1
	}, subject)
	return "CoreTemp_" + strings.TrimSpace(safe) + ".png"
}

// Trial draws heart rate above core temperature for one subject and event,
// sharing the minute axis. Returns ErrNoData when the trace is empty.
func (r *Renderer) Trial(ctx context.Context, exp, subject string, ev model.Event, tr Trace) (string, error) {
	if tr.Empty() {
		return "", ErrNoData
	}
	title := subject
	if ev.Suffix != "" {
		title += " (" + ev.Suffix + ")"
	}
	title += " - " + exp + " (" + ev.Start + ")"

	c := r.color(subject)
	hr := r.newEventPlot(title, hrLabel)
	if _, err := addLine(hr, tr.HR, c, false); err != nil {
		return "", err
	}
	temp := r.newEventPlot("", tempLabel)
	temp.X.Label.Text = xLabel
	if _, err := addLine(temp, tr.Temp, c, true); err != nil {
		return "", err
	}
	for _, p := range []*plot.Plot{hr, temp} {
		if err := addMarker(p, 0, markerGray); err != nil {
			return "", err
		}
	}

	path := filepath.Join(r.dir, TrialFile(exp, subject, ev))
	if err := save(path, [][]*plot.Plot{{hr}, {temp}}, 10*vg.Inch, 6*vg.Inch, ""); err != nil {
		return "", err
	}
	r.logWritten(ctx, "trial", path)
	return path, nil
}

// Trials draws every (event, subject) figure of exp. Pairs without data are
// skipped and logged. Returns the written paths.
func (r *Renderer) Trials(ctx context.Context, exp model.Experiment, trace TraceFunc) ([]string, error) {
	var written []string
	for _, ev := range exp.Events {
		for _, subject := range ev.Subjects {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			path, err := r.Trial(ctx, exp.Name, subject, ev, trace(subject, ev))
			switch {
			case errors.Is(err, ErrNoData):
				r.logger.Info(ctx, "chart skipped, no data",
					logger.String("file", TrialFile(exp.Name, subject, ev)))
			case err != nil:
				return written, err
			default:
				written = append(written, path)
			}
		}
	}
	return written, nil
}

// Overlay draws every subject's segments of exp on a heart-rate panel and a
// temperature panel, with markers at the start and two minutes in.
func (r *Renderer) Overlay(ctx context.Context, exp model.Experiment, trace TraceFunc) (string, error) {
	hr := r.newEventPlot(exp.Name+" - Heart Rate", "HR (bpm)")
	hr.Legend.Top = true
	temp := r.newEventPlot(exp.Name+" - Core Temperature", "Temp (°C)")
	temp.X.Label.Text = xLabel

	inLegend := make(map[string]bool)
	for _, ev := range exp.Events {
		for _, subject := range ev.Subjects {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			tr := trace(subject, ev)
			c := r.color(subject)
			line, err := addLine(hr, tr.HR, c, false)
			if err != nil {
				return "", err
			}
			if line != nil && !inLegend[subject] {
				hr.Legend.Add(subject, line)
				inLegend[subject] = true
			}
			if _, err := addLine(temp, tr.Temp, c, false); err != nil {
				return "", err
			}
		}
	}
	temp.Y.Min, temp.Y.Max = r.tempRange[0], r.tempRange[1]

	for _, p := range []*plot.Plot{hr, temp} {
		if err := addMarker(p, 0, markerRed); err != nil {
			return "", err
		}
		if err := addMarker(p, 2, markerGray); err != nil {
			return "", err
		}
	}

	path := filepath.Join(r.dir, OverlayFile(exp.Name))
	if err := save(path, [][]*plot.Plot{{hr}, {temp}}, 20*vg.Inch, 12*vg.Inch, ""); err != nil {
		return "", err
	}
	r.logWritten(ctx, "overlay", path)
	return path, nil
}

// cell is one grid position; ev is nil when the subject has no such trial.
type cell struct {
	subject string
	ev      *model.Event
	title   string
}

// layout arranges exp for the grid figure. Experiments with repeated trials
// get one row per subject and one column per trial; others one row per
// event and one column per participant.
func layout(exp model.Experiment) [][]cell {
	var suffixes, subjects []string
	seenSuffix, seenSubject := map[string]bool{}, map[string]bool{}
	width := 0
	for _, ev := range exp.Events {
		if ev.Suffix != "" && !seenSuffix[ev.Suffix] {
			seenSuffix[ev.Suffix] = true
			suffixes = append(suffixes, ev.Suffix)
		}
		for _, s := range ev.Subjects {
			if !seenSubject[s] {
				seenSubject[s] = true
				subjects = append(subjects, s)
			}
		}
		width = max(width, len(ev.Subjects))
	}

	var rows [][]cell
	if len(suffixes) > 1 {
		for _, s := range subjects {
			row := make([]cell, len(suffixes))
			for j, suffix := range suffixes {
				row[j] = cell{subject: s, title: fmt.Sprintf("%s - Trial %s", s, suffix)}
				for k := range exp.Events {
					ev := &exp.Events[k]
					if ev.Suffix == suffix && contains(ev.Subjects, s) {
						row[j].ev = ev
						row[j].title += " (" + ev.Start + ")"
						break
					}
				}
			}
			rows = append(rows, row)
		}
		return rows
	}

	for k := range exp.Events {
		ev := &exp.Events[k]
		row := make([]cell, width)
		for j := range row {
			if j < len(ev.Subjects) {
				s := ev.Subjects[j]
				row[j] = cell{subject: s, ev: ev, title: fmt.Sprintf("%s (%s)", s, ev.Start)}
			} else {
				row[j] = cell{title: ev.Start}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Grid draws one cell per trial of exp: heart rate over temperature, titled
// with pre/during/post means. Missing trials get a "No Data" panel.
func (r *Renderer) Grid(ctx context.Context, exp model.Experiment, trace TraceFunc) (string, error) {
	cells := layout(exp)
	if len(cells) == 0 || len(cells[0]) == 0 {
		return "", ErrNoData
	}

	plots := make([][]*plot.Plot, 0, 2*len(cells))
	for _, row := range cells {
		upper := make([]*plot.Plot, len(row))
		lower := make([]*plot.Plot, len(row))
		for j, c := range row {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			var tr Trace
			if c.ev != nil {
				tr = trace(c.subject, *c.ev)
			}
			if tr.Empty() {
				p, err := noData(c.title)
				if err != nil {
					return "", err
				}
				upper[j], lower[j] = p, blank()
				continue
			}

			title := c.title
			if len(tr.HR) > 0 {
				title += "\nHR: " + align.Summarize(tr.HR).Format(1)
			}
			if len(tr.Temp) > 0 {
				title += "\nTemp: " + align.Summarize(tr.Temp).Format(2)
			}
			col := r.color(c.subject)
			hr := r.newEventPlot(title, "HR")
			if _, err := addLine(hr, tr.HR, col, false); err != nil {
				return "", err
			}
			temp := r.newEventPlot("", "Temp")
			temp.X.Label.Text = "Time (min)"
			if _, err := addLine(temp, tr.Temp, col, true); err != nil {
				return "", err
			}
			for _, p := range []*plot.Plot{hr, temp} {
				if err := addMarker(p, 0, markerGray); err != nil {
					return "", err
				}
				if err := addMarker(p, 2, markerGray); err != nil {
					return "", err
				}
			}
			upper[j], lower[j] = hr, temp
		}
		plots = append(plots, upper, lower)
	}

	heading := exp.Name + ": Pre / During / Post Averages"
	h := vg.Length(len(cells)) * 5 * vg.Inch
	path := filepath.Join(r.dir, GridFile(exp.Name))
	if err := save(path, plots, 15*vg.Inch, h, heading); err != nil {
		return "", err
	}
	r.logWritten(ctx, "grid", path)
	return path, nil
}

// clockTicks labels an axis of seconds since midnight as wall-clock time.
func clockTicks(format string) plot.TimeTicks {
	return plot.TimeTicks{
		Format: format,
		Time: func(t float64) time.Time {
			return model.ReferenceDate.Add(time.Duration(t * float64(time.Second)))
		},
	}
}

// clockPoints places readings at seconds since midnight.
func clockPoints(s model.Series) []model.Point {
	pts := make([]model.Point, len(s.Readings))
	for i, rd := range s.Readings {
		pts[i] = model.Point{X: rd.Time.Sub(model.ReferenceDate).Seconds(), Y: rd.Value}
	}
	return pts
}

// Timeline draws every temperature series against wall-clock time of day.
func (r *Renderer) Timeline(ctx context.Context, name string, series []model.Series) (string, error) {
	p := plot.New()
	p.Title.Text = "Core Temperature"
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Temperature (°C)"
	p.X.Tick.Marker = clockTicks("15:04")
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	drawn := 0
	for _, s := range series {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.Empty() {
			continue
		}
		line, err := addLine(p, clockPoints(s), r.color(s.Subject), false)
		if err != nil {
			return "", err
		}
		p.Legend.Add(s.Subject, line)
		drawn++
	}
	if drawn == 0 {
		return "", ErrNoData
	}

	path := filepath.Join(r.dir, name)
	if err := save(path, [][]*plot.Plot{{p}}, 20*vg.Inch, 10*vg.Inch, ""); err != nil {
		return "", err
	}
	r.logWritten(ctx, "timeline", path)
	return path, nil
}

// Individual draws one temperature series against wall-clock time. The
// y-axis starts at the lower temperature bound and reaches at least 2 °C
// above it, or half a degree above the series maximum.
func (r *Renderer) Individual(ctx context.Context, s model.Series) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Empty() {
		return "", ErrNoData
	}
	floor := r.tempRange[0]

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Core Temperature: %s (>= %.1f°C)", s.Subject, floor)
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "Temperature (°C)"
	p.X.Tick.Marker = clockTicks("15:04:05")
	p.Add(plotter.NewGrid())

	hi := s.Readings[0].Value
	for _, rd := range s.Readings {
		hi = max(hi, rd.Value)
	}
	p.Y.Min, p.Y.Max = floor, max(hi+0.5, floor+2)

	line, err := addLine(p, clockPoints(s), palette[1], false)
	if err != nil {
		return "", err
	}
	p.Legend.Add(s.Subject, line)
	p.Legend.Top = true

	path := filepath.Join(r.dir, IndividualFile(s.Subject))
	if err := save(path, [][]*plot.Plot{{p}}, 10*vg.Inch, 6*vg.Inch, ""); err != nil {
		return "", err
	}
	r.logWritten(ctx, "individual", path)
	return path, nil
}
