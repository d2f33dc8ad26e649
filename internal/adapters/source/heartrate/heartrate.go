// Package heartrate loads heart-rate exports into per-subject series.
//
// Two export shapes are supported: a per-subject device file whose first two
// lines carry recording metadata, and a combined sheet with one time-of-day
// column and one beats-per-minute column per subject.
package heartrate

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/internal/domain/outcome"
	"github.com/okian/physalign/pkg/logger"
)

// Sentinel errors for this package.
var (
	ErrBadMetadata = errors.New("malformed recording metadata")
	ErrNoColumn    = errors.New("required column not found")
	ErrTooShort    = errors.New("file too short")
)

// Column and metadata names used by the device export.
const (
	metaDate      = "Date"
	metaStartTime = "Start time"
	colTime       = "Time"
	colBPM        = "HR (bpm)"

	metaLayout = "2-1-2006 15:04:05"

	// metadata header, metadata values, data header, at least one row
	minSubjectLines = 4
)

// Loader reads heart-rate files from a directory.
type Loader struct {
	dir          string
	filePattern  string // per-subject file name, %s is the subject
	combinedFile string
	aliases      map[string]string // combined column -> subject
	logger       logger.Logger
}

// Option applies a configuration option to the Loader.
type Option func(*Loader)

// WithFilePattern sets the per-subject file name pattern; %s is replaced by
// the subject name.
func WithFilePattern(pattern string) Option {
	return func(l *Loader) {
		if strings.Contains(pattern, "%s") {
			l.filePattern = pattern
		}
	}
}

// WithCombinedFile sets the combined export file name.
func WithCombinedFile(name string) Option {
	return func(l *Loader) {
		if name != "" {
			l.combinedFile = name
		}
	}
}

// WithAliases maps combined-file column names to subject names.
func WithAliases(aliases map[string]string) Option {
	return func(l *Loader) {
		l.aliases = aliases
	}
}

// WithLogger sets a custom logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New constructs a Loader reading from dir.
func New(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:          dir,
		filePattern:  "心拍数_%s.CSV",
		combinedFile: "Jisedai2026_HR.csv",
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SubjectPath returns the per-subject file path for subject.
func (l *Loader) SubjectPath(subject string) string {
	return filepath.Join(l.dir, fmt.Sprintf(l.filePattern, subject))
}

// LoadSubject reads the per-subject device export for subject. A missing file
// is Missing; unusable metadata is Skipped. Both carry an empty series.
func (l *Loader) LoadSubject(ctx context.Context, subject string) outcome.Result[model.Series] {
	path := l.SubjectPath(subject)
	name := filepath.Base(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return outcome.NotFound[model.Series](name)
		}
		return outcome.Skip[model.Series](name, err)
	}

	series, dropped, err := ParseSubject(subject, bytes.NewReader(raw))
	if err != nil {
		l.logger.Warn(ctx, "heart-rate file skipped", logger.String("file", name), logger.Error(err))
		return outcome.Skip[model.Series](name, err)
	}
	return outcome.Ok(name, series, dropped)
}

// LoadSubjects loads the per-subject file of every subject, in order.
func (l *Loader) LoadSubjects(ctx context.Context, subjects []string) ([]outcome.Result[model.Series], error) {
	out := make([]outcome.Result[model.Series], 0, len(subjects))
	for _, s := range subjects {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, l.LoadSubject(ctx, s))
	}
	return out, nil
}

// LoadCombined reads the combined export. A missing file is Missing.
func (l *Loader) LoadCombined(ctx context.Context) outcome.Result[[]model.Series] {
	path := filepath.Join(l.dir, l.combinedFile)
	name := filepath.Base(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return outcome.NotFound[[]model.Series](name)
		}
		return outcome.Skip[[]model.Series](name, err)
	}

	series, dropped, err := ParseCombined(bytes.NewReader(raw), l.aliases)
	if err != nil {
		l.logger.Warn(ctx, "combined heart-rate file skipped", logger.String("file", name), logger.Error(err))
		return outcome.Skip[[]model.Series](name, err)
	}
	return outcome.Ok(name, series, dropped)
}

// ParseSubject parses a per-subject device export. The reading time is the
// recording start time of day plus the row's elapsed duration, folded back
// onto the reference date.
func ParseSubject(subject string, r io.Reader) (model.Series, int, error) {
	series := model.Series{Subject: subject, Modality: model.HeartRate}

	records, err := readRecords(r)
	if err != nil {
		return series, 0, err
	}
	if len(records) < minSubjectLines {
		return series, 0, fmt.Errorf("%w: %d lines", ErrTooShort, len(records))
	}

	start, err := recordingStart(records[0], records[1])
	if err != nil {
		return series, 0, err
	}

	header := records[2]
	timeIdx, bpmIdx := indexOf(header, colTime), indexOf(header, colBPM)
	if timeIdx < 0 || bpmIdx < 0 {
		return series, 0, fmt.Errorf("%w: want %q and %q in %v", ErrNoColumn, colTime, colBPM, header)
	}

	dropped := 0
	for _, rec := range records[3:] {
		elapsed, err := model.ParseElapsed(field(rec, timeIdx))
		if err != nil {
			dropped++
			continue
		}
		bpm, ok := parseValue(field(rec, bpmIdx))
		if !ok {
			dropped++
			continue
		}
		series.Readings = append(series.Readings, model.Reading{
			Time:  model.OnReferenceDate(start.Add(elapsed)),
			Value: bpm,
		})
	}
	return series, dropped, nil
}

// recordingStart reads the Date and Start time metadata fields.
func recordingStart(header, values []string) (time.Time, error) {
	dateIdx, startIdx := indexOf(header, metaDate), indexOf(header, metaStartTime)
	if dateIdx < 0 || startIdx < 0 {
		return time.Time{}, fmt.Errorf("%w: missing %q or %q", ErrBadMetadata, metaDate, metaStartTime)
	}
	date, clock := field(values, dateIdx), field(values, startIdx)
	t, err := time.Parse(metaLayout, date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadMetadata, err)
	}
	return t, nil
}

// ParseCombined parses the combined export: a Time column plus one column per
// subject alias. Unknown aliases keep their own name. Columns come back in
// header order.
func ParseCombined(r io.Reader, aliases map[string]string) ([]model.Series, int, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, 0, err
	}
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("%w: empty file", ErrTooShort)
	}

	header := records[0]
	timeIdx := indexOf(header, colTime)
	if timeIdx < 0 {
		return nil, 0, fmt.Errorf("%w: %q", ErrNoColumn, colTime)
	}

	var cols []int
	var out []model.Series
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == timeIdx || h == "" {
			continue
		}
		subject := h
		if s, ok := aliases[h]; ok && s != "" {
			subject = s
		}
		cols = append(cols, i)
		out = append(out, model.Series{Subject: subject, Modality: model.HeartRate})
	}

	dropped := 0
	for _, rec := range records[1:] {
		at, err := model.ParseClock(field(rec, timeIdx))
		if err != nil {
			dropped++
			continue
		}
		for k, i := range cols {
			if v, ok := parseValue(field(rec, i)); ok {
				out[k].Readings = append(out[k].Readings, model.Reading{Time: at, Value: v})
			}
		}
	}
	return out, dropped, nil
}

// readRecords decodes the whole file as CSV with ragged rows allowed.
// Invalid UTF-8 is replaced and a leading BOM is dropped.
func readRecords(r io.Reader) ([][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	raw = bytes.ToValidUTF8(raw, []byte("\ufffd"))

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

func indexOf(row []string, name string) int {
	for i, v := range row {
		if strings.TrimSpace(v) == name {
			return i
		}
	}
	return -1
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseValue(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
