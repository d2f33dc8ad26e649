// Package capsule parses capsule-logger workbooks into per-subject core
// temperature series.
//
// A workbook has no usable header. One marker row holds a cell per capsule
// (e.g. "Capsule n-3"); the capsule's date, time and temperature columns sit
// one, two and three columns to the right of its marker, starting at a fixed
// data row.
package capsule

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/internal/domain/outcome"
	"github.com/okian/physalign/pkg/logger"
)

// Sentinel errors for this package.
var (
	ErrNoFileNumber     = errors.New("file name carries no sequence number")
	ErrNoMarkerRow      = errors.New("sheet has no capsule marker row")
	ErrNoCapsules       = errors.New("no capsule markers found")
	ErrColumnOutOfRange = errors.New("capsule data columns beyond sheet width")
	ErrUnmapped         = errors.New("capsule has no subject mapping")
)

// Column offsets of a capsule's data block relative to its marker cell.
const (
	dateOffset = 1
	timeOffset = 2
	tempOffset = 3
)

var (
	capsuleIDPattern  = regexp.MustCompile(`n[^\d]*(\d+)`)
	fileNumberPattern = regexp.MustCompile(`no(\d+)`)
)

// Layout locates the marker row and first data row (0-based) and the token a
// marker cell must contain.
type Layout struct {
	MarkerRow    int
	DataStartRow int
	Token        string
}

// DefaultLayout matches the capsule logger export.
var DefaultLayout = Layout{MarkerRow: 6, DataStartRow: 8, Token: "Capsule"}

// IdentityMap resolves (file sequence number, capsule id) to a subject name.
type IdentityMap map[int]map[int]string

// Subject returns the subject for a capsule, if mapped.
func (m IdentityMap) Subject(fileNo, capsuleID int) (string, bool) {
	name, ok := m[fileNo][capsuleID]
	return name, ok && name != ""
}

// CapsuleID extracts the capsule number from a marker cell such as
// "Capsule n-3" or "Capsule n_12"; any non-digit delimiter may follow the n.
func CapsuleID(cell string) (int, bool) {
	m := capsuleIDPattern.FindStringSubmatch(cell)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// FileNumber extracts the recording sequence number from a file name such as
// "260117_No5.xlsx".
func FileNumber(name string) (int, bool) {
	m := fileNumberPattern.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Marker is a capsule marker found in the marker row.
type Marker struct {
	Column  int
	Capsule int
}

// Markers scans the marker row for capsule cells, left to right.
func Markers(rows [][]string, layout Layout) []Marker {
	if layout.MarkerRow < 0 || layout.MarkerRow >= len(rows) {
		return nil
	}
	var out []Marker
	for col, cell := range rows[layout.MarkerRow] {
		if layout.Token != "" && !strings.Contains(cell, layout.Token) {
			continue
		}
		if id, ok := CapsuleID(cell); ok {
			out = append(out, Marker{Column: col, Capsule: id})
		}
	}
	return out
}

// Parser turns capsule sheets into temperature series.
type Parser struct {
	layout   Layout
	identity IdentityMap
	minTemp  float64
	patterns []string
	logger   logger.Logger
}

// Option applies a configuration option to the Parser.
type Option func(*Parser)

// WithLayout overrides the sheet layout.
func WithLayout(l Layout) Option {
	return func(p *Parser) {
		if l.MarkerRow >= 0 && l.DataStartRow > l.MarkerRow {
			p.layout = l
		}
	}
}

// WithIdentity sets the subject mapping. With no mapping every capsule is
// kept and named "no<file>-cap<id>".
func WithIdentity(m IdentityMap) Option {
	return func(p *Parser) {
		p.identity = m
	}
}

// WithMinTemp drops readings below celsius as sensor-off noise. Zero disables
// the filter.
func WithMinTemp(celsius float64) Option {
	return func(p *Parser) {
		if celsius >= 0 {
			p.minTemp = celsius
		}
	}
}

// WithPatterns sets the glob patterns used by LoadDir.
func WithPatterns(patterns ...string) Option {
	return func(p *Parser) {
		if len(patterns) > 0 {
			p.patterns = patterns
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// New constructs a Parser with the default layout and no temperature filter.
func New(opts ...Option) *Parser {
	p := &Parser{
		layout:   DefaultLayout,
		patterns: []string{"260117_no*.xlsx", "260117_No*.xlsx"},
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseSheet extracts one result per capsule marker of a sheet belonging to
// recording fileNo. Column failures never affect sibling columns.
func (p *Parser) ParseSheet(fileNo int, rows [][]string) []outcome.Result[model.Series] {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}

	markers := Markers(rows, p.layout)
	out := make([]outcome.Result[model.Series], 0, len(markers))
	for _, mk := range markers {
		source := fmt.Sprintf("no%d/capsule%d", fileNo, mk.Capsule)

		subject, ok := p.subject(fileNo, mk.Capsule)
		if !ok {
			out = append(out, outcome.Skip[model.Series](source, ErrUnmapped))
			continue
		}
		if mk.Column+tempOffset >= width {
			out = append(out, outcome.Skip[model.Series](source, fmt.Errorf("%w: column %d", ErrColumnOutOfRange, mk.Column)))
			continue
		}

		series := model.Series{Subject: subject, Modality: model.CoreTemp}
		dropped := 0
		for i := p.layout.DataStartRow; i < len(rows); i++ {
			if cell(rows[i], mk.Column+timeOffset) == "" && cell(rows[i], mk.Column+tempOffset) == "" {
				continue
			}
			r, ok := p.parseRow(rows[i], mk.Column)
			if !ok {
				dropped++
				continue
			}
			series.Readings = append(series.Readings, r)
		}
		out = append(out, outcome.Ok(source, series, dropped))
	}
	return out
}

func (p *Parser) subject(fileNo, capsuleID int) (string, bool) {
	if len(p.identity) == 0 {
		return fmt.Sprintf("no%d-cap%d", fileNo, capsuleID), true
	}
	return p.identity.Subject(fileNo, capsuleID)
}

// parseRow reads the time and temperature cells of one data row. Rows with a
// blank or unparsable cell, or a temperature below the filter, are rejected.
func (p *Parser) parseRow(row []string, markerCol int) (model.Reading, bool) {
	timeCell := cell(row, markerCol+timeOffset)
	tempCell := cell(row, markerCol+tempOffset)
	if timeCell == "" || tempCell == "" {
		return model.Reading{}, false
	}

	at, err := parseTimeCell(timeCell)
	if err != nil {
		return model.Reading{}, false
	}
	temp, err := strconv.ParseFloat(tempCell, 64)
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return model.Reading{}, false
	}
	if p.minTemp > 0 && temp < p.minTemp {
		return model.Reading{}, false
	}
	return model.Reading{Time: at, Value: temp}, true
}

// parseTimeCell accepts a formatted clock or a raw spreadsheet serial.
func parseTimeCell(s string) (t time.Time, err error) {
	if t, err = model.ParseClock(s); err == nil {
		return t, nil
	}
	serial, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil {
		return t, err
	}
	return model.FromDayFraction(serial)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
