// Package chart renders aligned segments and raw temperature series as PNG
// figures.
package chart

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/pkg/logger"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrNoData is returned when a figure would have nothing to draw.
var ErrNoData = errors.New("no data to plot")

// Trace is one subject's raw segment around one event, X in minutes.
type Trace struct {
	HR   []model.Point
	Temp []model.Point
}

// Empty reports whether neither modality has points.
func (t Trace) Empty() bool { return len(t.HR) == 0 && len(t.Temp) == 0 }

// TraceFunc supplies the segment of subject around ev.
type TraceFunc func(subject string, ev model.Event) Trace

// palette is the default categorical cycle addressed as C0..C9.
var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff},
	{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
}

var (
	markerGray = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	markerRed  = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// Color resolves a colour code such as "C3". Unknown codes are black.
func Color(code string) color.Color {
	if n, err := strconv.Atoi(strings.TrimPrefix(code, "C")); err == nil && strings.HasPrefix(code, "C") && n >= 0 {
		return palette[n%len(palette)]
	}
	return color.Black
}

// Renderer writes figures into an output directory.
type Renderer struct {
	dir       string
	colors    map[string]string
	before    int // seconds
	after     int
	tempRange [2]float64
	logger    logger.Logger
}

// Option applies a configuration option to the Renderer.
type Option func(*Renderer)

// WithColors maps subjects to colour codes.
func WithColors(colors map[string]string) Option {
	return func(r *Renderer) {
		r.colors = colors
	}
}

// WithWindow sets the x-range of event figures, seconds around the start.
func WithWindow(before, after int) Option {
	return func(r *Renderer) {
		if before < after {
			r.before, r.after = before, after
		}
	}
}

// WithTempRange fixes the temperature axis of the overlay figure.
func WithTempRange(lo, hi float64) Option {
	return func(r *Renderer) {
		if lo < hi {
			r.tempRange = [2]float64{lo, hi}
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New constructs a Renderer writing into dir.
func New(dir string, opts ...Option) *Renderer {
	r := &Renderer{
		dir:       dir,
		before:    -300,
		after:     420,
		tempRange: [2]float64{36, 40},
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) color(subject string) color.Color {
	return Color(r.colors[subject])
}

// newEventPlot returns a plot whose x-axis spans the event window in minutes.
func (r *Renderer) newEventPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = ylabel
	p.X.Min = float64(r.before) / 60
	p.X.Max = float64(r.after) / 60
	p.Add(plotter.NewGrid())
	return p
}

// addLine draws points in c. Dashed lines are used for the temperature
// trace where both modalities share a panel colour.
func addLine(p *plot.Plot, pts []model.Point, c color.Color, dashed bool) (*plotter.Line, error) {
	if len(pts) == 0 {
		return nil, nil
	}
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i].X, xys[i].Y = pt.X, pt.Y
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	if dashed {
		line.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	}
	p.Add(line)
	return line, nil
}

// addMarker draws a vertical line at x minutes across the current y-range.
func addMarker(p *plot.Plot, x float64, c color.Color) error {
	lo, hi := p.Y.Min, p.Y.Max
	if lo >= hi {
		lo, hi = 0, 1
	}
	line, err := plotter.NewLine(plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}})
	if err != nil {
		return err
	}
	line.Color = c
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(line)
	return nil
}

// noData returns a blank panel carrying title and a centred "No Data".
func noData(title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    []plotter.XY{{X: 0.5, Y: 0.5}},
		Labels: []string{"No Data"},
	})
	if err != nil {
		return nil, err
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = draw.XCenter
	}
	p.Add(labels)
	return p, nil
}

func blank() *plot.Plot {
	p := plot.New()
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	return p
}

// save renders a grid of plots into one PNG at path. An optional heading is
// drawn above the grid.
func save(path string, plots [][]*plot.Plot, w, h vg.Length, heading string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	img := vgimg.New(w, h)
	dc := draw.New(img)

	top := vg.Points(4)
	if heading != "" {
		top = vg.Points(28)
		sty := draw.TextStyle{
			Color:   color.Black,
			Font:    font.From(plot.DefaultFont, vg.Points(16)),
			XAlign:  draw.XCenter,
			YAlign:  draw.YTop,
			Handler: plot.DefaultTextHandler,
		}
		dc.FillText(sty, vg.Point{X: w / 2, Y: h - vg.Points(6)}, heading)
	}

	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      len(plots[0]),
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    top,
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(4),
	}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		for i := range plots[j] {
			if plots[j][i] != nil {
				plots[j][i].Draw(canvases[j][i])
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func (r *Renderer) logWritten(ctx context.Context, kind, path string) {
	r.logger.Info(ctx, "chart written", logger.String("kind", kind), logger.String("path", path))
}
