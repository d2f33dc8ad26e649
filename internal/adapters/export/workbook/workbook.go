// Package workbook writes aligned tables to an xlsx workbook, one sheet per
// modality.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// Sentinel errors for this package.
var (
	ErrNoTables  = errors.New("no tables to write")
	ErrDuplicate = errors.New("duplicate sheet")
)

const defaultSheet = "Sheet1"

// SheetName returns the sheet title used for modality m.
func SheetName(m model.Modality) string {
	return m.Title()
}

// Writer renders aligned tables as workbook sheets.
type Writer struct {
	logger logger.Logger
}

// Option applies a configuration option to the Writer.
type Option func(*Writer)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// New constructs a Writer.
func New(opts ...Option) *Writer {
	w := &Writer{logger: logger.Nop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write saves tables to path, one sheet each in the given order. Cell A1 is
// "Time", row 1 carries the column labels and every following row one grid
// offset labelled m:ss. Missing values are left blank. An existing file is
// replaced.
func (w *Writer) Write(ctx context.Context, path string, tables ...model.AlignedTable) error {
	if len(tables) == 0 {
		return ErrNoTables
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	seen := make(map[string]struct{}, len(tables))
	for i, tbl := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := SheetName(tbl.Modality)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicate, name)
		}
		seen[name] = struct{}{}

		idx, err := f.NewSheet(name)
		if err != nil {
			return fmt.Errorf("new sheet %q: %w", name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, name, tbl); err != nil {
			return fmt.Errorf("sheet %q: %w", name, err)
		}
		w.logger.Debug(ctx, "sheet written",
			logger.String("sheet", name),
			logger.Int("columns", len(tbl.Columns)),
			logger.Int("rows", len(tbl.Offsets)))
	}
	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	w.logger.Info(ctx, "workbook written", logger.String("path", path), logger.Int("sheets", len(tables)))
	return nil
}

func writeSheet(f *excelize.File, sheet string, tbl model.AlignedTable) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}

	header := make([]interface{}, 0, len(tbl.Columns)+1)
	header = append(header, "Time")
	for _, c := range tbl.Columns {
		header = append(header, c.Label)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for r, off := range tbl.Offsets {
		row := make([]interface{}, len(tbl.Columns)+1)
		row[0] = model.FormatRelative(off)
		for c, col := range tbl.Columns {
			if r < len(col.Values) && !math.IsNaN(col.Values[r]) {
				row[c+1] = col.Values[r]
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}
