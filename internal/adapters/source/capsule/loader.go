package capsule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/internal/domain/outcome"
	"github.com/okian/physalign/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// LoadFile reads the first sheet of a capsule workbook. Columns that cannot
// be used are logged and left out; the file is Skipped only when nothing in
// it can be read at all.
func (p *Parser) LoadFile(ctx context.Context, path string) outcome.Result[[]model.Series] {
	name := filepath.Base(path)

	fileNo, ok := FileNumber(name)
	if !ok {
		return outcome.Skip[[]model.Series](name, ErrNoFileNumber)
	}

	rows, err := readFirstSheet(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return outcome.NotFound[[]model.Series](name)
		}
		return outcome.Skip[[]model.Series](name, err)
	}
	if len(rows) <= p.layout.MarkerRow {
		return outcome.Skip[[]model.Series](name, ErrNoMarkerRow)
	}

	columns := p.ParseSheet(fileNo, rows)
	if len(columns) == 0 {
		return outcome.Skip[[]model.Series](name, ErrNoCapsules)
	}

	var series []model.Series
	dropped := 0
	for _, col := range columns {
		switch {
		case col.OK():
			series = append(series, col.Value)
			dropped += col.Dropped
			p.logger.Debug(ctx, "capsule column parsed",
				logger.String("column", col.Source),
				logger.String("subject", col.Value.Subject),
				logger.Int("readings", len(col.Value.Readings)),
				logger.Int("dropped", col.Dropped))
		case errors.Is(col.Reason, ErrUnmapped):
			p.logger.Debug(ctx, "capsule column unmapped", logger.String("column", col.Source))
		default:
			p.logger.Warn(ctx, "capsule column skipped", logger.String("column", col.Source), logger.Error(col.Reason))
		}
	}
	return outcome.Ok(name, series, dropped)
}

// LoadDir loads every workbook in dir matching the parser's patterns, in path
// order. Matches are de-duplicated, so overlapping patterns are harmless.
func (p *Parser) LoadDir(ctx context.Context, dir string) ([]outcome.Result[[]model.Series], error) {
	seen := make(map[string]struct{})
	var paths []string
	for _, pattern := range p.patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	results := make([]outcome.Result[[]model.Series], 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, p.LoadFile(ctx, path))
	}
	return results, nil
}

func readFirstSheet(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// Stored values, not display text: number formats would round
	// temperatures and drop seconds from times.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
