// Package report renders a run summary for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/okian/physalign/internal/domain/model"
)

var (
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorRed    = lipgloss.Color("#FF0000")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(colorGray)
)

// Coverage counts non-missing grid points of one column label per modality.
// A modality without that column reports -1.
type Coverage struct {
	Label string
	HR    int
	Temp  int
	Total int
}

// Source describes one input file's load result.
type Source struct {
	Name     string
	Modality model.Modality
	Status   string
	Readings int
	Dropped  int
	Reason   string
}

// CoverageOf lists every column label of tables in first-seen order.
func CoverageOf(tables ...model.AlignedTable) []Coverage {
	var out []Coverage
	index := make(map[string]int)
	for _, tbl := range tables {
		for _, col := range tbl.Columns {
			i, ok := index[col.Label]
			if !ok {
				i = len(out)
				index[col.Label] = i
				out = append(out, Coverage{Label: col.Label, HR: -1, Temp: -1, Total: len(tbl.Offsets)})
			}
			switch tbl.Modality {
			case model.HeartRate:
				out[i].HR = col.Filled()
			case model.CoreTemp:
				out[i].Temp = col.Filled()
			}
		}
	}
	return out
}

func fraction(filled, total int) string {
	if filled < 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", filled, total)
}

func coverageColor(filled, total int) lipgloss.TerminalColor {
	switch {
	case filled <= 0:
		return colorRed
	case filled < total:
		return colorYellow
	default:
		return colorGreen
	}
}

// RenderCoverage writes the coverage table to w.
func RenderCoverage(w io.Writer, rows []Coverage) error {
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{r.Label, fraction(r.HR, r.Total), fraction(r.Temp, r.Total)}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Column", "Heart Rate", "Core Temp").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 || row < 0 || row >= len(rows) {
				return cellStyle
			}
			filled := rows[row].HR
			if col == 2 {
				filled = rows[row].Temp
			}
			return cellStyle.Foreground(coverageColor(filled, rows[row].Total))
		})

	_, err := fmt.Fprintln(w, titleStyle.Render("Coverage")+"\n"+t.String())
	return err
}

// RenderSources writes the input file table to w.
func RenderSources(w io.Writer, rows []Source) error {
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{
			r.Name,
			r.Modality.Title(),
			r.Status,
			strconv.Itoa(r.Readings),
			strconv.Itoa(r.Dropped),
			r.Reason,
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("File", "Modality", "Status", "Readings", "Dropped", "Reason").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != 2 || row < 0 || row >= len(rows) {
				return cellStyle
			}
			switch rows[row].Status {
			case "loaded":
				return cellStyle.Foreground(colorGreen)
			case "missing":
				return cellStyle.Foreground(colorYellow)
			default:
				return cellStyle.Foreground(colorRed)
			}
		})

	_, err := fmt.Fprintln(w, titleStyle.Render("Inputs")+"\n"+t.String())
	return err
}
