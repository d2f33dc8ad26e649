// Package config defines the aligner's configuration and loading hooks.
//
// Conventions:
// - New() returns a Config populated with the recording session's tables.
// - Load(ctx) layers a YAML file and PHYSALIGN_* environment variables on top.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/okian/physalign/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataDir holds the capsule workbooks and heart-rate exports.
	DataDir string `koanf:"data_dir"`
	// OutputDir receives the workbook and charts. Empty means DataDir.
	OutputDir string `koanf:"output_dir"`
	// SQLitePath enables the long-format sink when set.
	SQLitePath string `koanf:"sqlite_path"`
	// MetricsPath enables the Prometheus textfile when set.
	MetricsPath string `koanf:"metrics_path"`

	// Alignment window in seconds relative to each event start.
	WindowBefore int     `koanf:"window_before"`
	WindowAfter  int     `koanf:"window_after"`
	WindowMargin float64 `koanf:"window_margin"`
	// HRTolerance is the nearest-neighbour snap distance for heart rate.
	HRTolerance float64 `koanf:"hr_tolerance"`

	// Capsule workbook layout (0-based rows).
	MarkerRow       int      `koanf:"marker_row"`
	DataStartRow    int      `koanf:"data_start_row"`
	CapsuleToken    string   `koanf:"capsule_token"`
	CapsulePatterns []string `koanf:"capsule_patterns"`
	// MinTemp drops readings below it as sensor-off noise; 0 disables.
	MinTemp float64 `koanf:"min_temp"`

	// Heart-rate sources. HRFilePattern holds %s for the subject name.
	HRFilePattern  string `koanf:"hr_file_pattern"`
	CombinedHRFile string `koanf:"combined_hr_file"`
	UseCombinedHR  bool   `koanf:"use_combined_hr"`

	// FontPath is a TTF/OTF/TTC with Japanese glyphs for chart text. Empty
	// tries the usual system locations.
	FontPath string `koanf:"font_path"`

	// Output file names and toggles.
	WorkbookFile  string `koanf:"workbook_file"`
	TimelineFile  string `koanf:"timeline_file"`
	WriteWorkbook bool   `koanf:"write_workbook"`
	WriteCharts   bool   `koanf:"write_charts"`
	PrintReport   bool   `koanf:"print_report"`

	Experiments []ExperimentConfig `koanf:"experiments"`
	Capsules    []CapsuleConfig    `koanf:"capsules"`

	// Aliases maps combined heart-rate column names to subjects.
	Aliases map[string]string `koanf:"aliases"`
	// Colors maps subjects to chart colour codes (C0..C9).
	Colors map[string]string `koanf:"colors"`
}

// ExperimentConfig is one experiment's event table.
type ExperimentConfig struct {
	Name        string        `koanf:"name"`
	Prefix      string        `koanf:"prefix"`
	LabelSuffix bool          `koanf:"label_suffix"`
	Events      []EventConfig `koanf:"events"`
}

// EventConfig is one event row.
type EventConfig struct {
	Start    string   `koanf:"start"`
	Subjects []string `koanf:"subjects"`
	Suffix   string   `koanf:"suffix"`
}

// CapsuleConfig assigns a capsule within a recording file to a subject.
type CapsuleConfig struct {
	File    int    `koanf:"file"`
	Capsule int    `koanf:"capsule"`
	Subject string `koanf:"subject"`
}

// New returns a Config with the defaults for the 2026-01-17 session.
func New() *Config {
	pairs := [][]string{
		{"山口", "姜"},
		{"北田", "伊藤"},
		{"藤井", "山本"},
		{"板井", "高見澤"},
	}
	ev := func(start string, pair int, suffix string) EventConfig {
		return EventConfig{Start: start, Subjects: append([]string(nil), pairs[pair]...), Suffix: suffix}
	}

	return &Config{
		LogLevel:     "info",
		DataDir:      "Downloads",
		WindowBefore: -300,
		WindowAfter:  420,
		WindowMargin: 10,
		HRTolerance:  1.5,

		MarkerRow:       6,
		DataStartRow:    8,
		CapsuleToken:    "Capsule",
		CapsulePatterns: []string{"260117_no*.xlsx", "260117_No*.xlsx"},
		MinTemp:         30,

		HRFilePattern:  "心拍数_%s.CSV",
		CombinedHRFile: "Jisedai2026_HR.csv",

		WorkbookFile:  "Experiment_Data_Aligned.xlsx",
		TimelineFile:  "260117_temperature_unified.png",
		WriteWorkbook: true,
		WriteCharts:   true,
		PrintReport:   true,

		Experiments: []ExperimentConfig{
			{
				Name:        "Exp1",
				Prefix:      "Exp1_",
				LabelSuffix: true,
				Events: []EventConfig{
					ev("14:08:12", 0, "1回目"),
					ev("14:13:15", 1, "1回目"),
					ev("14:17:35", 2, "1回目"),
					ev("14:21:33", 3, "1回目"),
					ev("14:28:04", 0, "2回目"),
					ev("14:32:23", 1, "2回目"),
					ev("14:36:50", 2, "2回目"),
					ev("14:40:29", 3, "2回目"),
				},
			},
			{
				Name:   "Exp2",
				Prefix: "Exp2_",
				Events: []EventConfig{
					ev("14:52:43", 0, ""),
					ev("14:56:47", 1, ""),
					ev("14:59:55", 2, ""),
					ev("15:05:16", 3, ""),
				},
			},
		},
		Capsules: []CapsuleConfig{
			{File: 1, Capsule: 2, Subject: "板井"},
			{File: 1, Capsule: 3, Subject: "姜"},
			{File: 2, Capsule: 2, Subject: "北田"},
			{File: 2, Capsule: 3, Subject: "伊藤"},
			{File: 3, Capsule: 1, Subject: "山本"},
			{File: 3, Capsule: 3, Subject: "高見澤"},
			{File: 5, Capsule: 1, Subject: "山口"},
			{File: 5, Capsule: 2, Subject: "藤井"},
		},
		Aliases: map[string]string{
			"Fujii":      "藤井",
			"Itai":       "板井",
			"Ito":        "伊藤",
			"Kan":        "姜",
			"Kitada":     "北田",
			"Takamizawa": "高見澤",
			"Yamaguchi":  "山口",
			"Yamamoto":   "山本",
		},
		Colors: map[string]string{
			"藤井":  "C0",
			"板井":  "C1",
			"伊藤":  "C2",
			"姜":   "C3",
			"北田":  "C4",
			"高見澤": "C5",
			"山口":  "C6",
			"山本":  "C7",
		},
	}
}

// Output returns the directory outputs are written to.
func (c *Config) Output() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return c.DataDir
}

// OutputPath joins name onto the output directory.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.Output(), name)
}

// Subjects returns every subject named by an event, in first-seen order.
func (c *Config) Subjects() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, exp := range c.Experiments {
		for _, ev := range exp.Events {
			for _, s := range ev.Subjects {
				if _, ok := seen[s]; ok {
					continue
				}
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out
}

// ExperimentModels converts the event tables into domain experiments.
func (c *Config) ExperimentModels() []model.Experiment {
	out := make([]model.Experiment, 0, len(c.Experiments))
	for _, e := range c.Experiments {
		exp := model.Experiment{Name: e.Name, Prefix: e.Prefix, LabelSuffix: e.LabelSuffix}
		for _, ev := range e.Events {
			exp.Events = append(exp.Events, model.Event{
				Start:    ev.Start,
				Subjects: append([]string(nil), ev.Subjects...),
				Suffix:   ev.Suffix,
			})
		}
		out = append(out, exp)
	}
	return out
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	}
	if c.WindowBefore > c.WindowAfter {
		return fmt.Errorf("%w: window_before %d > window_after %d", ErrInvalidConfig, c.WindowBefore, c.WindowAfter)
	}
	if c.WindowMargin < 0 || c.HRTolerance < 0 || c.MinTemp < 0 {
		return fmt.Errorf("%w: window_margin, hr_tolerance and min_temp must be non-negative", ErrInvalidConfig)
	}
	if c.MarkerRow < 0 || c.DataStartRow <= c.MarkerRow {
		return fmt.Errorf("%w: data_start_row must follow marker_row", ErrInvalidConfig)
	}
	if len(c.Experiments) == 0 {
		return fmt.Errorf("%w: no experiments", ErrInvalidConfig)
	}
	for _, exp := range c.Experiments {
		if exp.Name == "" {
			return fmt.Errorf("%w: experiment without name", ErrInvalidConfig)
		}
		for _, ev := range exp.Events {
			if _, err := model.ParseClock(ev.Start); err != nil {
				return fmt.Errorf("%w: %s event %q: %v", ErrInvalidConfig, exp.Name, ev.Start, err)
			}
			if len(ev.Subjects) == 0 {
				return fmt.Errorf("%w: %s event %s has no subjects", ErrInvalidConfig, exp.Name, ev.Start)
			}
		}
	}
	return nil
}
