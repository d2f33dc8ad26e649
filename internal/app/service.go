// Package service runs the alignment pipeline: load the capsule workbooks
// and heart-rate exports, align them around every configured event, then
// write the workbook, charts, database rows and run report.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/okian/physalign/internal/adapters/export/chart"
	"github.com/okian/physalign/internal/adapters/export/workbook"
	"github.com/okian/physalign/internal/adapters/source/capsule"
	"github.com/okian/physalign/internal/adapters/source/heartrate"
	"github.com/okian/physalign/internal/adapters/store"
	"github.com/okian/physalign/internal/config"
	"github.com/okian/physalign/internal/domain/align"
	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/internal/domain/outcome"
	"github.com/okian/physalign/internal/report"
	"github.com/okian/physalign/pkg/logger"
	"github.com/okian/physalign/pkg/metrics"
)

// Output kinds used in logs and metrics.
const (
	kindWorkbook = "workbook"
	kindChart    = "chart"
	kindSQLite   = "sqlite"
	kindMetrics  = "metrics"
)

// Service runs alignment passes over one data directory.
type Service struct {
	cfg     *config.Config
	logger  logger.Logger
	metrics *metrics.Manager
	out     io.Writer
	newID   func() string
	now     func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics manager runs record into.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithReportWriter sets where the run report is printed.
func WithReportWriter(w io.Writer) Option {
	return func(s *Service) {
		if w != nil {
			s.out = w
		}
	}
}

// WithRunID fixes the run id instead of generating one per run.
func WithRunID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.newID = func() string { return id }
		}
	}
}

// New constructs a Service for cfg.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		metrics: metrics.Default(),
		out:     os.Stdout,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes one run.
type Result struct {
	RunID       string
	Sources     []report.Source
	Temperature model.AlignedTable
	HeartRate   model.AlignedTable
	Failures    []align.EventError
	Outputs     []string
}

// Run executes one full pass. Missing or unusable inputs never abort the
// run; they surface as missing columns. Failing to create the output
// directory or to write the workbook is fatal.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if s.logger == nil {
		s.logger = logger.Get()
	}
	started := s.now()
	res := &Result{
		RunID:       s.newID(),
		Temperature: model.AlignedTable{Modality: model.CoreTemp},
		HeartRate:   model.AlignedTable{Modality: model.HeartRate},
	}
	log := s.logger.With(logger.String("run_id", res.RunID))
	log.Info(ctx, "run started",
		logger.String("data_dir", s.cfg.DataDir),
		logger.String("output_dir", s.cfg.Output()))

	if err := os.MkdirAll(s.cfg.Output(), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	idx := align.NewIndex()
	if err := s.loadTemperatures(ctx, log, idx, res); err != nil {
		return nil, err
	}
	if err := s.loadHeartRate(ctx, log, idx, res); err != nil {
		return nil, err
	}

	aligner := align.New(
		align.WithWindow(align.Window{
			Before: s.cfg.WindowBefore,
			After:  s.cfg.WindowAfter,
			Margin: s.cfg.WindowMargin,
		}),
		align.WithHeartRateTolerance(s.cfg.HRTolerance),
	)
	experiments := s.cfg.ExperimentModels()
	for _, exp := range experiments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		failures := aligner.Experiment(exp, model.CoreTemp, idx, &res.Temperature)
		failures = append(failures, aligner.Experiment(exp, model.HeartRate, idx, &res.HeartRate)...)
		failures = align.UniqueEvents(failures)
		for _, f := range failures {
			log.Warn(ctx, "event not aligned",
				logger.String("experiment", f.Experiment),
				logger.String("start", f.Event.Start),
				logger.Error(f.Err))
			s.metrics.RecordEventFailure(f.Experiment)
		}
		res.Failures = append(res.Failures, failures...)
	}
	for _, tbl := range []model.AlignedTable{res.Temperature, res.HeartRate} {
		for _, col := range tbl.Columns {
			s.metrics.RecordColumn(string(tbl.Modality), col.Filled(), len(tbl.Offsets))
		}
	}

	if s.cfg.WriteWorkbook {
		path := s.cfg.OutputPath(s.cfg.WorkbookFile)
		err := s.timed(kindWorkbook, func() error {
			return workbook.New(workbook.WithLogger(log)).Write(ctx, path, res.Temperature, res.HeartRate)
		})
		if err != nil {
			return nil, fmt.Errorf("write workbook: %w", err)
		}
		res.Outputs = append(res.Outputs, path)
	}

	if s.cfg.WriteCharts {
		res.Outputs = append(res.Outputs, s.writeCharts(ctx, log, aligner, idx, experiments)...)
	}

	if s.cfg.SQLitePath != "" {
		if err := s.timed(kindSQLite, func() error { return s.writeSQLite(ctx, log, res) }); err != nil {
			log.Error(ctx, "sqlite sink failed", logger.String("path", s.cfg.SQLitePath), logger.Error(err))
		} else {
			res.Outputs = append(res.Outputs, s.cfg.SQLitePath)
		}
	}

	if s.cfg.PrintReport {
		if err := report.RenderSources(s.out, res.Sources); err != nil {
			log.Warn(ctx, "report failed", logger.Error(err))
		}
		if err := report.RenderCoverage(s.out, report.CoverageOf(res.Temperature, res.HeartRate)); err != nil {
			log.Warn(ctx, "report failed", logger.Error(err))
		}
	}

	elapsed := s.now().Sub(started)
	s.metrics.RecordRun(elapsed, s.now())
	if s.cfg.MetricsPath != "" {
		if err := s.timed(kindMetrics, func() error { return s.metrics.WriteTextfile(s.cfg.MetricsPath) }); err != nil {
			log.Error(ctx, "metrics textfile failed", logger.String("path", s.cfg.MetricsPath), logger.Error(err))
		}
	}

	log.Info(ctx, "run finished",
		logger.Duration("elapsed", elapsed),
		logger.Int("columns", len(res.Temperature.Columns)),
		logger.Int("event_failures", len(res.Failures)),
		logger.Int("outputs", len(res.Outputs)))
	return res, nil
}

func (s *Service) loadTemperatures(ctx context.Context, log logger.Logger, idx *align.Index, res *Result) error {
	identity := make(capsule.IdentityMap)
	for _, c := range s.cfg.Capsules {
		if identity[c.File] == nil {
			identity[c.File] = make(map[int]string)
		}
		identity[c.File][c.Capsule] = c.Subject
	}

	parser := capsule.New(
		capsule.WithLayout(capsule.Layout{
			MarkerRow:    s.cfg.MarkerRow,
			DataStartRow: s.cfg.DataStartRow,
			Token:        s.cfg.CapsuleToken,
		}),
		capsule.WithIdentity(identity),
		capsule.WithMinTemp(s.cfg.MinTemp),
		capsule.WithPatterns(s.cfg.CapsulePatterns...),
		capsule.WithLogger(log.Named("capsule")),
	)
	results, err := parser.LoadDir(ctx, s.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load temperatures: %w", err)
	}
	if len(results) == 0 {
		log.Warn(ctx, "no capsule workbooks found", logger.String("dir", s.cfg.DataDir))
	}
	for _, r := range results {
		readings := 0
		for _, series := range r.Value {
			idx.Add(series)
			readings += len(series.Readings)
		}
		s.recordSource(ctx, log, res, model.CoreTemp, r.Source, r.Status, readings, r.Dropped, r.Reason)
	}
	return nil
}

func (s *Service) loadHeartRate(ctx context.Context, log logger.Logger, idx *align.Index, res *Result) error {
	loader := heartrate.New(s.cfg.DataDir,
		heartrate.WithFilePattern(s.cfg.HRFilePattern),
		heartrate.WithCombinedFile(s.cfg.CombinedHRFile),
		heartrate.WithAliases(s.cfg.Aliases),
		heartrate.WithLogger(log.Named("heartrate")),
	)

	if s.cfg.UseCombinedHR {
		r := loader.LoadCombined(ctx)
		readings := 0
		for _, series := range r.Value {
			idx.Add(series)
			readings += len(series.Readings)
		}
		s.recordSource(ctx, log, res, model.HeartRate, r.Source, r.Status, readings, r.Dropped, r.Reason)
		return nil
	}

	results, err := loader.LoadSubjects(ctx, s.cfg.Subjects())
	if err != nil {
		return fmt.Errorf("load heart rate: %w", err)
	}
	for _, r := range results {
		idx.Add(r.Value)
		s.recordSource(ctx, log, res, model.HeartRate, r.Source, r.Status, len(r.Value.Readings), r.Dropped, r.Reason)
	}
	return nil
}

func (s *Service) recordSource(ctx context.Context, log logger.Logger, res *Result, m model.Modality,
	name string, status outcome.Status, readings, dropped int, reason error,
) {
	src := report.Source{
		Name:     name,
		Modality: m,
		Status:   status.String(),
		Readings: readings,
		Dropped:  dropped,
	}
	fields := []logger.Field{
		logger.String("file", name),
		logger.String("modality", string(m)),
		logger.Int("readings", readings),
		logger.Int("dropped", dropped),
	}
	switch status {
	case outcome.Loaded:
		log.Info(ctx, "input loaded", fields...)
	case outcome.Missing:
		log.Info(ctx, "input missing", fields...)
	default:
		if reason != nil {
			src.Reason = reason.Error()
		}
		log.Warn(ctx, "input skipped", append(fields, logger.Error(reason))...)
	}
	res.Sources = append(res.Sources, src)
	s.metrics.RecordFile(string(m), status.String())
	s.metrics.RecordReadings(string(m), readings, dropped)
}

// writeCharts renders every figure. Chart failures are logged and counted;
// they never fail the run.
func (s *Service) writeCharts(ctx context.Context, log logger.Logger, aligner *align.Aligner,
	idx *align.Index, experiments []model.Experiment,
) []string {
	if used, err := chart.UseFont(append([]string{s.cfg.FontPath}, chart.SystemFontPaths...)...); err != nil {
		log.Warn(ctx, "no Japanese font found; subject names may not render", logger.String("font_path", s.cfg.FontPath))
	} else {
		log.Debug(ctx, "chart font loaded", logger.String("path", used))
	}

	w := aligner.Window()
	r := chart.New(s.cfg.Output(),
		chart.WithColors(s.cfg.Colors),
		chart.WithWindow(w.Before, w.After),
		chart.WithLogger(log.Named("chart")),
	)
	trace := func(subject string, ev model.Event) chart.Trace {
		var tr chart.Trace
		if series, ok := idx.Lookup(subject, model.HeartRate); ok {
			tr.HR, _ = aligner.Segment(series, ev.Start)
		}
		if series, ok := idx.Lookup(subject, model.CoreTemp); ok {
			tr.Temp, _ = aligner.Segment(series, ev.Start)
		}
		return tr
	}

	var written []string
	keep := func(path string, err error) {
		if err != nil {
			if !errors.Is(err, chart.ErrNoData) {
				log.Warn(ctx, "chart failed", logger.Error(err))
			}
			return
		}
		written = append(written, path)
	}

	for _, exp := range experiments {
		var paths []string
		err := s.timed(kindChart, func() (err error) {
			paths, err = r.Trials(ctx, exp, trace)
			return err
		})
		written = append(written, paths...)
		if err != nil {
			log.Warn(ctx, "trial charts failed", logger.String("experiment", exp.Name), logger.Error(err))
		}

		var path string
		err = s.timed(kindChart, func() (err error) {
			path, err = r.Overlay(ctx, exp, trace)
			return err
		})
		keep(path, err)

		err = s.timed(kindChart, func() (err error) {
			path, err = r.Grid(ctx, exp, trace)
			return err
		})
		keep(path, err)
	}

	var path string
	err := s.timed(kindChart, func() (err error) {
		path, err = r.Timeline(ctx, s.cfg.TimelineFile, idx.All(model.CoreTemp))
		return err
	})
	keep(path, err)

	for _, series := range idx.All(model.CoreTemp) {
		err = s.timed(kindChart, func() (err error) {
			path, err = r.Individual(ctx, series)
			return err
		})
		keep(path, err)
	}
	return written
}

func (s *Service) writeSQLite(ctx context.Context, log logger.Logger, res *Result) error {
	db, err := store.Open(ctx, s.cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	n, err := db.WriteTables(ctx, res.RunID, res.Temperature, res.HeartRate)
	if err != nil {
		return err
	}
	log.Info(ctx, "sqlite rows written", logger.String("path", s.cfg.SQLitePath), logger.Int("rows", n))
	return nil
}

// timed runs fn and records it as one output of kind.
func (s *Service) timed(kind string, fn func() error) error {
	start := s.now()
	err := fn()
	s.metrics.RecordOutput(kind, s.now().Sub(start), err)
	return err
}
