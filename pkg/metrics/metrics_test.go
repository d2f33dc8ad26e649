package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "physalign")
				So(manager.subsystem, ShouldEqual, "run")
				So(manager.enabled, ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"session": "260117"}),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.constLabels["session"], ShouldEqual, "260117")
			})
		})

		Convey("When empty option values are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithPrometheusRegistry(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "physalign")
				So(manager.subsystem, ShouldEqual, "run")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
				So(manager.constLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given a manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(WithPrometheusRegistry(registry))

		Convey("When recording input files and readings", func() {
			manager.RecordFile("core_temp", "loaded")
			manager.RecordFile("core_temp", "loaded")
			manager.RecordFile("heart_rate", "missing")
			manager.RecordReadings("core_temp", 120, 3)

			Convey("Then counters reflect each label set", func() {
				So(testutil.ToFloat64(manager.files.WithLabelValues("core_temp", "loaded")), ShouldEqual, 2)
				So(testutil.ToFloat64(manager.files.WithLabelValues("heart_rate", "missing")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.readingsParsed.WithLabelValues("core_temp")), ShouldEqual, 120)
				So(testutil.ToFloat64(manager.readingsDropped.WithLabelValues("core_temp")), ShouldEqual, 3)
			})
		})

		Convey("When recording aligned columns", func() {
			manager.RecordColumn("heart_rate", 721, 721)
			manager.RecordColumn("heart_rate", 300, 721)
			manager.RecordColumn("heart_rate", 0, 721)

			Convey("Then coverage is classified", func() {
				So(testutil.ToFloat64(manager.columnsAligned.WithLabelValues("heart_rate", "full")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.columnsAligned.WithLabelValues("heart_rate", "partial")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.columnsAligned.WithLabelValues("heart_rate", "empty")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.gridPointsFilled.WithLabelValues("heart_rate")), ShouldEqual, 1021)
			})
		})

		Convey("When recording outputs", func() {
			manager.RecordOutput("workbook", 20*time.Millisecond, nil)
			manager.RecordOutput("chart", time.Millisecond, errors.New("disk full"))
			manager.RecordEventFailure("Exp1")

			Convey("Then successes and failures are split", func() {
				So(testutil.ToFloat64(manager.outputsWritten.WithLabelValues("workbook")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.outputErrors.WithLabelValues("chart")), ShouldEqual, 1)
				So(testutil.ToFloat64(manager.eventFailures.WithLabelValues("Exp1")), ShouldEqual, 1)
			})
		})

		Convey("When recording the run", func() {
			done := time.Unix(1768626000, 0)
			manager.RecordRun(1500*time.Millisecond, done)

			Convey("Then the gauges are set", func() {
				So(testutil.ToFloat64(manager.runDuration), ShouldEqual, 1.5)
				So(testutil.ToFloat64(manager.lastRunUnix), ShouldEqual, 1768626000)
			})
		})
	})

	Convey("Given a disabled manager", t, func() {
		manager := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(prometheus.NewRegistry()))
		manager.RecordFile("core_temp", "loaded")
		manager.RecordColumn("core_temp", 1, 1)

		Convey("Then nothing is counted", func() {
			So(testutil.ToFloat64(manager.files.WithLabelValues("core_temp", "loaded")), ShouldEqual, 0)
			So(testutil.ToFloat64(manager.gridPointsFilled.WithLabelValues("core_temp")), ShouldEqual, 0)
		})
	})
}

func TestWriteTextfile(t *testing.T) {
	Convey("Given recorded metrics", t, func() {
		manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))
		manager.RecordFile("core_temp", "loaded")
		path := filepath.Join(t.TempDir(), "physalign.prom")

		Convey("When writing the textfile", func() {
			err := manager.WriteTextfile(path)

			Convey("Then the exposition contains the counters", func() {
				So(err, ShouldBeNil)
				raw, rerr := os.ReadFile(path)
				So(rerr, ShouldBeNil)
				So(string(raw), ShouldContainSubstring, `physalign_run_files_total{modality="core_temp",status="loaded"} 1`)
			})
		})

		Convey("When the directory does not exist", func() {
			err := manager.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
			So(errors.Is(err, ErrWriteFailed), ShouldBeTrue)
		})
	})

	Convey("Given a registerer that cannot be gathered", t, func() {
		manager := NewManager(WithPrometheusRegistry(prometheus.WrapRegistererWithPrefix("x_", prometheus.NewRegistry())))
		err := manager.WriteTextfile(filepath.Join(t.TempDir(), "x.prom"))
		So(errors.Is(err, ErrWriteFailed), ShouldBeTrue)
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then the helpers are safe to call concurrently", func() {
			So(func() {
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						RecordFile("heart_rate", "loaded")
						RecordReadings("heart_rate", 10, 1)
						RecordColumn("heart_rate", 5, 10)
						RecordOutput("chart", time.Millisecond, nil)
					}()
				}
				wg.Wait()
				RecordEventFailure("Exp2")
				RecordRun(time.Second, time.Now())
			}, ShouldNotPanic)
			So(Default(), ShouldNotBeNil)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
