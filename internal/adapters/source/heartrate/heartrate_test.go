package heartrate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/physalign/internal/adapters/source/heartrate"
	"github.com/okian/physalign/internal/domain/align"
	"github.com/okian/physalign/internal/domain/model"
	"github.com/okian/physalign/internal/domain/outcome"
	. "github.com/smartystreets/goconvey/convey"
)

const subjectFile = "\ufeffName,Sport,Date,Start time,Duration\n" +
	"Yamaguchi,Other,17-01-2026,14:03:00,00:20:00\n" +
	"Sample rate,Time,HR (bpm),Speed (km/h)\n" +
	"1,00:00:00,72,\n" +
	"2,00:00:01,74,\n" +
	"3,00:00:02,,\n" +
	"4,garbage,80,\n" +
	"5,00:05:12,95,\n"

func clock(s string) time.Time {
	t, err := model.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return t
}

func write(path, content string) {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}
}

func TestParseSubject(t *testing.T) {
	Convey("Given a per-subject device export", t, func() {
		series, dropped, err := heartrate.ParseSubject("山口", strings.NewReader(subjectFile))

		Convey("Then readings are offset from the recording start", func() {
			So(err, ShouldBeNil)
			So(series.Subject, ShouldEqual, "山口")
			So(series.Modality, ShouldEqual, model.HeartRate)
			So(len(series.Readings), ShouldEqual, 3)
			So(series.Readings[0], ShouldResemble, model.Reading{Time: clock("14:03:00"), Value: 72})
			So(series.Readings[1].Time, ShouldEqual, clock("14:03:01"))
			So(series.Readings[2], ShouldResemble, model.Reading{Time: clock("14:08:12"), Value: 95})
		})

		Convey("Then rows with blank or unparsable cells are counted as dropped", func() {
			So(dropped, ShouldEqual, 2)
		})
	})

	Convey("Given readings less than a second apart", t, func() {
		data := "Date,Start time\n17-01-2026,14:08:00\nTime,HR (bpm)\n" +
			"00:00:05.600,80\n" +
			"00:00:05.900,90\n"
		series, dropped, err := heartrate.ParseSubject("x", strings.NewReader(data))
		So(err, ShouldBeNil)
		So(dropped, ShouldEqual, 0)

		Convey("Then each keeps its fractional second", func() {
			So(series.Readings[0].Time, ShouldEqual, clock("14:08:05").Add(600*time.Millisecond))
			So(series.Readings[1].Time, ShouldEqual, clock("14:08:05").Add(900*time.Millisecond))
		})

		Convey("Then both survive deduplication and the closer one fills the grid", func() {
			samples := align.Dedupe(align.Offsets(series.Readings, clock("14:08:00")))
			So(len(samples), ShouldEqual, 2)
			got := align.Nearest(samples, []int{6}, 0.5)
			So(got[0], ShouldEqual, 90)
		})
	})

	Convey("Given a date without zero padding", t, func() {
		data := "Date,Start time\n7-1-2026,14:00:00\nTime,HR (bpm)\n00:00:01,70\n"
		series, _, err := heartrate.ParseSubject("x", strings.NewReader(data))

		Convey("Then the metadata is still accepted", func() {
			So(err, ShouldBeNil)
			So(series.Readings[0].Time, ShouldEqual, clock("14:00:01"))
		})
	})

	Convey("Given a file with only metadata", t, func() {
		_, _, err := heartrate.ParseSubject("x", strings.NewReader("Date,Start time\n17-01-2026,14:00:00\nTime,HR (bpm)\n"))
		So(errors.Is(err, heartrate.ErrTooShort), ShouldBeTrue)
	})

	Convey("Given a file with an unreadable start time", t, func() {
		bad := "Date,Start time\n2026/01/17,2pm\nTime,HR (bpm)\n00:00:00,70\n"
		_, _, err := heartrate.ParseSubject("x", strings.NewReader(bad))
		So(errors.Is(err, heartrate.ErrBadMetadata), ShouldBeTrue)
	})

	Convey("Given a file without the HR column", t, func() {
		bad := "Date,Start time\n17-01-2026,14:00:00\nTime,Pulse\n00:00:00,70\n"
		_, _, err := heartrate.ParseSubject("x", strings.NewReader(bad))
		So(errors.Is(err, heartrate.ErrNoColumn), ShouldBeTrue)
	})

	Convey("Given a recording that runs past midnight", t, func() {
		late := "Date,Start time\n17-01-2026,23:59:59\nTime,HR (bpm)\n00:00:00,60\n00:00:02,61\n"
		series, _, err := heartrate.ParseSubject("x", strings.NewReader(late))
		So(err, ShouldBeNil)

		Convey("Then only the time of day is kept", func() {
			So(series.Readings[1].Time, ShouldEqual, clock("00:00:01"))
		})
	})
}

func TestParseCombined(t *testing.T) {
	Convey("Given a combined export with alias columns", t, func() {
		data := "Time,Yamaguchi,Kan,Guest\n" +
			"14:08:10,88,90,70\n" +
			"14:08:11,,91,\n" +
			"nope,1,2,3\n"
		aliases := map[string]string{"Yamaguchi": "山口", "Kan": "姜"}

		series, dropped, err := heartrate.ParseCombined(strings.NewReader(data), aliases)

		Convey("Then one series per column is returned in header order", func() {
			So(err, ShouldBeNil)
			So(len(series), ShouldEqual, 3)
			So(series[0].Subject, ShouldEqual, "山口")
			So(series[1].Subject, ShouldEqual, "姜")
			So(series[2].Subject, ShouldEqual, "Guest")
		})

		Convey("Then blank cells are omitted per column", func() {
			So(len(series[0].Readings), ShouldEqual, 1)
			So(len(series[1].Readings), ShouldEqual, 2)
			So(series[1].Readings[1], ShouldResemble, model.Reading{Time: clock("14:08:11"), Value: 91})
		})

		Convey("Then rows with a bad time are dropped", func() {
			So(dropped, ShouldEqual, 1)
		})
	})

	Convey("Given a combined export without a Time column", t, func() {
		_, _, err := heartrate.ParseCombined(strings.NewReader("Clock,A\n14:00:00,1\n"), nil)
		So(errors.Is(err, heartrate.ErrNoColumn), ShouldBeTrue)
	})
}

func TestLoader(t *testing.T) {
	Convey("Given a data directory", t, func() {
		dir := t.TempDir()
		ctx := context.Background()
		write(filepath.Join(dir, "心拍数_山口.CSV"), subjectFile)
		write(filepath.Join(dir, "心拍数_姜.CSV"), "Date,Start time\n")
		write(filepath.Join(dir, "Jisedai2026_HR.csv"), "Time,Kan\n14:08:10,90\n")

		l := heartrate.New(dir, heartrate.WithAliases(map[string]string{"Kan": "姜"}))

		Convey("When the subject file exists", func() {
			res := l.LoadSubject(ctx, "山口")
			So(res.OK(), ShouldBeTrue)
			So(res.Source, ShouldEqual, "心拍数_山口.CSV")
			So(len(res.Value.Readings), ShouldEqual, 3)
			So(res.Dropped, ShouldEqual, 2)
		})

		Convey("When the subject file is missing", func() {
			res := l.LoadSubject(ctx, "北田")
			So(res.Status, ShouldEqual, outcome.Missing)
			So(res.Value.Empty(), ShouldBeTrue)
		})

		Convey("When the subject file is truncated", func() {
			res := l.LoadSubject(ctx, "姜")
			So(res.Status, ShouldEqual, outcome.Skipped)
			So(errors.Is(res.Reason, heartrate.ErrTooShort), ShouldBeTrue)
		})

		Convey("When loading several subjects", func() {
			results, err := l.LoadSubjects(ctx, []string{"山口", "北田"})
			So(err, ShouldBeNil)
			So(len(results), ShouldEqual, 2)
			So(results[1].Status, ShouldEqual, outcome.Missing)
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := l.LoadSubjects(cctx, []string{"山口"})
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Convey("When loading the combined export", func() {
			res := l.LoadCombined(ctx)
			So(res.OK(), ShouldBeTrue)
			So(len(res.Value), ShouldEqual, 1)
			So(res.Value[0].Subject, ShouldEqual, "姜")
		})

		Convey("When the combined export is named differently", func() {
			res := heartrate.New(dir, heartrate.WithCombinedFile("other.csv")).LoadCombined(ctx)
			So(res.Status, ShouldEqual, outcome.Missing)
		})
	})
}
