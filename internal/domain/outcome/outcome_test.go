package outcome_test

import (
	"errors"
	"testing"

	"github.com/okian/physalign/internal/domain/outcome"
	. "github.com/smartystreets/goconvey/convey"
)

func TestResult(t *testing.T) {
	Convey("Given load results", t, func() {
		Convey("When a source loads", func() {
			r := outcome.Ok("a.csv", []int{1, 2}, 3)

			Convey("Then it is OK and keeps its value", func() {
				So(r.OK(), ShouldBeTrue)
				So(r.Value, ShouldResemble, []int{1, 2})
				So(r.Dropped, ShouldEqual, 3)
				So(r.String(), ShouldEqual, "a.csv: loaded")
			})
		})

		Convey("When a source is absent", func() {
			r := outcome.NotFound[[]int]("b.csv")

			Convey("Then it is missing without a reason", func() {
				So(r.OK(), ShouldBeFalse)
				So(r.Status, ShouldEqual, outcome.Missing)
				So(r.Reason, ShouldBeNil)
				So(r.Value, ShouldBeNil)
			})
		})

		Convey("When a source is unusable", func() {
			reason := errors.New("no Date field")
			r := outcome.Skip[[]int]("c.csv", reason)

			Convey("Then it carries the reason", func() {
				So(r.Status, ShouldEqual, outcome.Skipped)
				So(r.Reason, ShouldEqual, reason)
				So(r.String(), ShouldEqual, "c.csv: skipped (no Date field)")
			})
		})

		Convey("Then statuses render as words", func() {
			So(outcome.Loaded.String(), ShouldEqual, "loaded")
			So(outcome.Missing.String(), ShouldEqual, "missing")
			So(outcome.Skipped.String(), ShouldEqual, "skipped")
			So(outcome.Status(9).String(), ShouldEqual, "status(9)")
		})
	})
}
