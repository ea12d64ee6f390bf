package model_test

import (
	"errors"
	"testing"

	"github.com/okian/trustledger/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseInteractionType(t *testing.T) {
	Convey("Given interaction type strings", t, func() {
		Convey("When the type is supported", func() {
			for _, s := range []string{"match", "chat", "helpful", "share", " Chat "} {
				it, err := model.ParseInteractionType(s)
				So(err, ShouldBeNil)
				So(it.Valid(), ShouldBeTrue)
			}
		})

		Convey("When the type is unknown", func() {
			_, err := model.ParseInteractionType("like")

			Convey("Then it should return ErrUnknownInteractionType", func() {
				So(errors.Is(err, model.ErrUnknownInteractionType), ShouldBeTrue)
			})
		})
	})
}

func TestReputationRecord_QualityRate(t *testing.T) {
	Convey("Given reputation records", t, func() {
		Convey("When there are no interactions", func() {
			So(model.ReputationRecord{}.QualityRate(), ShouldEqual, 0)
		})

		Convey("When all interactions are positive", func() {
			r := model.ReputationRecord{TotalInteractions: 4, PositiveInteractions: 4}
			So(r.QualityRate(), ShouldEqual, 100)
		})

		Convey("When the rate needs rounding", func() {
			So(model.ReputationRecord{TotalInteractions: 3, PositiveInteractions: 1}.QualityRate(), ShouldEqual, 33)
			So(model.ReputationRecord{TotalInteractions: 3, PositiveInteractions: 2}.QualityRate(), ShouldEqual, 67)
			So(model.ReputationRecord{TotalInteractions: 8, PositiveInteractions: 1}.QualityRate(), ShouldEqual, 13) // 12.5 rounds up
		})
	})
}

func TestClampBaseScore(t *testing.T) {
	Convey("Given scores outside the domain", t, func() {
		So(model.ClampBaseScore(-3), ShouldEqual, 0)
		So(model.ClampBaseScore(1004), ShouldEqual, 1000)
		So(model.ClampBaseScore(653), ShouldEqual, 653)
	})
}

func TestTaskState_String(t *testing.T) {
	Convey("Given task states", t, func() {
		So(model.TaskPending.String(), ShouldEqual, "processing")
		So(model.TaskCommitted.String(), ShouldEqual, "completed")
		So(model.TaskDropped.String(), ShouldEqual, "dropped")
		So(model.TaskState(42).String(), ShouldEqual, "unknown")
	})
}
