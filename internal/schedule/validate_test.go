package schedule

import (
	"testing"
	"time"

	"bloodbridge/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWeeklySlot(t *testing.T) {
	tests := []struct {
		name    string
		slot    *types.WeeklySlot
		wantErr string
	}{
		{"valid", slot(time.Tuesday, "09:00", "17:00"), ""},
		{"until midnight", slot(time.Sunday, "22:00", "24:00"), ""},
		{"end equals start", slot(time.Tuesday, "09:00", "09:00"), "endTime"},
		{"end before start", slot(time.Tuesday, "17:00", "09:00"), "endTime"},
		{"bad day", &types.WeeklySlot{DonorID: "dnr_1", DayOfWeek: 7, StartTime: 60, EndTime: 120}, "dayOfWeek"},
		{"missing donor", &types.WeeklySlot{DayOfWeek: time.Monday, StartTime: 60, EndTime: 120}, "donorId"},
		{"start past midnight", &types.WeeklySlot{DonorID: "dnr_1", StartTime: 1500, EndTime: 1600}, "startTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWeeklySlot(tt.slot)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			var verr *types.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Field)
		})
	}
}

func TestCheckSlotOverlap(t *testing.T) {
	existing := slot(time.Tuesday, "09:00", "17:00")
	existing.ID = "slt_a"

	t.Run("overlapping same day", func(t *testing.T) {
		err := CheckSlotOverlap([]*types.WeeklySlot{existing}, slot(time.Tuesday, "16:00", "20:00"))

		var pv *types.PolicyViolation
		require.ErrorAs(t, err, &pv)
		assert.Equal(t, RuleSlotOverlap, pv.Rule)
		assert.Contains(t, pv.Message, "09:00-17:00")
	})

	t.Run("adjacent is allowed", func(t *testing.T) {
		assert.NoError(t, CheckSlotOverlap([]*types.WeeklySlot{existing}, slot(time.Tuesday, "17:00", "20:00")))
	})

	t.Run("other day", func(t *testing.T) {
		assert.NoError(t, CheckSlotOverlap([]*types.WeeklySlot{existing}, slot(time.Wednesday, "10:00", "12:00")))
	})

	t.Run("inactive slots still count", func(t *testing.T) {
		inactive := slot(time.Friday, "08:00", "10:00")
		inactive.ID = "slt_b"
		inactive.IsActive = false
		assert.Error(t, CheckSlotOverlap([]*types.WeeklySlot{inactive}, slot(time.Friday, "09:00", "11:00")))
	})

	t.Run("update of the same slot", func(t *testing.T) {
		moved := slot(time.Tuesday, "10:00", "18:00")
		moved.ID = existing.ID
		assert.NoError(t, CheckSlotOverlap([]*types.WeeklySlot{existing}, moved))
	})
}

func TestValidateCustomRange(t *testing.T) {
	nine, five := types.MustTimeOfDay("09:00"), types.MustTimeOfDay("17:00")

	tests := []struct {
		name    string
		r       *types.CustomRange
		wantErr string
	}{
		{"all day single date", &types.CustomRange{DonorID: "dnr_1", StartDate: date("2026-10-13"), EndDate: date("2026-10-13")}, ""},
		{"time bounded", &types.CustomRange{DonorID: "dnr_1", StartDate: date("2026-10-13"), EndDate: date("2026-10-20"), StartTime: &nine, EndTime: &five}, ""},
		{"inverted dates", &types.CustomRange{DonorID: "dnr_1", StartDate: date("2026-10-13"), EndDate: date("2026-10-12")}, "endDate"},
		{"half specified", &types.CustomRange{DonorID: "dnr_1", StartDate: date("2026-10-13"), EndDate: date("2026-10-13"), StartTime: &nine}, "startTime"},
		{"inverted times", &types.CustomRange{DonorID: "dnr_1", StartDate: date("2026-10-13"), EndDate: date("2026-10-13"), StartTime: &five, EndTime: &nine}, "endTime"},
		{"missing start", &types.CustomRange{DonorID: "dnr_1", EndDate: date("2026-10-13")}, "startDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCustomRange(tt.r)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			var verr *types.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Field)
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	in := time.Date(2026, 10, 13, 23, 30, 0, 0, time.FixedZone("X", -5*60*60))
	assert.Equal(t, time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC), NormalizeDate(in))
}
