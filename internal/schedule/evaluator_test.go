package schedule

import (
	"testing"
	"time"

	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slot(day time.Weekday, start, end string) *types.WeeklySlot {
	return &types.WeeklySlot{
		DonorID:   "dnr_1",
		DayOfWeek: day,
		StartTime: types.MustTimeOfDay(start),
		EndTime:   types.MustTimeOfDay(end),
		IsActive:  true,
	}
}

func date(s string) time.Time {
	t, err := time.Parse(types.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tod(s string) *types.TimeOfDay {
	t := types.MustTimeOfDay(s)
	return &t
}

// 2026-10-13 is a Tuesday.
var tuesdayNoon = time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC)

func TestIsAvailableDisabledScheduleAlwaysTrue(t *testing.T) {
	sched := &types.AvailabilitySchedule{Enabled: false}
	assert.True(t, IsAvailable(sched, time.UTC, tuesdayNoon))
	assert.True(t, IsAvailable(nil, time.UTC, tuesdayNoon))
}

func TestIsAvailableWeeklySlots(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled: true,
		WeeklySlots: []*types.WeeklySlot{
			slot(time.Tuesday, "09:00", "17:00"),
		},
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"inside", tuesdayNoon, true},
		{"at start", time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC), true},
		{"at end is exclusive", time.Date(2026, 10, 13, 17, 0, 0, 0, time.UTC), false},
		{"last minute", time.Date(2026, 10, 13, 16, 59, 59, 0, time.UTC), true},
		{"before", time.Date(2026, 10, 13, 8, 59, 0, 0, time.UTC), false},
		{"other day", time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAvailable(sched, time.UTC, tt.at))
		})
	}
}

func TestIsAvailableIgnoresInactiveSlots(t *testing.T) {
	inactive := slot(time.Tuesday, "09:00", "17:00")
	inactive.IsActive = false

	sched := &types.AvailabilitySchedule{Enabled: true, WeeklySlots: []*types.WeeklySlot{inactive}}
	assert.False(t, IsAvailable(sched, time.UTC, tuesdayNoon))
}

func TestIsAvailableUsesDonorTimezone(t *testing.T) {
	nairobi := time.FixedZone("EAT", 3*60*60)

	sched := &types.AvailabilitySchedule{
		Enabled:     true,
		WeeklySlots: []*types.WeeklySlot{slot(time.Tuesday, "09:00", "10:00")},
	}

	// 06:30 UTC is 09:30 in Nairobi (UTC+3).
	at := time.Date(2026, 10, 13, 6, 30, 0, 0, time.UTC)
	assert.True(t, IsAvailable(sched, nairobi, at))
	assert.False(t, IsAvailable(sched, time.UTC, at))
}

func TestUnavailableOverrideBeatsWeeklySlot(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled:     true,
		WeeklySlots: []*types.WeeklySlot{slot(time.Tuesday, "09:00", "17:00")},
		CustomRanges: []*types.CustomRange{
			{StartDate: date("2026-10-12"), EndDate: date("2026-10-14"), IsAvailable: false},
		},
	}

	assert.False(t, IsAvailable(sched, time.UTC, tuesdayNoon))
}

func TestUnavailableOverrideBeatsAvailableOverride(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled: true,
		CustomRanges: []*types.CustomRange{
			{StartDate: date("2026-10-13"), EndDate: date("2026-10-13"), IsAvailable: true},
			{StartDate: date("2026-10-10"), EndDate: date("2026-10-20"), StartTime: tod("11:00"), EndTime: tod("13:00"), IsAvailable: false},
		},
	}

	assert.False(t, IsAvailable(sched, time.UTC, tuesdayNoon))
	// outside the unavailable window only the available override applies
	assert.True(t, IsAvailable(sched, time.UTC, time.Date(2026, 10, 13, 14, 0, 0, 0, time.UTC)))
}

func TestAvailableOverrideOpensDayWithoutSlots(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled: true,
		CustomRanges: []*types.CustomRange{
			{StartDate: date("2026-10-13"), EndDate: date("2026-10-13"), StartTime: tod("18:00"), EndTime: tod("20:00"), IsAvailable: true},
		},
	}

	assert.True(t, IsAvailable(sched, time.UTC, time.Date(2026, 10, 13, 19, 0, 0, 0, time.UTC)))
	assert.False(t, IsAvailable(sched, time.UTC, tuesdayNoon))
}

func TestTimeBoundedOverrideFallsBackToWeeklyOutsideWindow(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled:     true,
		WeeklySlots: []*types.WeeklySlot{slot(time.Tuesday, "09:00", "17:00")},
		CustomRanges: []*types.CustomRange{
			{StartDate: date("2026-10-13"), EndDate: date("2026-10-13"), StartTime: tod("09:00"), EndTime: tod("10:00"), IsAvailable: false},
		},
	}

	assert.False(t, IsAvailable(sched, time.UTC, time.Date(2026, 10, 13, 9, 30, 0, 0, time.UTC)))
	assert.True(t, IsAvailable(sched, time.UTC, tuesdayNoon))
}

func TestMultiDayRangeAppliesSameWindowEveryDay(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled: true,
		CustomRanges: []*types.CustomRange{
			{StartDate: date("2026-10-12"), EndDate: date("2026-10-15"), StartTime: tod("08:00"), EndTime: tod("10:00"), IsAvailable: true},
		},
	}

	for day := 12; day <= 15; day++ {
		assert.True(t, IsAvailable(sched, time.UTC, time.Date(2026, 10, day, 9, 0, 0, 0, time.UTC)), "day %d", day)
		assert.False(t, IsAvailable(sched, time.UTC, time.Date(2026, 10, day, 11, 0, 0, 0, time.UTC)), "day %d", day)
	}
	assert.False(t, IsAvailable(sched, time.UTC, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)))
}

func TestNextAvailableWindow(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled: true,
		WeeklySlots: []*types.WeeklySlot{
			slot(time.Wednesday, "09:00", "11:30"),
		},
	}

	e := NewEvaluator(14 * 24 * time.Hour)
	window := e.NextAvailableWindow(sched, time.UTC, tuesdayNoon)
	require.NotNil(t, window)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), window.Start)
	assert.Equal(t, time.Date(2026, 10, 14, 11, 30, 0, 0, time.UTC), window.End)
}

func TestNextAvailableWindowStartsNowWhenAvailable(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled:     true,
		WeeklySlots: []*types.WeeklySlot{slot(time.Tuesday, "09:00", "17:00")},
	}

	at := tuesdayNoon.Add(30 * time.Second)
	window := NewEvaluator(0).NextAvailableWindow(sched, time.UTC, at)
	require.NotNil(t, window)
	assert.Equal(t, at, window.Start)
	assert.Equal(t, time.Date(2026, 10, 13, 17, 0, 0, 0, time.UTC), window.End)
}

func TestNextAvailableWindowSkipsVacation(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled:     true,
		WeeklySlots: []*types.WeeklySlot{slot(time.Tuesday, "09:00", "17:00")},
		CustomRanges: []*types.CustomRange{
			{StartDate: date("2026-10-13"), EndDate: date("2026-10-19"), IsAvailable: false, Reason: utils.StringPtr("vacation")},
		},
	}

	window := NewEvaluator(30*24*time.Hour).NextAvailableWindow(sched, time.UTC, tuesdayNoon)
	require.NotNil(t, window)
	assert.Equal(t, time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC), window.Start)
}

func TestNextAvailableWindowNoneWithinBound(t *testing.T) {
	sched := &types.AvailabilitySchedule{Enabled: true}
	assert.Nil(t, NewEvaluator(48*time.Hour).NextAvailableWindow(sched, time.UTC, tuesdayNoon))
}

func TestNextAvailableWindowTruncatedAtBound(t *testing.T) {
	sched := &types.AvailabilitySchedule{
		Enabled: true,
		CustomRanges: []*types.CustomRange{
			{StartDate: date("2026-10-01"), EndDate: date("2026-12-31"), IsAvailable: true},
		},
	}

	window := NewEvaluator(time.Hour).NextAvailableWindow(sched, time.UTC, tuesdayNoon)
	require.NotNil(t, window)
	assert.Equal(t, tuesdayNoon, window.Start)
	assert.Equal(t, tuesdayNoon.Add(time.Hour), window.End)
}

func TestNextAvailableWindowDisabledSchedule(t *testing.T) {
	window := NewEvaluator(time.Hour).NextAvailableWindow(&types.AvailabilitySchedule{}, time.UTC, tuesdayNoon)
	require.NotNil(t, window)
	assert.Equal(t, time.Hour, window.Duration())
}
