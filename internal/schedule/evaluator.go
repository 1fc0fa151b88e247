// Package schedule answers whether a donor is reachable at an instant
// according to their weekly slots and custom date-range overrides.
package schedule

import (
	"time"

	"bloodbridge/pkg/types"
)

const (
	DefaultLookahead = 90 * 24 * time.Hour
	DefaultStep      = time.Minute
)

// Evaluator walks schedules forward in fixed steps. The zero value uses the
// defaults.
type Evaluator struct {
	Lookahead time.Duration
	Step      time.Duration
}

func NewEvaluator(lookahead time.Duration) *Evaluator {
	return &Evaluator{Lookahead: lookahead, Step: DefaultStep}
}

func (e *Evaluator) lookahead() time.Duration {
	if e == nil || e.Lookahead <= 0 {
		return DefaultLookahead
	}
	return e.Lookahead
}

func (e *Evaluator) step() time.Duration {
	if e == nil || e.Step <= 0 {
		return DefaultStep
	}
	return e.Step
}

// IsAvailable reports whether the schedule marks the donor reachable at
// instant. A nil or disabled schedule always answers true; the donor's
// manual flag governs in that case.
func IsAvailable(schedule *types.AvailabilitySchedule, loc *time.Location, instant time.Time) bool {
	if schedule == nil || !schedule.Enabled {
		return true
	}

	if loc == nil {
		loc = time.UTC
	}

	local := instant.In(loc)
	day := dateKey(local)
	minute := types.TimeOfDayOf(local)

	if available, matched := evaluateCustomRanges(schedule.CustomRanges, day, minute); matched {
		return available
	}

	weekday := local.Weekday()
	for _, slot := range schedule.WeeklySlots {
		if !slot.IsActive || slot.DayOfWeek != weekday {
			continue
		}
		if slot.Contains(minute) {
			return true
		}
	}

	return false
}

// evaluateCustomRanges applies every range covering the local date and
// minute. An unavailable override beats any available one.
func evaluateCustomRanges(ranges []*types.CustomRange, day int, minute types.TimeOfDay) (available bool, matched bool) {
	for _, r := range ranges {
		if day < dateKey(r.StartDate) || day > dateKey(r.EndDate) {
			continue
		}

		if !r.AllDay() && (minute < *r.StartTime || minute >= *r.EndTime) {
			continue
		}

		if !r.IsAvailable {
			return false, true
		}
		matched = true
	}

	return matched, matched
}

// NextAvailableWindow returns the first contiguous available interval that
// starts at or after after, or nil when none starts inside the look-ahead.
// A window still open at the look-ahead bound is cut off at the bound.
func (e *Evaluator) NextAvailableWindow(schedule *types.AvailabilitySchedule, loc *time.Location, after time.Time) *types.TimeRange {
	bound := after.Add(e.lookahead())

	if schedule == nil || !schedule.Enabled {
		return &types.TimeRange{Start: after, End: bound}
	}

	step := e.step()
	cursor := after

	for !IsAvailable(schedule, loc, cursor) {
		cursor = nextStep(cursor, step)
		if !cursor.Before(bound) {
			return nil
		}
	}

	window := &types.TimeRange{Start: cursor}
	for {
		cursor = nextStep(cursor, step)
		if !cursor.Before(bound) {
			window.End = bound
			return window
		}
		if !IsAvailable(schedule, loc, cursor) {
			window.End = cursor
			return window
		}
	}
}

// nextStep advances to the next step boundary so that an unaligned start
// (e.g. 08:59:30) still lands on 09:00.
func nextStep(t time.Time, step time.Duration) time.Time {
	next := t.Truncate(step).Add(step)
	if !next.After(t) {
		next = next.Add(step)
	}
	return next
}

// dateKey turns the calendar date of t (in t's location) into a sortable
// yyyymmdd integer.
func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
