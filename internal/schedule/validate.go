package schedule

import (
	"time"

	"bloodbridge/pkg/types"
)

const RuleSlotOverlap = "weekly-slot-overlap"

// ValidateWeeklySlot rejects malformed slots. Slots may not cross midnight.
func ValidateWeeklySlot(slot *types.WeeklySlot) error {
	if slot.DonorID == "" {
		return types.NewValidationError("donorId", "is required")
	}

	if slot.DayOfWeek < time.Sunday || slot.DayOfWeek > time.Saturday {
		return types.NewValidationError("dayOfWeek", "must be between 0 (Sunday) and 6 (Saturday), got %d", slot.DayOfWeek)
	}

	if err := validateTimeOfDay("startTime", slot.StartTime); err != nil {
		return err
	}

	if err := validateTimeOfDay("endTime", slot.EndTime); err != nil {
		return err
	}

	if slot.EndTime <= slot.StartTime {
		return types.NewValidationError("endTime", "%s must be after startTime %s", slot.EndTime, slot.StartTime)
	}

	return nil
}

// CheckSlotOverlap returns a PolicyViolation when slot overlaps any other
// slot of the same donor on the same day. The slot itself (same id) is
// skipped so updates do not collide with their previous version.
func CheckSlotOverlap(existing []*types.WeeklySlot, slot *types.WeeklySlot) error {
	for _, other := range existing {
		if other.ID == slot.ID && slot.ID != "" {
			continue
		}
		if slot.Overlaps(other) {
			return &types.PolicyViolation{
				Rule: RuleSlotOverlap,
				Message: "slot " + slot.StartTime.String() + "-" + slot.EndTime.String() +
					" on " + slot.DayOfWeek.String() +
					" overlaps existing slot " + other.StartTime.String() + "-" + other.EndTime.String(),
			}
		}
	}
	return nil
}

// ValidateCustomRange rejects inverted dates and half-specified or
// inverted time windows.
func ValidateCustomRange(r *types.CustomRange) error {
	if r.DonorID == "" {
		return types.NewValidationError("donorId", "is required")
	}

	if r.StartDate.IsZero() {
		return types.NewValidationError("startDate", "is required")
	}

	if r.EndDate.IsZero() {
		return types.NewValidationError("endDate", "is required")
	}

	if dateKey(r.EndDate) < dateKey(r.StartDate) {
		return types.NewValidationError("endDate", "%s is before startDate %s",
			r.EndDate.Format(types.DateLayout), r.StartDate.Format(types.DateLayout))
	}

	if (r.StartTime == nil) != (r.EndTime == nil) {
		return types.NewValidationError("startTime", "startTime and endTime must be given together")
	}

	if r.StartTime != nil {
		if err := validateTimeOfDay("startTime", *r.StartTime); err != nil {
			return err
		}
		if err := validateTimeOfDay("endTime", *r.EndTime); err != nil {
			return err
		}
		if *r.EndTime <= *r.StartTime {
			return types.NewValidationError("endTime", "%s must be after startTime %s", *r.EndTime, *r.StartTime)
		}
	}

	return nil
}

func validateTimeOfDay(field string, t types.TimeOfDay) error {
	if t < 0 || t > types.MinutesPerDay {
		return types.NewValidationError(field, "must be between 00:00 and 24:00")
	}
	return nil
}

// NormalizeDate strips the clock part of a calendar date, keeping the date
// as written in its own location.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
