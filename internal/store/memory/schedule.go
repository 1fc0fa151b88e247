package memory

import (
	"context"
	"sort"
	"time"

	"bloodbridge/internal/schedule"
	"bloodbridge/pkg/types"
)

func copySlot(s *types.WeeklySlot) *types.WeeklySlot {
	out := *s
	return &out
}

func copyRange(r *types.CustomRange) *types.CustomRange {
	out := *r
	if r.StartTime != nil {
		t := *r.StartTime
		out.StartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	if r.Reason != nil {
		reason := *r.Reason
		out.Reason = &reason
	}
	return &out
}

// Schedule returns the donor's schedule. A donor who never configured one
// gets an empty, disabled schedule.
func (s *Store) Schedule(_ context.Context, donorID string) (*types.AvailabilitySchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.donors[donorID]; !ok {
		return nil, types.NotFound(types.ErrDonorNotFound, donorID)
	}

	return s.scheduleLocked(donorID), nil
}

func (s *Store) scheduleLocked(donorID string) *types.AvailabilitySchedule {
	out := &types.AvailabilitySchedule{
		DonorID:      donorID,
		WeeklySlots:  []*types.WeeklySlot{},
		CustomRanges: []*types.CustomRange{},
	}

	if row, ok := s.schedules[donorID]; ok {
		out.Enabled = row.enabled
		out.UpdatedAt = row.updatedAt
	}

	for _, slot := range s.slots {
		if slot.DonorID == donorID {
			out.WeeklySlots = append(out.WeeklySlots, copySlot(slot))
		}
	}

	for _, r := range s.ranges {
		if r.DonorID == donorID {
			out.CustomRanges = append(out.CustomRanges, copyRange(r))
		}
	}

	sort.Slice(out.WeeklySlots, func(i, j int) bool {
		a, b := out.WeeklySlots[i], out.WeeklySlots[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		return a.StartTime < b.StartTime
	})

	sort.Slice(out.CustomRanges, func(i, j int) bool {
		return out.CustomRanges[i].StartDate.Before(out.CustomRanges[j].StartDate)
	})

	return out
}

func (s *Store) touchSchedule(donorID string, now time.Time) {
	row, ok := s.schedules[donorID]
	if !ok {
		row = &scheduleRow{}
		s.schedules[donorID] = row
	}
	row.updatedAt = now
}

// UpsertWeeklySlot re-checks overlap under the write lock so two concurrent
// writers cannot both insert overlapping slots.
func (s *Store) UpsertWeeklySlot(_ context.Context, slot *types.WeeklySlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.donors[slot.DonorID]; !ok {
		return types.NotFound(types.ErrDonorNotFound, slot.DonorID)
	}

	if existing, ok := s.slots[slot.ID]; ok && existing.DonorID != slot.DonorID {
		return types.NotFound(types.ErrSlotNotFound, slot.ID)
	}

	if err := schedule.CheckSlotOverlap(s.scheduleLocked(slot.DonorID).WeeklySlots, slot); err != nil {
		return err
	}

	stored := copySlot(slot)
	if existing, ok := s.slots[slot.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}

	s.slots[slot.ID] = stored
	s.touchSchedule(slot.DonorID, slot.UpdatedAt)
	return nil
}

func (s *Store) DeleteWeeklySlot(_ context.Context, donorID, slotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.slots[slotID]
	if !ok || existing.DonorID != donorID {
		return types.NotFound(types.ErrSlotNotFound, slotID)
	}

	delete(s.slots, slotID)
	return nil
}

func (s *Store) UpsertCustomRange(_ context.Context, r *types.CustomRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.donors[r.DonorID]; !ok {
		return types.NotFound(types.ErrDonorNotFound, r.DonorID)
	}

	stored := copyRange(r)
	if existing, ok := s.ranges[r.ID]; ok {
		if existing.DonorID != r.DonorID {
			return types.NotFound(types.ErrRangeNotFound, r.ID)
		}
		stored.CreatedAt = existing.CreatedAt
	}

	s.ranges[r.ID] = stored
	s.touchSchedule(r.DonorID, r.UpdatedAt)
	return nil
}

func (s *Store) DeleteCustomRange(_ context.Context, donorID, rangeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ranges[rangeID]
	if !ok || existing.DonorID != donorID {
		return types.NotFound(types.ErrRangeNotFound, rangeID)
	}

	delete(s.ranges, rangeID)
	return nil
}

func (s *Store) SetScheduleEnabled(_ context.Context, donorID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.donors[donorID]; !ok {
		return types.NotFound(types.ErrDonorNotFound, donorID)
	}

	s.touchSchedule(donorID, time.Now())
	s.schedules[donorID].enabled = enabled
	return nil
}
