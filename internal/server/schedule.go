package server

import (
	"net/http"
	"time"

	"bloodbridge/pkg/types"

	"github.com/alexedwards/flow"
)

type weeklySlotBody struct {
	DayOfWeek *int            `json:"dayOfWeek"`
	StartTime types.TimeOfDay `json:"startTime"`
	EndTime   types.TimeOfDay `json:"endTime"`
	IsActive  *bool           `json:"isActive"`
}

func (b *weeklySlotBody) slot(donorID, slotID string) (*types.WeeklySlot, error) {
	if b.DayOfWeek == nil {
		return nil, types.NewValidationError("dayOfWeek", "is required")
	}

	active := true
	if b.IsActive != nil {
		active = *b.IsActive
	}

	return &types.WeeklySlot{
		ID:        slotID,
		DonorID:   donorID,
		DayOfWeek: time.Weekday(*b.DayOfWeek),
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		IsActive:  active,
	}, nil
}

type customRangeBody struct {
	StartDate   string           `json:"startDate"`
	EndDate     string           `json:"endDate"`
	StartTime   *types.TimeOfDay `json:"startTime"`
	EndTime     *types.TimeOfDay `json:"endTime"`
	IsAvailable bool             `json:"isAvailable"`
	Reason      *string          `json:"reason"`
}

func (b *customRangeBody) customRange(donorID, rangeID string) (*types.CustomRange, error) {
	start, err := parseDate("startDate", b.StartDate)
	if err != nil {
		return nil, err
	}

	end, err := parseDate("endDate", b.EndDate)
	if err != nil {
		return nil, err
	}

	return &types.CustomRange{
		ID:          rangeID,
		DonorID:     donorID,
		StartDate:   start,
		EndDate:     end,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		IsAvailable: b.IsAvailable,
		Reason:      b.Reason,
	}, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, types.NewValidationError(field, "is required")
	}

	t, err := time.Parse(types.DateLayout, value)
	if err != nil {
		return time.Time{}, types.NewValidationError(field, "expected YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

func (s *Service) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.Schedule(r.Context(), flow.Param(r.Context(), "donorID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, sched)
}

func (s *Service) handlePutScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	donorID := flow.Param(ctx, "donorID")

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.schedules.SetEnabled(ctx, donorID, body.Enabled); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.respondSchedule(w, r, donorID, http.StatusOK)
}

func (s *Service) handlePostWeeklySlot(w http.ResponseWriter, r *http.Request) {
	s.saveWeeklySlot(w, r, nil)
}

func (s *Service) handlePutWeeklySlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slotID := flow.Param(ctx, "slotID")

	sched, err := s.schedules.Schedule(ctx, flow.Param(ctx, "donorID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var existing *types.WeeklySlot
	for _, item := range sched.WeeklySlots {
		if item.ID == slotID {
			existing = item
			break
		}
	}
	if existing == nil {
		s.writeError(w, r, types.NotFound(types.ErrSlotNotFound, slotID))
		return
	}

	s.saveWeeklySlot(w, r, existing)
}

// saveWeeklySlot creates a slot when existing is nil and replaces existing
// otherwise.
func (s *Service) saveWeeklySlot(w http.ResponseWriter, r *http.Request, existing *types.WeeklySlot) {
	ctx := r.Context()
	donorID := flow.Param(ctx, "donorID")

	var body weeklySlotBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	var slotID string
	if existing != nil {
		slotID = existing.ID
	}

	slot, err := body.slot(donorID, slotID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if existing != nil {
		slot.CreatedAt = existing.CreatedAt
	}

	if err := s.schedules.UpsertWeeklySlot(ctx, slot); err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, slot)
}

func (s *Service) handleDeleteWeeklySlot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := s.schedules.DeleteWeeklySlot(ctx, flow.Param(ctx, "donorID"), flow.Param(ctx, "slotID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePostCustomRange(w http.ResponseWriter, r *http.Request) {
	s.saveCustomRange(w, r, nil)
}

func (s *Service) handlePutCustomRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rangeID := flow.Param(ctx, "rangeID")

	sched, err := s.schedules.Schedule(ctx, flow.Param(ctx, "donorID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var existing *types.CustomRange
	for _, item := range sched.CustomRanges {
		if item.ID == rangeID {
			existing = item
			break
		}
	}
	if existing == nil {
		s.writeError(w, r, types.NotFound(types.ErrRangeNotFound, rangeID))
		return
	}

	s.saveCustomRange(w, r, existing)
}

func (s *Service) saveCustomRange(w http.ResponseWriter, r *http.Request, existing *types.CustomRange) {
	ctx := r.Context()
	donorID := flow.Param(ctx, "donorID")

	var body customRangeBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}

	var rangeID string
	if existing != nil {
		rangeID = existing.ID
	}

	cr, err := body.customRange(donorID, rangeID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if existing != nil {
		cr.CreatedAt = existing.CreatedAt
	}

	if err := s.schedules.UpsertCustomRange(ctx, cr); err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, cr)
}

func (s *Service) handleDeleteCustomRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := s.schedules.DeleteCustomRange(ctx, flow.Param(ctx, "donorID"), flow.Param(ctx, "rangeID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) respondSchedule(w http.ResponseWriter, r *http.Request, donorID string, status int) {
	sched, err := s.schedules.Schedule(r.Context(), donorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, status, sched)
}
