package schedule

import (
	"context"
	"fmt"
	"time"

	"bloodbridge/internal/clock"
	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	"github.com/sirupsen/logrus"
)

// Store persists schedules. UpsertWeeklySlot must re-check overlap inside
// its write transaction and return a *types.PolicyViolation on conflict.
type Store interface {
	Schedule(ctx context.Context, donorID string) (*types.AvailabilitySchedule, error)
	UpsertWeeklySlot(ctx context.Context, slot *types.WeeklySlot) error
	DeleteWeeklySlot(ctx context.Context, donorID, slotID string) error
	UpsertCustomRange(ctx context.Context, r *types.CustomRange) error
	DeleteCustomRange(ctx context.Context, donorID, rangeID string) error
	SetScheduleEnabled(ctx context.Context, donorID string, enabled bool) error
}

type DonorSource interface {
	Donor(ctx context.Context, donorID string) (*types.DonorProfile, error)
}

type Service struct {
	logger    logrus.FieldLogger
	store     Store
	donors    DonorSource
	evaluator *Evaluator
	clock     clock.Clock
}

func NewService(logger logrus.FieldLogger, store Store, donors DonorSource, evaluator *Evaluator, clk clock.Clock) *Service {
	return &Service{
		logger:    logger,
		store:     store,
		donors:    donors,
		evaluator: evaluator,
		clock:     clk,
	}
}

func (s *Service) Schedule(ctx context.Context, donorID string) (*types.AvailabilitySchedule, error) {
	return s.store.Schedule(ctx, donorID)
}

// UpsertWeeklySlot validates the slot, checks it against the donor's
// current slots and writes it. A new slot receives an id.
func (s *Service) UpsertWeeklySlot(ctx context.Context, slot *types.WeeklySlot) error {
	if err := ValidateWeeklySlot(slot); err != nil {
		return err
	}

	current, err := s.store.Schedule(ctx, slot.DonorID)
	if err != nil {
		return err
	}

	if err := CheckSlotOverlap(current.WeeklySlots, slot); err != nil {
		return err
	}

	now := s.clock.Now()
	if slot.ID == "" {
		slot.ID = utils.PrefixedID(utils.PrefixSlot)
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	if err := s.store.UpsertWeeklySlot(ctx, slot); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"donor_id": slot.DonorID,
		"slot_id":  slot.ID,
		"day":      slot.DayOfWeek.String(),
	}).Debug("weekly slot saved")

	return nil
}

func (s *Service) DeleteWeeklySlot(ctx context.Context, donorID, slotID string) error {
	return s.store.DeleteWeeklySlot(ctx, donorID, slotID)
}

func (s *Service) UpsertCustomRange(ctx context.Context, r *types.CustomRange) error {
	r.StartDate = NormalizeDate(r.StartDate)
	r.EndDate = NormalizeDate(r.EndDate)

	if err := ValidateCustomRange(r); err != nil {
		return err
	}

	now := s.clock.Now()
	if r.ID == "" {
		r.ID = utils.PrefixedID(utils.PrefixRange)
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	return s.store.UpsertCustomRange(ctx, r)
}

func (s *Service) DeleteCustomRange(ctx context.Context, donorID, rangeID string) error {
	return s.store.DeleteCustomRange(ctx, donorID, rangeID)
}

func (s *Service) SetEnabled(ctx context.Context, donorID string, enabled bool) error {
	if err := s.store.SetScheduleEnabled(ctx, donorID, enabled); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"donor_id": donorID,
		"enabled":  enabled,
	}).Info("schedule toggled")

	return nil
}

// Availability is the answer for one donor at one instant.
type Availability struct {
	DonorID           string           `json:"donorId"`
	At                time.Time        `json:"at"`
	ScheduleEnabled   bool             `json:"scheduleEnabled"`
	ScheduleAvailable bool             `json:"scheduleAvailable"`
	ManualAvailable   bool             `json:"manualAvailable"`
	Available         bool             `json:"available"`
	NextWindow        *types.TimeRange `json:"nextWindow,omitempty"`
}

// Effective combines the schedule with the donor's manual flag: an enabled
// schedule decides on its own, otherwise the manual flag does.
func Effective(donor *types.DonorProfile, schedule *types.AvailabilitySchedule, instant time.Time) bool {
	if schedule == nil || !schedule.Enabled {
		return donor.IsAvailable
	}
	return IsAvailable(schedule, donor.Location(), instant)
}

// Availability evaluates a donor at at, defaulting to now.
func (s *Service) Availability(ctx context.Context, donorID string, at time.Time) (*Availability, error) {
	donor, err := s.donors.Donor(ctx, donorID)
	if err != nil {
		return nil, err
	}

	sched, err := s.store.Schedule(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule for donor %s: %w", donorID, err)
	}

	if at.IsZero() {
		at = s.clock.Now()
	}

	loc := donor.Location()
	out := &Availability{
		DonorID:           donorID,
		At:                at,
		ScheduleEnabled:   sched.Enabled,
		ScheduleAvailable: IsAvailable(sched, loc, at),
		ManualAvailable:   donor.IsAvailable,
		Available:         Effective(donor, sched, at),
	}

	if sched.Enabled {
		out.NextWindow = s.evaluator.NextAvailableWindow(sched, loc, at)
	}

	return out, nil
}
