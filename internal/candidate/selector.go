package candidate

import (
	"context"
	"fmt"
	"time"

	"bloodbridge/internal/clock"
	"bloodbridge/pkg/types"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSearchRadiusKm = 50
	poolConcurrency       = 8
)

type DonorSource interface {
	DonorsNear(ctx context.Context, point types.GeoPoint, radiusKm float64, bloodTypes []types.BloodType) ([]*types.DonorProfile, error)
}

type ScheduleSource interface {
	Schedule(ctx context.Context, donorID string) (*types.AvailabilitySchedule, error)
}

type DonationSource interface {
	LastVerifiedDonation(ctx context.Context, donorID string) (*types.DonationRecord, error)
}

type ExposureSource interface {
	DonorExposure(ctx context.Context, donorID string, holdSince, recentSince time.Time) (*types.DonorExposure, error)
}

type SelectorConfig struct {
	Policy         Policy
	SearchRadiusKm float64
	MaxCandidates  int
	// an accepted candidacy blocks the donor for this long
	AcceptanceHold time.Duration
	FairnessWindow time.Duration
}

type Selector struct {
	logger    logrus.FieldLogger
	donors    DonorSource
	schedules ScheduleSource
	donations DonationSource
	exposure  ExposureSource
	clock     clock.Clock
	cfg       SelectorConfig
}

func NewSelector(logger logrus.FieldLogger, donors DonorSource, schedules ScheduleSource, donations DonationSource, exposure ExposureSource, clk clock.Clock, cfg SelectorConfig) *Selector {
	if cfg.SearchRadiusKm <= 0 {
		cfg.SearchRadiusKm = DefaultSearchRadiusKm
	}
	if cfg.AcceptanceHold <= 0 {
		cfg.AcceptanceHold = 72 * time.Hour
	}
	if cfg.FairnessWindow <= 0 {
		cfg.FairnessWindow = 30 * 24 * time.Hour
	}

	return &Selector{
		logger:    logger,
		donors:    donors,
		schedules: schedules,
		donations: donations,
		exposure:  exposure,
		clock:     clk,
		cfg:       cfg,
	}
}

// Evaluate loads the donor pool around the request and runs the selection.
// The result is capped at MaxCandidates when that is set.
func (s *Selector) Evaluate(ctx context.Context, req *types.BloodRequest) (*Evaluation, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	pool, err := s.Pool(ctx, req, now)
	if err != nil {
		return nil, err
	}

	eval := Evaluate(req, pool, now, s.cfg.Policy)
	if s.cfg.MaxCandidates > 0 && len(eval.Selected) > s.cfg.MaxCandidates {
		eval.Selected = eval.Selected[:s.cfg.MaxCandidates]
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"urgency":    req.Urgency,
		"pool":       len(pool),
		"selected":   len(eval.Selected),
		"rejected":   len(eval.Rejected),
	}).Debug("candidates evaluated")

	return eval, nil
}

// Select returns the ordered candidate donor ids for req.
func (s *Selector) Select(ctx context.Context, req *types.BloodRequest) ([]string, error) {
	eval, err := s.Evaluate(ctx, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(eval.Selected))
	for i, r := range eval.Selected {
		ids[i] = r.DonorID
	}
	return ids, nil
}

// Pool fetches compatible donors near the request and loads each donor's
// schedule, last verified donation and exposure concurrently.
func (s *Selector) Pool(ctx context.Context, req *types.BloodRequest, now time.Time) ([]*Entry, error) {
	radius := req.SearchRadiusKm
	if radius <= 0 {
		radius = s.cfg.SearchRadiusKm
	}

	donors, err := s.donors.DonorsNear(ctx, req.Location, radius, s.cfg.Policy.table().Donors(req.BloodType))
	if err != nil {
		return nil, fmt.Errorf("failed to list donors near request %s: %w", req.ID, err)
	}

	holdSince := now.Add(-s.cfg.AcceptanceHold)
	recentSince := now.Add(-s.cfg.FairnessWindow)

	pool := make([]*Entry, len(donors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolConcurrency)

	for i, donor := range donors {
		g.Go(func() error {
			entry := &Entry{Donor: donor}

			sched, err := s.schedules.Schedule(gctx, donor.ID)
			if err != nil {
				return fmt.Errorf("failed to load schedule for donor %s: %w", donor.ID, err)
			}
			entry.Schedule = sched

			last, err := s.donations.LastVerifiedDonation(gctx, donor.ID)
			if err != nil {
				return fmt.Errorf("failed to load last donation for donor %s: %w", donor.ID, err)
			}
			if last != nil {
				entry.LastDonation = &last.DonationDate
			}

			exposure, err := s.exposure.DonorExposure(gctx, donor.ID, holdSince, recentSince)
			if err != nil {
				return fmt.Errorf("failed to load exposure for donor %s: %w", donor.ID, err)
			}
			entry.Exposure = *exposure

			pool[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pool, nil
}

func ValidateRequest(req *types.BloodRequest) error {
	if req == nil || req.ID == "" {
		return types.NewValidationError("requestId", "is required")
	}
	if !req.BloodType.Valid() {
		return types.NewValidationError("bloodType", "unknown blood type %q", req.BloodType)
	}
	if req.Urgency == "" {
		req.Urgency = types.UrgencyRoutine
	}
	if !req.Urgency.Valid() {
		return types.NewValidationError("urgency", "unknown urgency %q", req.Urgency)
	}
	if req.Location.Lat < -90 || req.Location.Lat > 90 || req.Location.Lng < -180 || req.Location.Lng > 180 {
		return types.NewValidationError("location", "coordinates out of range")
	}
	return nil
}
