// Package eligibility decides whether a donor has waited long enough since
// their last verified donation.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"bloodbridge/internal/clock"
	"bloodbridge/pkg/types"
)

const DefaultMinIntervalDays = 90

type Policy struct {
	MinIntervalDays int
}

func (p Policy) interval() int {
	if p.MinIntervalDays <= 0 {
		return DefaultMinIntervalDays
	}
	return p.MinIntervalDays
}

type Result struct {
	Eligible              bool       `json:"eligible"`
	IsFirstTime           bool       `json:"isFirstTime"`
	DaysSinceLastDonation *int       `json:"daysSinceLastDonation,omitempty"`
	DaysRemaining         *int       `json:"daysRemaining,omitempty"`
	NextEligibleDate      *time.Time `json:"nextEligibleDate,omitempty"`
	Reason                *string    `json:"reason,omitempty"`
}

// Check counts calendar days. lastDonation is a calendar date and its date
// parts are used as stored; only now is moved into loc to find the donor's
// current day.
func (p Policy) Check(lastDonation *time.Time, now time.Time, loc *time.Location) Result {
	if lastDonation == nil {
		return Result{Eligible: true, IsFirstTime: true}
	}

	if loc == nil {
		loc = time.UTC
	}

	interval := p.interval()
	last := civilDay(*lastDonation)
	today := civilDay(now.In(loc))
	next := last.AddDate(0, 0, interval)

	since := daysBetween(last, today)
	remaining := daysBetween(today, next)
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Eligible:              since >= interval,
		DaysSinceLastDonation: &since,
		DaysRemaining:         &remaining,
		NextEligibleDate:      &next,
	}

	if !res.Eligible {
		reason := fmt.Sprintf("last donation was %d days ago; donors must wait %d days between donations", since, interval)
		res.Reason = &reason
	}

	return res
}

// CheckEligibility applies the default policy.
func CheckEligibility(lastDonation *time.Time, now time.Time, loc *time.Location) Result {
	return Policy{}.Check(lastDonation, now, loc)
}

// civilDay returns midnight UTC of t's calendar date so that day arithmetic
// is immune to DST shifts in t's location.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

type DonorSource interface {
	Donor(ctx context.Context, donorID string) (*types.DonorProfile, error)
}

type DonationSource interface {
	LastVerifiedDonation(ctx context.Context, donorID string) (*types.DonationRecord, error)
}

type Service struct {
	policy    Policy
	donors    DonorSource
	donations DonationSource
	clock     clock.Clock
}

func NewService(policy Policy, donors DonorSource, donations DonationSource, clk clock.Clock) *Service {
	return &Service{
		policy:    policy,
		donors:    donors,
		donations: donations,
		clock:     clk,
	}
}

func (s *Service) Policy() Policy {
	return s.policy
}

// Donor evaluates a donor against their most recent verified donation.
func (s *Service) Donor(ctx context.Context, donorID string) (*Result, error) {
	donor, err := s.donors.Donor(ctx, donorID)
	if err != nil {
		return nil, err
	}

	last, err := s.donations.LastVerifiedDonation(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last verified donation for donor %s: %w", donorID, err)
	}

	var lastDate *time.Time
	if last != nil {
		lastDate = &last.DonationDate
	}

	res := s.policy.Check(lastDate, s.clock.Now(), donor.Location())
	return &res, nil
}
