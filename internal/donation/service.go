// Package donation manages donation records and their verification. The
// most recent verified record drives donor eligibility.
package donation

import (
	"context"
	"strings"
	"time"

	"bloodbridge/internal/audit"
	"bloodbridge/internal/clock"
	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	"github.com/sirupsen/logrus"
)

const MaxUnitsPerDonation = 4

// Store persists donation records. UpdateDonation runs the mutator while
// the record is locked, stores any returned audit entry in the same
// transaction and refreshes the donor's last donation date and total.
type Store interface {
	Donation(ctx context.Context, recordID string) (*types.DonationRecord, error)
	DonationsByDonor(ctx context.Context, donorID string) ([]*types.DonationRecord, error)
	CreateDonation(ctx context.Context, record *types.DonationRecord) error
	UpdateDonation(ctx context.Context, recordID string, mutate types.DonationMutator) (*types.DonationRecord, *types.AuditEntry, error)
	AuditTrail(ctx context.Context, recordID string) ([]*types.AuditEntry, error)
}

type Service struct {
	logger logrus.FieldLogger
	store  Store
	sink   audit.Sink
	clock  clock.Clock
}

func NewService(logger logrus.FieldLogger, store Store, sink audit.Sink, clk clock.Clock) *Service {
	return &Service{logger: logger, store: store, sink: sink, clock: clk}
}

func (s *Service) Donation(ctx context.Context, recordID string) (*types.DonationRecord, error) {
	return s.store.Donation(ctx, recordID)
}

func (s *Service) Donations(ctx context.Context, donorID string) ([]*types.DonationRecord, error) {
	return s.store.DonationsByDonor(ctx, donorID)
}

func (s *Service) AuditTrail(ctx context.Context, recordID string) ([]*types.AuditEntry, error) {
	if _, err := s.store.Donation(ctx, recordID); err != nil {
		return nil, err
	}
	return s.store.AuditTrail(ctx, recordID)
}

// Submit records a donation awaiting verification.
func (s *Service) Submit(ctx context.Context, donorID string, date time.Time, units int) (*types.DonationRecord, error) {
	if donorID == "" {
		return nil, types.NewValidationError("donorId", "is required")
	}

	now := s.clock.Now()
	if err := validateDonation(date, units, now); err != nil {
		return nil, err
	}

	record := &types.DonationRecord{
		ID:                 utils.PrefixedID(utils.PrefixDonation),
		DonorID:            donorID,
		DonationDate:       date,
		UnitsProvided:      units,
		VerificationStatus: types.VerificationPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.CreateDonation(ctx, record); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"donor_id":  donorID,
		"record_id": record.ID,
	}).Info("donation submitted")

	return record, nil
}

// Verify accepts a pending record and locks it.
func (s *Service) Verify(ctx context.Context, recordID, actor string) (*types.DonationRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return s.update(ctx, recordID, func(r *types.DonationRecord) (*types.AuditEntry, error) {
		if r.VerificationStatus != types.VerificationPending {
			return nil, types.NewConflict(types.ErrRecordState, nil)
		}

		r.VerificationStatus = types.VerificationVerified
		r.Locked = true
		r.VerifiedBy = &actor
		r.VerifiedAt = &now
		r.UpdatedAt = now

		return newEntry(r, types.AuditActionLock, actor, "verified", now), nil
	})
}

// Reject closes a pending record without counting it as a donation.
func (s *Service) Reject(ctx context.Context, recordID, actor, reason string) (*types.DonationRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, types.NewValidationError("reason", "is required when rejecting a donation")
	}

	now := s.clock.Now()
	return s.update(ctx, recordID, func(r *types.DonationRecord) (*types.AuditEntry, error) {
		if r.VerificationStatus != types.VerificationPending {
			return nil, types.NewConflict(types.ErrRecordState, nil)
		}

		r.VerificationStatus = types.VerificationRejected
		r.RejectionReason = &reason
		r.UpdatedAt = now
		return nil, nil
	})
}

type Amendment struct {
	DonationDate  *time.Time `json:"donationDate,omitempty"`
	UnitsProvided *int       `json:"unitsProvided,omitempty"`
	Reason        string     `json:"reason"`
}

// Amend corrects a pending record, or a verified record that an
// administrator has unlocked. Changes to verified records are audited.
func (s *Service) Amend(ctx context.Context, recordID, actor string, a Amendment) (*types.DonationRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	if a.DonationDate == nil && a.UnitsProvided == nil {
		return nil, types.NewValidationError("", "nothing to amend")
	}

	now := s.clock.Now()
	return s.update(ctx, recordID, func(r *types.DonationRecord) (*types.AuditEntry, error) {
		if r.Locked {
			return nil, types.NewConflict(types.ErrRecordLocked, nil)
		}
		if r.VerificationStatus == types.VerificationRejected {
			return nil, types.NewConflict(types.ErrRecordState, nil)
		}

		date, units := r.DonationDate, r.UnitsProvided
		if a.DonationDate != nil {
			date = *a.DonationDate
		}
		if a.UnitsProvided != nil {
			units = *a.UnitsProvided
		}
		if err := validateDonation(date, units, now); err != nil {
			return nil, err
		}

		r.DonationDate = date
		r.UnitsProvided = units
		r.UpdatedAt = now

		if r.VerificationStatus != types.VerificationVerified {
			return nil, nil
		}
		return newEntry(r, types.AuditActionAmend, actor, a.Reason, now), nil
	})
}

// Lock freezes a verified record again after an amendment.
func (s *Service) Lock(ctx context.Context, recordID, actor, reason string) (*types.DonationRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return s.update(ctx, recordID, func(r *types.DonationRecord) (*types.AuditEntry, error) {
		if r.VerificationStatus != types.VerificationVerified || r.Locked {
			return nil, types.NewConflict(types.ErrRecordState, nil)
		}

		r.Locked = true
		r.UpdatedAt = now
		return newEntry(r, types.AuditActionLock, actor, reason, now), nil
	})
}

// Unlock opens a verified record for amendment. A reason is mandatory.
func (s *Service) Unlock(ctx context.Context, recordID, actor, reason string) (*types.DonationRecord, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, types.NewValidationError("reason", "is required to unlock a verified donation")
	}

	now := s.clock.Now()
	return s.update(ctx, recordID, func(r *types.DonationRecord) (*types.AuditEntry, error) {
		if r.VerificationStatus != types.VerificationVerified || !r.Locked {
			return nil, types.NewConflict(types.ErrRecordState, nil)
		}

		r.Locked = false
		r.UpdatedAt = now
		return newEntry(r, types.AuditActionUnlock, actor, reason, now), nil
	})
}

func (s *Service) update(ctx context.Context, recordID string, mutate types.DonationMutator) (*types.DonationRecord, error) {
	record, entry, err := s.store.UpdateDonation(ctx, recordID, mutate)
	if err != nil {
		return nil, err
	}

	if entry != nil && s.sink != nil {
		if err := s.sink.Record(ctx, entry); err != nil {
			// the entry is already stored alongside the record
			s.logger.WithError(err).WithField("audit_id", entry.ID).Error("failed to archive audit entry")
		}
	}

	return record, nil
}

func newEntry(r *types.DonationRecord, action types.AuditAction, actor, reason string, now time.Time) *types.AuditEntry {
	return &types.AuditEntry{
		ID:         utils.PrefixedID(utils.PrefixAudit),
		RecordID:   r.ID,
		DonorID:    r.DonorID,
		Action:     action,
		Actor:      actor,
		Reason:     reason,
		OccurredAt: now,
	}
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return types.NewValidationError("actor", "is required")
	}
	return nil
}

func validateDonation(date time.Time, units int, now time.Time) error {
	if date.IsZero() {
		return types.NewValidationError("donationDate", "is required")
	}
	if date.After(now) {
		return types.NewValidationError("donationDate", "must not be in the future")
	}
	if units < 1 || units > MaxUnitsPerDonation {
		return types.NewValidationError("unitsProvided", "must be between 1 and %d", MaxUnitsPerDonation)
	}
	return nil
}
