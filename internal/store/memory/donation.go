package memory

import (
	"context"
	"sort"

	"bloodbridge/pkg/types"
)

func copyDonation(r *types.DonationRecord) *types.DonationRecord {
	out := *r
	if r.VerifiedBy != nil {
		v := *r.VerifiedBy
		out.VerifiedBy = &v
	}
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		out.VerifiedAt = &t
	}
	if r.RejectionReason != nil {
		reason := *r.RejectionReason
		out.RejectionReason = &reason
	}
	return &out
}

func (s *Store) Donation(_ context.Context, recordID string) (*types.DonationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.donations[recordID]
	if !ok {
		return nil, types.NotFound(types.ErrDonationNotFound, recordID)
	}
	return copyDonation(r), nil
}

// DonationsByDonor lists a donor's records, most recent donation first.
func (s *Store) DonationsByDonor(_ context.Context, donorID string) ([]*types.DonationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*types.DonationRecord{}
	for _, r := range s.donations {
		if r.DonorID == donorID {
			out = append(out, copyDonation(r))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DonationDate.Equal(out[j].DonationDate) {
			return out[i].DonationDate.After(out[j].DonationDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// LastVerifiedDonation returns nil when the donor has no verified record.
func (s *Store) LastVerifiedDonation(_ context.Context, donorID string) (*types.DonationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := s.lastVerifiedLocked(donorID)
	if last == nil {
		return nil, nil
	}
	return copyDonation(last), nil
}

func (s *Store) lastVerifiedLocked(donorID string) *types.DonationRecord {
	var last *types.DonationRecord
	for _, r := range s.donations {
		if r.DonorID != donorID || r.VerificationStatus != types.VerificationVerified {
			continue
		}
		if last == nil || r.DonationDate.After(last.DonationDate) {
			last = r
		}
	}
	return last
}

func (s *Store) CreateDonation(_ context.Context, record *types.DonationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.donors[record.DonorID]; !ok {
		return types.NotFound(types.ErrDonorNotFound, record.DonorID)
	}

	s.donations[record.ID] = copyDonation(record)
	s.refreshDonorStatsLocked(record.DonorID)
	return nil
}

func (s *Store) UpdateDonation(_ context.Context, recordID string, mutate types.DonationMutator) (*types.DonationRecord, *types.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.donations[recordID]
	if !ok {
		return nil, nil, types.NotFound(types.ErrDonationNotFound, recordID)
	}

	next := copyDonation(current)
	entry, err := mutate(next)
	if err != nil {
		return nil, nil, err
	}

	s.donations[recordID] = next
	if entry != nil {
		stored := *entry
		s.audit = append(s.audit, &stored)
	}
	s.refreshDonorStatsLocked(next.DonorID)

	return copyDonation(next), entry, nil
}

func (s *Store) AuditTrail(_ context.Context, recordID string) ([]*types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*types.AuditEntry{}
	for _, e := range s.audit {
		if e.RecordID == recordID {
			entry := *e
			out = append(out, &entry)
		}
	}
	return out, nil
}

// refreshDonorStatsLocked derives the donor's last donation date and total
// from their verified records.
func (s *Store) refreshDonorStatsLocked(donorID string) {
	d, ok := s.donors[donorID]
	if !ok {
		return
	}

	total := 0
	for _, r := range s.donations {
		if r.DonorID == donorID && r.VerificationStatus == types.VerificationVerified {
			total++
		}
	}

	d.TotalDonations = total
	d.LastDonationDate = nil
	if last := s.lastVerifiedLocked(donorID); last != nil {
		date := last.DonationDate
		d.LastDonationDate = &date
	}
}
