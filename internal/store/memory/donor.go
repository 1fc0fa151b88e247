package memory

import (
	"context"
	"sort"

	"bloodbridge/internal/geo"
	"bloodbridge/pkg/types"
)

func copyDonor(d *types.DonorProfile) *types.DonorProfile {
	out := *d
	if d.LastDonationDate != nil {
		t := *d.LastDonationDate
		out.LastDonationDate = &t
	}
	if d.DisplayName != nil {
		n := *d.DisplayName
		out.DisplayName = &n
	}
	return &out
}

func (s *Store) Donor(_ context.Context, donorID string) (*types.DonorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.donors[donorID]
	if !ok {
		return nil, types.NotFound(types.ErrDonorNotFound, donorID)
	}
	return copyDonor(d), nil
}

func (s *Store) Donors(_ context.Context) ([]*types.DonorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.DonorProfile, 0, len(s.donors))
	for _, d := range s.donors {
		out = append(out, copyDonor(d))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertDonor creates or replaces a donor profile. Donation statistics are
// owned by the donation records and are preserved on update.
func (s *Store) UpsertDonor(_ context.Context, donor *types.DonorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := copyDonor(donor)
	if existing, ok := s.donors[donor.ID]; ok {
		d.CreatedAt = existing.CreatedAt
		d.LastDonationDate = existing.LastDonationDate
		d.TotalDonations = existing.TotalDonations
	}

	s.donors[d.ID] = d
	return nil
}

// DonorsNear lists donors of the given blood types within radiusKm of
// point, closest first. An empty bloodTypes matches every type.
func (s *Store) DonorsNear(_ context.Context, point types.GeoPoint, radiusKm float64, bloodTypes []types.BloodType) ([]*types.DonorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[types.BloodType]bool, len(bloodTypes))
	for _, bt := range bloodTypes {
		wanted[bt] = true
	}

	type near struct {
		donor    *types.DonorProfile
		distance float64
	}

	var found []near
	for _, d := range s.donors {
		if len(wanted) > 0 && !wanted[d.BloodType] {
			continue
		}
		distance := geo.DistanceKm(point, d.GeoPoint)
		if distance > radiusKm {
			continue
		}
		found = append(found, near{donor: d, distance: distance})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}
		return found[i].donor.ID < found[j].donor.ID
	})

	out := make([]*types.DonorProfile, len(found))
	for i, n := range found {
		out[i] = copyDonor(n.donor)
	}
	return out, nil
}
