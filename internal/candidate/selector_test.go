package candidate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bloodbridge/internal/clock"
	"bloodbridge/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSources struct {
	mu        sync.Mutex
	donors    []*types.DonorProfile
	donations map[string]*types.DonationRecord
	exposure  map[string]*types.DonorExposure
	failOn    string

	gotRadius     float64
	gotBloodTypes []types.BloodType
	gotHoldSince  time.Time
}

func (f *fakeSources) DonorsNear(_ context.Context, _ types.GeoPoint, radiusKm float64, bloodTypes []types.BloodType) ([]*types.DonorProfile, error) {
	f.gotRadius = radiusKm
	f.gotBloodTypes = bloodTypes
	return f.donors, nil
}

func (f *fakeSources) Schedule(_ context.Context, donorID string) (*types.AvailabilitySchedule, error) {
	if donorID == f.failOn {
		return nil, errors.New("connection reset")
	}
	return &types.AvailabilitySchedule{DonorID: donorID}, nil
}

func (f *fakeSources) LastVerifiedDonation(_ context.Context, donorID string) (*types.DonationRecord, error) {
	return f.donations[donorID], nil
}

func (f *fakeSources) DonorExposure(_ context.Context, donorID string, holdSince, _ time.Time) (*types.DonorExposure, error) {
	f.mu.Lock()
	f.gotHoldSince = holdSince
	f.mu.Unlock()

	if e, ok := f.exposure[donorID]; ok {
		return e, nil
	}
	return &types.DonorExposure{DonorID: donorID}, nil
}

func newSelector(f *fakeSources, cfg SelectorConfig) *Selector {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewSelector(logger, f, f, f, f, clock.NewFake(now), cfg)
}

func TestSelectorSelect(t *testing.T) {
	f := &fakeSources{
		donors: []*types.DonorProfile{
			donor("dnr_a", types.BloodTypeONeg, 0.02),
			donor("dnr_b", types.BloodTypeONeg, 0.01),
			donor("dnr_c", types.BloodTypeONeg, 0.03),
		},
		donations: map[string]*types.DonationRecord{
			"dnr_c": {DonorID: "dnr_c", DonationDate: *ago(20), VerificationStatus: types.VerificationVerified},
		},
		exposure: map[string]*types.DonorExposure{},
	}

	s := newSelector(f, SelectorConfig{})
	ids, err := s.Select(context.Background(), request(types.BloodTypeONeg, types.UrgencyCritical))
	require.NoError(t, err)

	assert.Equal(t, []string{"dnr_b", "dnr_a"}, ids)
	assert.Equal(t, float64(DefaultSearchRadiusKm), f.gotRadius)
	assert.Equal(t, []types.BloodType{types.BloodTypeONeg}, f.gotBloodTypes)
	assert.Equal(t, now.Add(-72*time.Hour), f.gotHoldSince)
}

func TestSelectorCapsCandidates(t *testing.T) {
	f := &fakeSources{
		donors: []*types.DonorProfile{
			donor("dnr_a", types.BloodTypeONeg, 0.02),
			donor("dnr_b", types.BloodTypeONeg, 0.01),
		},
	}

	s := newSelector(f, SelectorConfig{MaxCandidates: 1})
	req := request(types.BloodTypeONeg, types.UrgencyCritical)
	req.SearchRadiusKm = 10

	ids, err := s.Select(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"dnr_b"}, ids)
	assert.Equal(t, 10.0, f.gotRadius)
}

func TestSelectorPropagatesLoadErrors(t *testing.T) {
	f := &fakeSources{
		donors: []*types.DonorProfile{donor("dnr_a", types.BloodTypeONeg, 0.02)},
		failOn: "dnr_a",
	}

	_, err := newSelector(f, SelectorConfig{}).Select(context.Background(), request(types.BloodTypeONeg, types.UrgencyRoutine))
	require.ErrorContains(t, err, "dnr_a")
}

func TestSelectorValidatesRequest(t *testing.T) {
	s := newSelector(&fakeSources{}, SelectorConfig{})

	_, err := s.Select(context.Background(), &types.BloodRequest{ID: "req_1", BloodType: "C+"})
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "bloodType", verr.Field)

	_, err = s.Select(context.Background(), &types.BloodRequest{BloodType: types.BloodTypeONeg})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "requestId", verr.Field)
}
