package eligibility

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"bloodbridge/internal/clock"
	"bloodbridge/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func daysAgo(now time.Time, days int) *time.Time {
	t := now.AddDate(0, 0, -days)
	return &t
}

func TestCheckEligibilityFirstTime(t *testing.T) {
	res := CheckEligibility(nil, time.Now(), time.UTC)
	assert.True(t, res.Eligible)
	assert.True(t, res.IsFirstTime)
	assert.Nil(t, res.Reason)
	assert.Nil(t, res.DaysRemaining)
}

func TestCheckEligibilityBoundary(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	t.Run("exactly ninety days", func(t *testing.T) {
		res := CheckEligibility(daysAgo(now, 90), now, time.UTC)
		assert.True(t, res.Eligible)
		assert.False(t, res.IsFirstTime)
		require.NotNil(t, res.DaysSinceLastDonation)
		assert.Equal(t, 90, *res.DaysSinceLastDonation)
		require.NotNil(t, res.DaysRemaining)
		assert.Equal(t, 0, *res.DaysRemaining)
		assert.Nil(t, res.Reason)
	})

	t.Run("eighty nine days", func(t *testing.T) {
		res := CheckEligibility(daysAgo(now, 89), now, time.UTC)
		assert.False(t, res.Eligible)
		require.NotNil(t, res.DaysRemaining)
		assert.Equal(t, 1, *res.DaysRemaining)
		require.NotNil(t, res.NextEligibleDate)
		assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), *res.NextEligibleDate)
		require.NotNil(t, res.Reason)
	})

	t.Run("long ago", func(t *testing.T) {
		res := CheckEligibility(daysAgo(now, 400), now, time.UTC)
		assert.True(t, res.Eligible)
		assert.Equal(t, 0, *res.DaysRemaining)
	})
}

func TestCheckEligibilityUsesCalendarDays(t *testing.T) {
	// 23:50 and 00:10 on the next calendar day count as one day apart.
	last := time.Date(2026, 7, 17, 23, 50, 0, 0, time.UTC)
	now := time.Date(2026, 10, 15, 0, 10, 0, 0, time.UTC)

	res := CheckEligibility(&last, now, time.UTC)
	assert.True(t, res.Eligible)
	assert.Equal(t, 90, *res.DaysSinceLastDonation)
}

func mustDate(t *testing.T, s string) *time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return &d
}

func TestCheckEligibilityInDonorTimezone(t *testing.T) {
	newYork := time.FixedZone("UTC-4", -4*60*60)
	nairobi := time.FixedZone("UTC+3", 3*60*60)

	tests := []struct {
		name      string
		last      string
		now       time.Time
		loc       *time.Location
		eligible  bool
		since     int
		remaining int
		next      time.Time
	}{
		{
			name:      "west of utc, eighty nine days",
			last:      "2026-07-18",
			now:       time.Date(2026, 10, 15, 12, 0, 0, 0, newYork),
			loc:       newYork,
			eligible:  false,
			since:     89,
			remaining: 1,
			next:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "west of utc, ninety days",
			last:      "2026-07-18",
			now:       time.Date(2026, 10, 16, 0, 30, 0, 0, newYork),
			loc:       newYork,
			eligible:  true,
			since:     90,
			remaining: 0,
			next:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "west of utc, evening still the previous day",
			last:      "2026-07-18",
			now:       time.Date(2026, 10, 16, 2, 0, 0, 0, time.UTC),
			loc:       newYork,
			eligible:  false,
			since:     89,
			remaining: 1,
			next:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "east of utc, eighty nine days",
			last:      "2026-07-18",
			now:       time.Date(2026, 10, 15, 23, 30, 0, 0, nairobi),
			loc:       nairobi,
			eligible:  false,
			since:     89,
			remaining: 1,
			next:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "east of utc, already the next day locally",
			last:      "2026-07-18",
			now:       time.Date(2026, 10, 15, 22, 0, 0, 0, time.UTC),
			loc:       nairobi,
			eligible:  true,
			since:     90,
			remaining: 0,
			next:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckEligibility(mustDate(t, tt.last), tt.now, tt.loc)

			assert.Equal(t, tt.eligible, res.Eligible)
			require.NotNil(t, res.DaysSinceLastDonation)
			assert.Equal(t, tt.since, *res.DaysSinceLastDonation)
			require.NotNil(t, res.DaysRemaining)
			assert.Equal(t, tt.remaining, *res.DaysRemaining)
			require.NotNil(t, res.NextEligibleDate)
			assert.Equal(t, tt.next, *res.NextEligibleDate)
		})
	}
}

func TestPolicyCustomInterval(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	p := Policy{MinIntervalDays: 56}

	assert.True(t, p.Check(daysAgo(now, 56), now, time.UTC).Eligible)

	res := p.Check(daysAgo(now, 50), now, time.UTC)
	assert.False(t, res.Eligible)
	assert.Equal(t, 6, *res.DaysRemaining)
}

type donorStub map[string]*types.DonorProfile

func (d donorStub) Donor(_ context.Context, donorID string) (*types.DonorProfile, error) {
	donor, ok := d[donorID]
	if !ok {
		return nil, types.NotFound(types.ErrDonorNotFound, donorID)
	}
	return donor, nil
}

type donationStub map[string]*types.DonationRecord

func (d donationStub) LastVerifiedDonation(_ context.Context, donorID string) (*types.DonationRecord, error) {
	return d[donorID], nil
}

func TestServiceDonorUsesDonationCalendarDate(t *testing.T) {
	donors := donorStub{
		"dnr_la":      {ID: "dnr_la", Timezone: "America/Los_Angeles"},
		"dnr_nairobi": {ID: "dnr_nairobi", Timezone: "Africa/Nairobi"},
	}
	donations := donationStub{
		"dnr_la":      {DonorID: "dnr_la", DonationDate: *mustDate(t, "2026-07-18"), VerificationStatus: types.VerificationVerified},
		"dnr_nairobi": {DonorID: "dnr_nairobi", DonationDate: *mustDate(t, "2026-07-18"), VerificationStatus: types.VerificationVerified},
	}

	// 2026-10-15 18:00 UTC is 11:00 in Los Angeles and 21:00 in Nairobi,
	// eighty nine calendar days after the donation for both.
	clk := clock.NewFake(time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC))
	svc := NewService(Policy{}, donors, donations, clk)

	for _, id := range []string{"dnr_la", "dnr_nairobi"} {
		res, err := svc.Donor(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, res.Eligible, id)
		require.NotNil(t, res.DaysRemaining)
		assert.Equal(t, 1, *res.DaysRemaining, id)
		assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), *res.NextEligibleDate, id)
	}

	clk.Set(time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC))
	res, err := svc.Donor(context.Background(), "dnr_la")
	require.NoError(t, err)
	assert.True(t, res.Eligible)
	assert.Equal(t, 90, *res.DaysSinceLastDonation)
}
