package donation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"bloodbridge/internal/clock"
	"bloodbridge/internal/donation"
	"bloodbridge/internal/eligibility"
	"bloodbridge/internal/store/memory"
	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type memorySink struct {
	mu      sync.Mutex
	entries []*types.AuditEntry
}

func (s *memorySink) Record(_ context.Context, e *types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

type fixture struct {
	store *memory.Store
	sink  *memorySink
	clock *clock.Fake
	svc   *donation.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: memory.New(), sink: &memorySink{}, clock: clock.NewFake(now)}
	require.NoError(t, f.store.UpsertDonor(context.Background(), &types.DonorProfile{ID: "dnr_1", BloodType: types.BloodTypeBNeg}))

	logger, _ := test.NewNullLogger()
	f.svc = donation.NewService(logger, f.store, f.sink, f.clock)
	return f
}

func TestSubmitValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var verr *types.ValidationError

	_, err := f.svc.Submit(ctx, "dnr_1", now.Add(24*time.Hour), 1)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "donationDate", verr.Field)

	_, err = f.svc.Submit(ctx, "dnr_1", now, 0)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unitsProvided", verr.Field)

	_, err = f.svc.Submit(ctx, "dnr_missing", now, 1)
	assert.ErrorIs(t, err, types.ErrDonorNotFound)
}

func TestVerifyDrivesEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	elig := eligibility.NewService(eligibility.Policy{}, f.store, f.store, f.clock)

	record, err := f.svc.Submit(ctx, "dnr_1", now.AddDate(0, 0, -10), 1)
	require.NoError(t, err)

	res, err := elig.Donor(ctx, "dnr_1")
	require.NoError(t, err)
	assert.True(t, res.IsFirstTime, "pending records do not count")

	verified, err := f.svc.Verify(ctx, record.ID, "nurse@clinic")
	require.NoError(t, err)
	assert.Equal(t, types.VerificationVerified, verified.VerificationStatus)
	assert.True(t, verified.Locked)

	res, err = elig.Donor(ctx, "dnr_1")
	require.NoError(t, err)
	assert.False(t, res.Eligible)
	assert.Equal(t, 80, *res.DaysRemaining)

	_, err = f.svc.Verify(ctx, record.ID, "nurse@clinic")
	assert.ErrorIs(t, err, types.ErrRecordState)

	require.Len(t, f.sink.entries, 1)
	assert.Equal(t, types.AuditActionLock, f.sink.entries[0].Action)
}

func TestAmendRequiresUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.Submit(ctx, "dnr_1", now.AddDate(0, 0, -100), 1)
	require.NoError(t, err)

	// pending records may be corrected freely
	_, err = f.svc.Amend(ctx, record.ID, "nurse@clinic", donation.Amendment{UnitsProvided: utils.IntPtr(2)})
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, record.ID, "nurse@clinic")
	require.NoError(t, err)

	corrected := now.AddDate(0, 0, -20)
	_, err = f.svc.Amend(ctx, record.ID, "admin", donation.Amendment{DonationDate: &corrected})
	assert.ErrorIs(t, err, types.ErrRecordLocked)

	_, err = f.svc.Unlock(ctx, record.ID, "admin", "")
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.svc.Unlock(ctx, record.ID, "admin", "date typed wrong")
	require.NoError(t, err)

	amended, err := f.svc.Amend(ctx, record.ID, "admin", donation.Amendment{DonationDate: &corrected, Reason: "date typed wrong"})
	require.NoError(t, err)
	assert.Equal(t, corrected, amended.DonationDate)
	assert.Equal(t, 2, amended.UnitsProvided)

	locked, err := f.svc.Lock(ctx, record.ID, "admin", "correction done")
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	donor, err := f.store.Donor(ctx, "dnr_1")
	require.NoError(t, err)
	assert.Equal(t, corrected, *donor.LastDonationDate)

	trail, err := f.svc.AuditTrail(ctx, record.ID)
	require.NoError(t, err)
	actions := make([]types.AuditAction, len(trail))
	for i, e := range trail {
		actions[i] = e.Action
	}
	assert.Equal(t, []types.AuditAction{
		types.AuditActionLock,
		types.AuditActionUnlock,
		types.AuditActionAmend,
		types.AuditActionLock,
	}, actions)
	assert.Len(t, f.sink.entries, 4)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.svc.Submit(ctx, "dnr_1", now, 1)
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, record.ID, "nurse@clinic", "no matching clinic log")
	require.NoError(t, err)
	assert.Equal(t, types.VerificationRejected, rejected.VerificationStatus)

	_, err = f.svc.Amend(ctx, record.ID, "nurse@clinic", donation.Amendment{UnitsProvided: utils.IntPtr(1)})
	assert.ErrorIs(t, err, types.ErrRecordState)

	_, err = f.svc.Verify(ctx, record.ID, "nurse@clinic")
	assert.ErrorIs(t, err, types.ErrRecordState)

	assert.Empty(t, f.sink.entries)
}
