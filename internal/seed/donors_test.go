package seed

import (
	"context"
	"testing"

	"bloodbridge/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDonorsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	n, err := SeedDonors(ctx, s, s)
	require.NoError(t, err)
	assert.Equal(t, len(donorSeeds), n)

	_, err = SeedDonors(ctx, s, s)
	require.NoError(t, err)

	donors, err := s.Donors(ctx)
	require.NoError(t, err)
	assert.Len(t, donors, len(donorSeeds))

	sched, err := s.Schedule(ctx, donorSeeds[0].ID)
	require.NoError(t, err)
	assert.True(t, sched.Enabled)
	assert.Len(t, sched.WeeklySlots, len(donorSeeds[0].Slots))

	sched, err = s.Schedule(ctx, donorSeeds[1].ID)
	require.NoError(t, err)
	assert.False(t, sched.Enabled)
	assert.Empty(t, sched.WeeklySlots)
}
