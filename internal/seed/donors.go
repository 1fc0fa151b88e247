package seed

import (
	"context"
	"fmt"
	"time"

	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"
)

type DonorWriter interface {
	UpsertDonor(ctx context.Context, donor *types.DonorProfile) error
}

type ScheduleWriter interface {
	UpsertWeeklySlot(ctx context.Context, slot *types.WeeklySlot) error
	SetScheduleEnabled(ctx context.Context, donorID string, enabled bool) error
}

type donorSeed struct {
	ID        string
	Name      string
	BloodType types.BloodType
	Lat, Lng  float64
	RadiusKm  float64
	// weekday evening slots; a donor without slots relies on the manual flag
	Slots []time.Weekday
}

// Fixed ids keep the seed idempotent. Generate new ones with the nanoid
// command.
var donorSeeds = []donorSeed{
	{ID: "dnr_q3VhX0mJbT8sLwY2aPzK9cRe", Name: "Amina Njeri", BloodType: types.BloodTypeONeg, Lat: -1.2921, Lng: 36.8219, RadiusKm: 15, Slots: []time.Weekday{time.Monday, time.Wednesday}},
	{ID: "dnr_Fh7kP2nWq9LxT4bZr1YdM6sG", Name: "Brian Otieno", BloodType: types.BloodTypeOPos, Lat: -1.2864, Lng: 36.8172, RadiusKm: 10},
	{ID: "dnr_8JcVt5RmKa0PyQe3HwNbU7Lz", Name: "Cynthia Wanjiku", BloodType: types.BloodTypeAPos, Lat: -1.3032, Lng: 36.7073, RadiusKm: 20, Slots: []time.Weekday{time.Saturday}},
	{ID: "dnr_mW2yGd9XsL4nRk7TqB1ZpVe5", Name: "David Kamau", BloodType: types.BloodTypeANeg, Lat: -1.2195, Lng: 36.8866, RadiusKm: 12},
	{ID: "dnr_Zr6NpT1hQx8cVb3KmY0wLs9F", Name: "Esther Achieng", BloodType: types.BloodTypeBPos, Lat: -1.2630, Lng: 36.8025, RadiusKm: 8, Slots: []time.Weekday{time.Tuesday, time.Thursday}},
	{ID: "dnr_Lk4sJ7vBe2RtM9xPq6WnC0aH", Name: "Felix Mutua", BloodType: types.BloodTypeBNeg, Lat: -1.3192, Lng: 36.8387, RadiusKm: 25},
	{ID: "dnr_Xp0dQ5gYz3WmH8rLc1NtK6bS", Name: "Grace Chebet", BloodType: types.BloodTypeABPos, Lat: -1.2762, Lng: 36.7765, RadiusKm: 10},
	{ID: "dnr_Ty9bN4kWc7PxS2hVm5QrJ0eD", Name: "Hassan Ali", BloodType: types.BloodTypeABNeg, Lat: -1.2577, Lng: 36.8588, RadiusKm: 30, Slots: []time.Weekday{time.Sunday}},
}

// SeedDonors writes the demo donors and their evening schedules. Running it
// again overwrites the same rows.
func SeedDonors(ctx context.Context, donors DonorWriter, schedules ScheduleWriter) (int, error) {
	now := time.Now()
	evening := types.MustTimeOfDay("17:00")
	closing := types.MustTimeOfDay("20:00")

	for _, d := range donorSeeds {
		donor := &types.DonorProfile{
			ID:                   d.ID,
			DisplayName:          utils.StringPtr(d.Name),
			BloodType:            d.BloodType,
			IsAvailable:          true,
			AvailabilityRadiusKm: d.RadiusKm,
			Timezone:             "Africa/Nairobi",
			GeoPoint:             types.GeoPoint{Lat: d.Lat, Lng: d.Lng},
		}

		if err := donors.UpsertDonor(ctx, donor); err != nil {
			return 0, fmt.Errorf("failed to seed donor %s: %w", d.ID, err)
		}

		for _, day := range d.Slots {
			slot := &types.WeeklySlot{
				ID:        fmt.Sprintf("slt_%s_%d", d.ID[len(utils.PrefixDonor)+1:], day),
				DonorID:   d.ID,
				DayOfWeek: day,
				StartTime: evening,
				EndTime:   closing,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}

			if err := schedules.UpsertWeeklySlot(ctx, slot); err != nil {
				return 0, fmt.Errorf("failed to seed slot %s: %w", slot.ID, err)
			}
		}

		if err := schedules.SetScheduleEnabled(ctx, d.ID, len(d.Slots) > 0); err != nil {
			return 0, fmt.Errorf("failed to toggle schedule for donor %s: %w", d.ID, err)
		}
	}

	return len(donorSeeds), nil
}
