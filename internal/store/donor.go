package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bloodbridge/internal/geo"
	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const donorTableName = "donors"

var donorColumns = utils.StructTagValues(types.DonorProfile{})

type DonorRepository struct {
	pool *pgxpool.Pool
}

func NewDonorRepository(pool *pgxpool.Pool) *DonorRepository {
	return &DonorRepository{pool: pool}
}

func (r *DonorRepository) Donor(ctx context.Context, donorID string) (*types.DonorProfile, error) {
	query, args, err := psql().
		Select(donorColumns...).
		From(donorTableName).
		Where(sq.Eq{"id": donorID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donor query: %w", err)
	}

	var donor types.DonorProfile
	err = pgxscan.Get(ctx, r.pool, &donor, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.NotFound(types.ErrDonorNotFound, donorID)
		}
		return nil, fmt.Errorf("failed to fetch donor: %w", err)
	}

	return &donor, nil
}

func (r *DonorRepository) Donors(ctx context.Context) ([]*types.DonorProfile, error) {
	query, args, err := psql().
		Select(donorColumns...).
		From(donorTableName).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donors query: %w", err)
	}

	var donors []*types.DonorProfile
	err = pgxscan.Select(ctx, r.pool, &donors, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch donors: %w", err)
	}

	return donors, nil
}

// UpsertDonor writes the profile fields. last_donation_date and
// total_donations belong to the donation records and are left untouched
// on conflict.
func (r *DonorRepository) UpsertDonor(ctx context.Context, donor *types.DonorProfile) error {
	now := time.Now()
	if donor.CreatedAt.IsZero() {
		donor.CreatedAt = now
	}
	donor.UpdatedAt = now

	query, args, err := psql().
		Insert(donorTableName).
		SetMap(utils.StructToMap(donor)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			blood_type = EXCLUDED.blood_type,
			is_available = EXCLUDED.is_available,
			availability_radius_km = EXCLUDED.availability_radius_km,
			timezone = EXCLUDED.timezone,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert donor query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to upsert donor")
}

// DonorsNear prefilters with a bounding box on (lat, lng) and refines by
// great-circle distance, closest first.
func (r *DonorRepository) DonorsNear(ctx context.Context, point types.GeoPoint, radiusKm float64, bloodTypes []types.BloodType) ([]*types.DonorProfile, error) {
	box := geo.Around(point, radiusKm)

	builder := psql().
		Select(donorColumns...).
		From(donorTableName).
		Where(sq.And{
			sq.GtOrEq{"lat": box.MinLat},
			sq.LtOrEq{"lat": box.MaxLat},
			sq.GtOrEq{"lng": box.MinLng},
			sq.LtOrEq{"lng": box.MaxLng},
		})

	if len(bloodTypes) > 0 {
		builder = builder.Where(sq.Eq{"blood_type": bloodTypes})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donors near query: %w", err)
	}

	var candidates []*types.DonorProfile
	err = pgxscan.Select(ctx, r.pool, &candidates, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch donors near point: %w", err)
	}

	distances := make(map[string]float64, len(candidates))
	donors := make([]*types.DonorProfile, 0, len(candidates))
	for _, d := range candidates {
		distance := geo.DistanceKm(point, d.GeoPoint)
		if distance > radiusKm {
			continue
		}
		distances[d.ID] = distance
		donors = append(donors, d)
	}

	sort.Slice(donors, func(i, j int) bool {
		a, b := donors[i], donors[j]
		if distances[a.ID] != distances[b.ID] {
			return distances[a.ID] < distances[b.ID]
		}
		return a.ID < b.ID
	})

	return donors, nil
}
