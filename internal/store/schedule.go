package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bloodbridge/internal/schedule"
	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	scheduleTableName    = "availability_schedules"
	weeklySlotTableName  = "weekly_slots"
	customRangeTableName = "custom_ranges"
)

var (
	scheduleColumns    = utils.StructTagValues(types.AvailabilitySchedule{})
	weeklySlotColumns  = utils.StructTagValues(types.WeeklySlot{})
	customRangeColumns = utils.StructTagValues(types.CustomRange{})
)

type ScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// Schedule loads the schedule header, slots and ranges. A donor without a
// schedule row gets an empty, disabled schedule.
func (r *ScheduleRepository) Schedule(ctx context.Context, donorID string) (*types.AvailabilitySchedule, error) {
	if err := donorExists(ctx, r.pool, donorID); err != nil {
		return nil, err
	}

	query, args, err := psql().
		Select(scheduleColumns...).
		From(scheduleTableName).
		Where(sq.Eq{"donor_id": donorID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schedule query: %w", err)
	}

	sched := &types.AvailabilitySchedule{DonorID: donorID}
	err = pgxscan.Get(ctx, r.pool, sched, query, args...)
	if err != nil && !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("failed to fetch schedule: %w", err)
	}

	sched.WeeklySlots, err = weeklySlots(ctx, r.pool, donorID)
	if err != nil {
		return nil, err
	}

	query, args, err = psql().
		Select(customRangeColumns...).
		From(customRangeTableName).
		Where(sq.Eq{"donor_id": donorID}).
		OrderBy("start_date ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate custom ranges query: %w", err)
	}

	sched.CustomRanges = []*types.CustomRange{}
	err = pgxscan.Select(ctx, r.pool, &sched.CustomRanges, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch custom ranges: %w", err)
	}

	return sched, nil
}

func weeklySlots(ctx context.Context, db pgxscan.Querier, donorID string) ([]*types.WeeklySlot, error) {
	query, args, err := psql().
		Select(weeklySlotColumns...).
		From(weeklySlotTableName).
		Where(sq.Eq{"donor_id": donorID}).
		OrderBy("day_of_week ASC", "start_minute ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate weekly slots query: %w", err)
	}

	slots := []*types.WeeklySlot{}
	err = pgxscan.Select(ctx, db, &slots, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weekly slots: %w", err)
	}

	return slots, nil
}

func donorExists(ctx context.Context, db execer, donorID string) error {
	query, args, err := psql().
		Select("1").
		From(donorTableName).
		Where(sq.Eq{"id": donorID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate donor exists query: %w", err)
	}

	var one int
	err = db.QueryRow(ctx, query, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NotFound(types.ErrDonorNotFound, donorID)
		}
		return fmt.Errorf("failed to check donor: %w", err)
	}

	return nil
}

// lockSchedule creates the schedule row if needed and locks it for the rest
// of the transaction, serialising slot writers of the same donor.
func lockSchedule(ctx context.Context, tx pgx.Tx, donorID string, now time.Time) error {
	if err := donorExists(ctx, tx, donorID); err != nil {
		return err
	}

	query, args, err := psql().
		Insert(scheduleTableName).
		Columns("donor_id", "enabled", "updated_at").
		Values(donorID, false, now).
		Suffix("ON CONFLICT (donor_id) DO UPDATE SET updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate schedule upsert query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}

	query, args, err = psql().
		Select("donor_id").
		From(scheduleTableName).
		Where(sq.Eq{"donor_id": donorID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate schedule lock query: %w", err)
	}

	var locked string
	if err := tx.QueryRow(ctx, query, args...).Scan(&locked); err != nil {
		return fmt.Errorf("failed to lock schedule: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) UpsertWeeklySlot(ctx context.Context, slot *types.WeeklySlot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := lockSchedule(ctx, tx, slot.DonorID, slot.UpdatedAt); err != nil {
		return err
	}

	existing, err := weeklySlots(ctx, tx, slot.DonorID)
	if err != nil {
		return err
	}

	if err := schedule.CheckSlotOverlap(existing, slot); err != nil {
		return err
	}

	query, args, err := psql().
		Insert(weeklySlotTableName).
		SetMap(utils.StructToMap(slot)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			day_of_week = EXCLUDED.day_of_week,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
			WHERE weekly_slots.donor_id = EXCLUDED.donor_id`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert weekly slot query: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert weekly slot: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.NotFound(types.ErrSlotNotFound, slot.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) DeleteWeeklySlot(ctx context.Context, donorID, slotID string) error {
	return deleteOwned(ctx, r.pool, weeklySlotTableName, donorID, slotID, types.ErrSlotNotFound)
}

func (r *ScheduleRepository) UpsertCustomRange(ctx context.Context, cr *types.CustomRange) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := lockSchedule(ctx, tx, cr.DonorID, cr.UpdatedAt); err != nil {
		return err
	}

	query, args, err := psql().
		Insert(customRangeTableName).
		SetMap(utils.StructToMap(cr)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			is_available = EXCLUDED.is_available,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at
			WHERE custom_ranges.donor_id = EXCLUDED.donor_id`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate upsert custom range query: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to upsert custom range: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return types.NotFound(types.ErrRangeNotFound, cr.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) DeleteCustomRange(ctx context.Context, donorID, rangeID string) error {
	return deleteOwned(ctx, r.pool, customRangeTableName, donorID, rangeID, types.ErrRangeNotFound)
}

func (r *ScheduleRepository) SetScheduleEnabled(ctx context.Context, donorID string, enabled bool) error {
	if err := donorExists(ctx, r.pool, donorID); err != nil {
		return err
	}

	query, args, err := psql().
		Insert(scheduleTableName).
		Columns("donor_id", "enabled", "updated_at").
		Values(donorID, enabled, time.Now()).
		Suffix("ON CONFLICT (donor_id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate set schedule enabled query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to set schedule enabled")
}

func deleteOwned(ctx context.Context, db execer, table, donorID, id string, sentinel *types.NotFoundError) error {
	query, args, err := psql().
		Delete(table).
		Where(sq.Eq{"id": id, "donor_id": donorID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate delete query for %s: %w", table, err)
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	if tag.RowsAffected() == 0 {
		return types.NotFound(sentinel, id)
	}

	return nil
}
