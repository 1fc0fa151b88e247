package store

import (
	"context"
	"fmt"

	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	donationTableName = "donation_records"
	auditTableName    = "donation_audit"
)

var (
	donationColumns = utils.StructTagValues(types.DonationRecord{})
	auditColumns    = utils.StructTagValues(types.AuditEntry{})
)

type DonationRepository struct {
	pool *pgxpool.Pool
}

func NewDonationRepository(pool *pgxpool.Pool) *DonationRepository {
	return &DonationRepository{pool: pool}
}

func (r *DonationRepository) Donation(ctx context.Context, recordID string) (*types.DonationRecord, error) {
	return donationByID(ctx, r.pool, recordID, false)
}

func donationByID(ctx context.Context, db pgxscan.Querier, recordID string, forUpdate bool) (*types.DonationRecord, error) {
	builder := psql().
		Select(donationColumns...).
		From(donationTableName).
		Where(sq.Eq{"id": recordID})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donation query: %w", err)
	}

	var record types.DonationRecord
	err = pgxscan.Get(ctx, db, &record, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.NotFound(types.ErrDonationNotFound, recordID)
		}
		return nil, fmt.Errorf("failed to fetch donation: %w", err)
	}

	return &record, nil
}

func (r *DonationRepository) DonationsByDonor(ctx context.Context, donorID string) ([]*types.DonationRecord, error) {
	query, args, err := psql().
		Select(donationColumns...).
		From(donationTableName).
		Where(sq.Eq{"donor_id": donorID}).
		OrderBy("donation_date DESC", "created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donations query: %w", err)
	}

	records := []*types.DonationRecord{}
	err = pgxscan.Select(ctx, r.pool, &records, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch donations: %w", err)
	}

	return records, nil
}

// LastVerifiedDonation returns nil without error when the donor has no
// verified record.
func (r *DonationRepository) LastVerifiedDonation(ctx context.Context, donorID string) (*types.DonationRecord, error) {
	query, args, err := psql().
		Select(donationColumns...).
		From(donationTableName).
		Where(sq.Eq{"donor_id": donorID, "verification_status": types.VerificationVerified}).
		OrderBy("donation_date DESC", "created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate last donation query: %w", err)
	}

	var record types.DonationRecord
	err = pgxscan.Get(ctx, r.pool, &record, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch last donation: %w", err)
	}

	return &record, nil
}

func (r *DonationRepository) CreateDonation(ctx context.Context, record *types.DonationRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := donorExists(ctx, tx, record.DonorID); err != nil {
		return err
	}

	query, args, err := psql().
		Insert(donationTableName).
		SetMap(utils.StructToMap(record)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert donation query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert donation: %w", err)
	}

	if err := refreshDonorStats(ctx, tx, record.DonorID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateDonation locks the record row, applies mutate, and writes the
// record, its audit entry and the donor's derived stats together.
func (r *DonationRepository) UpdateDonation(ctx context.Context, recordID string, mutate types.DonationMutator) (*types.DonationRecord, *types.AuditEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	record, err := donationByID(ctx, tx, recordID, true)
	if err != nil {
		return nil, nil, err
	}

	entry, err := mutate(record)
	if err != nil {
		return nil, nil, err
	}

	values := utils.StructToMap(record)
	delete(values, "id")
	delete(values, "created_at")

	query, args, err := psql().
		Update(donationTableName).
		SetMap(values).
		Where(sq.Eq{"id": recordID}).
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate update donation query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, nil, fmt.Errorf("failed to update donation: %w", err)
	}

	if entry != nil {
		query, args, err = psql().
			Insert(auditTableName).
			SetMap(utils.StructToMap(entry)).
			ToSql()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate insert audit query: %w", err)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return nil, nil, fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}

	if err := refreshDonorStats(ctx, tx, record.DonorID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return record, entry, nil
}

func (r *DonationRepository) AuditTrail(ctx context.Context, recordID string) ([]*types.AuditEntry, error) {
	query, args, err := psql().
		Select(auditColumns...).
		From(auditTableName).
		Where(sq.Eq{"record_id": recordID}).
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate audit trail query: %w", err)
	}

	entries := []*types.AuditEntry{}
	err = pgxscan.Select(ctx, r.pool, &entries, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit trail: %w", err)
	}

	return entries, nil
}

// refreshDonorStats derives last_donation_date and total_donations from the
// donor's verified records.
func refreshDonorStats(ctx context.Context, tx pgx.Tx, donorID string) error {
	const stats = `UPDATE donors SET
		last_donation_date = s.last_date,
		total_donations = s.total,
		updated_at = now()
	FROM (
		SELECT max(donation_date) AS last_date, count(*) AS total
		FROM donation_records
		WHERE donor_id = $1 AND verification_status = $2
	) s
	WHERE donors.id = $1`

	_, err := tx.Exec(ctx, stats, donorID, types.VerificationVerified)
	return utils.ErrorWrapOrNil(err, "failed to refresh donor stats")
}
