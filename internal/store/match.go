package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bloodbridge/internal/utils"
	"bloodbridge/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	matchTableName     = "matches"
	candidateTableName = "match_candidates"
	eventTableName     = "match_events"

	openMatchIndex   = "idx_matches_one_open_per_request"
	oneAcceptIndex   = "idx_match_candidates_one_accept"
	candidateDonorFK = "match_candidates_donor_fkey"
	candidateAlias   = "c"
	matchAlias       = "m"
	donorLockClause  = "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))"
)

var (
	matchColumns     = utils.StructTagValues(types.BloodRequestMatch{})
	candidateColumns = utils.StructTagValues(types.Candidate{})
	eventColumns     = utils.StructTagValues(types.MatchEvent{})
)

type MatchRepository struct {
	pool *pgxpool.Pool
}

func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// CreateMatch inserts the match and its candidates. Every candidate donor
// must exist. A second open match for the same request trips the partial
// unique index and is reported as a conflict.
func (r *MatchRepository) CreateMatch(ctx context.Context, m *types.BloodRequestMatch) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	donorIDs := make([]string, len(m.Candidates))
	for i, c := range m.Candidates {
		donorIDs[i] = c.DonorID
	}

	if err := missingDonor(ctx, tx, donorIDs); err != nil {
		return err
	}

	query, args, err := psql().
		Insert(matchTableName).
		SetMap(utils.StructToMap(m)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert match query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err, openMatchIndex) {
			return types.NewConflict(types.ErrMatchExists, nil)
		}
		return fmt.Errorf("failed to insert match: %w", err)
	}

	if len(m.Candidates) > 0 {
		builder := psql().Insert(candidateTableName).Columns(candidateColumns...)
		for _, c := range m.Candidates {
			builder = builder.Values(c.ID, c.MatchID, c.DonorID, c.Position, c.Response, c.Reason, c.RespondedAt, c.ExpiresAt, c.CreatedAt)
		}

		query, args, err = builder.ToSql()
		if err != nil {
			return fmt.Errorf("failed to generate insert candidates query: %w", err)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			// a donor deleted after the existence check
			if isForeignKeyViolation(err, candidateDonorFK) {
				return types.NotFound(types.ErrDonorNotFound, strings.Join(donorIDs, ","))
			}
			return fmt.Errorf("failed to insert candidates: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// missingDonor reports the first of donorIDs with no donor row.
func missingDonor(ctx context.Context, db pgxscan.Querier, donorIDs []string) error {
	if len(donorIDs) == 0 {
		return nil
	}

	query, args, err := psql().
		Select("id").
		From(donorTableName).
		Where(sq.Eq{"id": donorIDs}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate donor lookup query: %w", err)
	}

	var found []string
	if err := pgxscan.Select(ctx, db, &found, query, args...); err != nil {
		return fmt.Errorf("failed to look up candidate donors: %w", err)
	}

	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}

	for _, id := range donorIDs {
		if _, ok := known[id]; !ok {
			return types.NotFound(types.ErrDonorNotFound, id)
		}
	}

	return nil
}

func (r *MatchRepository) Match(ctx context.Context, matchID string) (*types.BloodRequestMatch, error) {
	return loadMatch(ctx, r.pool, matchID, false)
}

func loadMatch(ctx context.Context, db pgxscan.Querier, matchID string, forUpdate bool) (*types.BloodRequestMatch, error) {
	builder := psql().
		Select(matchColumns...).
		From(matchTableName).
		Where(sq.Eq{"id": matchID})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate match query: %w", err)
	}

	var m types.BloodRequestMatch
	err = pgxscan.Get(ctx, db, &m, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.NotFound(types.ErrMatchNotFound, matchID)
		}
		return nil, fmt.Errorf("failed to fetch match: %w", err)
	}

	query, args, err = psql().
		Select(candidateColumns...).
		From(candidateTableName).
		Where(sq.Eq{"match_id": matchID}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate candidates query: %w", err)
	}

	m.Candidates = []*types.Candidate{}
	err = pgxscan.Select(ctx, db, &m.Candidates, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}

	return &m, nil
}

func (r *MatchRepository) MatchIDByCandidate(ctx context.Context, candidateID string) (string, error) {
	query, args, err := psql().
		Select("match_id").
		From(candidateTableName).
		Where(sq.Eq{"id": candidateID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to generate candidate lookup query: %w", err)
	}

	var matchID string
	err = pgxscan.Get(ctx, r.pool, &matchID, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return "", types.NotFound(types.ErrCandidateMissing, candidateID)
		}
		return "", fmt.Errorf("failed to look up candidate: %w", err)
	}

	return matchID, nil
}

// UpdateMatch holds the match row lock while mutate runs, then writes the
// match header, every candidate whose response changed, and the events.
func (r *MatchRepository) UpdateMatch(ctx context.Context, matchID string, mutate types.MatchMutator) (*types.BloodRequestMatch, []*types.MatchEvent, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	current, err := loadMatch(ctx, tx, matchID, true)
	if err != nil {
		return nil, nil, err
	}

	next := current.Clone()
	events, err := mutate(ctx, next, &matchTx{tx: tx})
	if err != nil {
		return nil, nil, err
	}

	if len(events) == 0 {
		return current, nil, nil
	}

	next.Version = current.Version + 1

	query, args, err := psql().
		Update(matchTableName).
		SetMap(map[string]any{
			"status":      next.Status,
			"version":     next.Version,
			"resolved_at": next.ResolvedAt,
			"updated_at":  next.UpdatedAt,
		}).
		Where(sq.Eq{"id": matchID, "version": current.Version}).
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate update match query: %w", err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil, types.NewConflict(types.ErrVersionMismatch, current)
	}

	for i, c := range next.Candidates {
		prev := current.Candidates[i]
		if c.Response == prev.Response && utils.PtrString(c.Reason) == utils.PtrString(prev.Reason) {
			continue
		}

		query, args, err := psql().
			Update(candidateTableName).
			SetMap(map[string]any{
				"response":     c.Response,
				"reason":       c.Reason,
				"responded_at": c.RespondedAt,
			}).
			Where(sq.Eq{"id": c.ID}).
			ToSql()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate update candidate query: %w", err)
		}

		if _, err := tx.Exec(ctx, query, args...); err != nil {
			if isUniqueViolation(err, oneAcceptIndex) {
				return nil, nil, types.NewConflict(types.ErrAlreadyFulfilled, current)
			}
			return nil, nil, fmt.Errorf("failed to update candidate: %w", err)
		}
	}

	builder := psql().Insert(eventTableName).Columns(eventColumns...)
	for _, e := range events {
		builder = builder.Values(e.ID, e.MatchID, e.RequestID, e.CandidateID, e.DonorID, e.Kind, e.Reason, e.OccurredAt)
	}

	query, args, err = builder.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate insert events query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, nil, fmt.Errorf("failed to insert match events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return next, events, nil
}

// matchTx exposes the open transaction to a mutator. Donor locks are
// transaction scoped advisory locks and are released on commit or rollback.
type matchTx struct {
	tx pgx.Tx
}

func (t *matchTx) LockDonor(ctx context.Context, donorID string) error {
	_, err := t.tx.Exec(ctx, donorLockClause, donorID)
	return utils.ErrorWrapOrNil(err, "failed to lock donor")
}

func (t *matchTx) ActiveAcceptances(ctx context.Context, donorID, excludeMatchID string, since time.Time) (int, error) {
	query, args, err := psql().
		Select("count(*)").
		From(candidateTableName).
		Where(sq.Eq{"donor_id": donorID, "response": types.ResponseAccepted}).
		Where(sq.NotEq{"match_id": excludeMatchID}).
		Where(sq.GtOrEq{"responded_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate active acceptances query: %w", err)
	}

	var n int
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active acceptances: %w", err)
	}

	return n, nil
}

func (r *MatchRepository) EventsByMatch(ctx context.Context, matchID string) ([]*types.MatchEvent, error) {
	query, args, err := psql().
		Select(eventColumns...).
		From(eventTableName).
		Where(sq.Eq{"match_id": matchID}).
		OrderBy("occurred_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate match events query: %w", err)
	}

	events := []*types.MatchEvent{}
	err = pgxscan.Select(ctx, r.pool, &events, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch match events: %w", err)
	}

	return events, nil
}

// OverdueCandidates lists pending candidates of open matches whose deadline
// is at or before now, earliest deadline first.
func (r *MatchRepository) OverdueCandidates(ctx context.Context, now time.Time, limit int) ([]string, error) {
	builder := psql().
		Select(candidateAlias+".id").
		From(candidateTableName+" "+candidateAlias).
		Join(matchTableName+" "+matchAlias+" ON "+matchAlias+".id = "+candidateAlias+".match_id").
		Where(sq.Eq{
			candidateAlias + ".response": types.ResponsePending,
			matchAlias + ".status":       types.MatchStatusOpen,
		}).
		Where(sq.LtOrEq{candidateAlias + ".expires_at": now}).
		OrderBy(candidateAlias+".expires_at ASC", candidateAlias+".id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate overdue candidates query: %w", err)
	}

	ids := []string{}
	err = pgxscan.Select(ctx, r.pool, &ids, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch overdue candidates: %w", err)
	}

	return ids, nil
}

// DonorExposure counts the donor's candidacies across all matches in one
// pass using filtered aggregates.
func (r *MatchRepository) DonorExposure(ctx context.Context, donorID string, holdSince, recentSince time.Time) (*types.DonorExposure, error) {
	query, args, err := psql().
		Select().
		Column(sq.Expr("count(*) FILTER (WHERE c.response = 'accepted' AND c.responded_at >= ?)", holdSince)).
		Column("count(*) FILTER (WHERE c.response = 'pending' AND m.status = 'open')").
		Column(sq.Expr("count(*) FILTER (WHERE c.created_at >= ?)", recentSince)).
		From(candidateTableName+" "+candidateAlias).
		Join(matchTableName+" "+matchAlias+" ON "+matchAlias+".id = "+candidateAlias+".match_id").
		Where(sq.Eq{candidateAlias + ".donor_id": donorID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate donor exposure query: %w", err)
	}

	out := &types.DonorExposure{DonorID: donorID}
	err = r.pool.QueryRow(ctx, query, args...).Scan(&out.ActiveAccepted, &out.OpenPending, &out.RecentMatches)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch donor exposure: %w", err)
	}

	return out, nil
}
