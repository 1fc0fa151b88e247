package store

import (
	"errors"
	"fmt"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "idx_matches_one_open_per_request"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "any constraint", err: dup, want: true},
		{name: "named constraint", err: dup, constraint: "idx_matches_one_open_per_request", want: true},
		{name: "other constraint", err: dup, constraint: "idx_match_candidates_one_accept", want: false},
		{name: "wrapped", err: fmt.Errorf("failed to insert match: %w", dup), constraint: "idx_matches_one_open_per_request", want: true},
		{name: "other code", err: &pgconn.PgError{Code: "23503"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err, tt.constraint))
		})
	}
}

func TestPsqlUsesDollarPlaceholders(t *testing.T) {
	query, args, err := psql().
		Select("id").
		From("donors").
		Where(sq.Eq{"id": "dnr_1", "blood_type": "O-"}).
		ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT id FROM donors WHERE blood_type = $1 AND id = $2", query)
	assert.Equal(t, []any{"O-", "dnr_1"}, args)
}

func TestIsForeignKeyViolation(t *testing.T) {
	fk := &pgconn.PgError{Code: foreignKeyViolation, ConstraintName: candidateDonorFK}

	assert.True(t, isForeignKeyViolation(fmt.Errorf("failed to insert candidates: %w", fk), candidateDonorFK))
	assert.False(t, isForeignKeyViolation(fk, "donation_records_donor_id_fkey"))
	assert.False(t, isUniqueViolation(fk, ""))
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: uniqueViolation, ConstraintName: candidateDonorFK}, candidateDonorFK))
}
