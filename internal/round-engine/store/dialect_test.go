package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/updown-rounds/internal/shared/db"
)

func TestDialect(t *testing.T) {
	const q = `UPDATE rounds SET status = ?, x = ? WHERE id = ? AND status = ?`

	tests := []struct {
		driver     string
		wantQuery  string
		wantSuffix string
	}{
		{db.DriverPostgres, `UPDATE rounds SET status = $1, x = $2 WHERE id = $3 AND status = $4`, " FOR UPDATE"},
		{db.DriverSQLite, q, ""},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := newDialect(tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, d.rebind(q))
			assert.Equal(t, tt.wantSuffix, d.forUpdate)
		})
	}

	_, err := newDialect("mysql")
	assert.Error(t, err)
}

func TestRebind_ManyPlaceholders(t *testing.T) {
	d, err := newDialect(db.DriverPostgres)
	require.NoError(t, err)

	got := d.rebind(`INSERT INTO t VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	assert.Equal(t, `INSERT INTO t VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, got)
	assert.Equal(t, `SELECT 1`, d.rebind(`SELECT 1`))
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres unique wrapped", fmt.Errorf("insert bet: %w", &pq.Error{Code: "23505"}), true},
		{"postgres check", &pq.Error{Code: "23514"}, false},
		{"postgres foreign key", fmt.Errorf("insert bet: %w", &pq.Error{Code: "23503"}), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}
