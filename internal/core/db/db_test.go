package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB returns a migrated sqlite database in a temp directory.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "sieve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = MigrateUp(ctx, db)
	require.NoError(t, err)
	return db
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{"sqlite://data/sieve.db", "sqlite3", "data/sieve.db", false},
		{"sqlite://./data/sieve.db", "sqlite3", "./data/sieve.db", false},
		{"sqlite:///var/lib/sieve.db", "sqlite3", "/var/lib/sieve.db", false},
		{"postgres://u:p@localhost:5432/sieve?sslmode=disable", "postgres", "postgres://u:p@localhost:5432/sieve?sslmode=disable", false},
		{"mysql://localhost/db", "", "", true},
		{"sqlite://", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, source, err := parseURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	n, err := MigrateUp(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run applies nothing")

	statuses, err := MigrateStatus(ctx, db)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.ID)
		assert.NotNil(t, s.AppliedAt, s.ID)
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, "UPDATE migrations SET checksum = 'tampered'")
	require.NoError(t, err)

	_, err = MigrateUp(ctx, db)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestSplitStatements(t *testing.T) {
	sql := "-- header\nCREATE TABLE a (x INT);\n\n-- next\nCREATE INDEX i ON a (x);\n"
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, splitStatements(sql))
}

func TestLoadQueries(t *testing.T) {
	db := openTestDB(t)
	q, err := LoadQueries(db)
	require.NoError(t, err)

	for _, name := range []string{"list-rules", "list-enabled-rules", "get-rule", "upsert-rule", "update-rule", "delete-rule", "min-order", "max-order", "search-rules", "find-rules-by-name"} {
		_, err := q.raw(name)
		assert.NoError(t, err, name)
	}
	_, err = q.raw("no-such-query")
	assert.Error(t, err)
}
