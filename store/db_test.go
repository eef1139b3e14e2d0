package store

import (
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/lefinal/masc-devices/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestGetDBMigrationsToDo(t *testing.T) {
	tests := []struct {
		name    string
		version dbVersion
		want    []dbMigration
		wantErr bool
	}{
		{
			name:    "zero",
			version: dbVersionZero,
			want:    dbMigrations,
		},
		{
			name:    "first",
			version: "1.0",
			want:    dbMigrations[1:],
		},
		{
			name:    "latest",
			version: dbMigrations[len(dbMigrations)-1].version,
			want:    []dbMigration{},
		},
		{
			name:    "unknown",
			version: "meow",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := getDBMigrationsToDo(tt.version)
			if tt.wantErr {
				require.Error(t, err, "should fail")
				e, _ := errors.Cast(err)
				assert.Equal(t, errors.ErrNotFound, e.Code, "should return not found")
				return
			}
			require.NoError(t, err, "should not fail")
			assert.Equal(t, tt.want, got, "should return correct migrations")
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, migration := range dbMigrations {
		assert.NotEmpty(t, migration.up, "should embed migration %v", migration.version)
	}
}

func TestUpdateDBVersionQuery(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		q, err := updateDBVersionQuery(dbVersionZero, "1.1")
		require.NoError(t, err, "should not fail")
		assert.Contains(t, q, `INSERT INTO "masc"`, "should insert")
		assert.Contains(t, q, "'db-version'", "should set correct key")
	})
	t.Run("update", func(t *testing.T) {
		q, err := updateDBVersionQuery("1.0", "1.1")
		require.NoError(t, err, "should not fail")
		assert.Contains(t, q, `UPDATE "masc"`, "should update")
		assert.Contains(t, q, "'db-version'", "should filter correct key")
	})
}

func TestIsVersionMissing(t *testing.T) {
	assert.True(t, isVersionMissing(pgx.ErrNoRows), "should accept no rows")
	assert.True(t, isVersionMissing(&pgconn.PgError{Code: pgErrUndefinedTable}), "should accept missing table")
	assert.False(t, isVersionMissing(&pgconn.PgError{Code: "42601"}), "should not accept syntax error")
	assert.False(t, isVersionMissing(errors.NewInternalError("sad life", nil)), "should not accept other")
}
