package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/trialnotes/internal/config"
	"github.com/rpattn/trialnotes/internal/logger"
)

func TestBuilder_Placeholders(t *testing.T) {
	query, _, err := Builder(DialectPostgres).Select("id").From("entries").Where("nct_id = ?", "NCT1").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM entries WHERE nct_id = $1", query)

	query, _, err = Builder(DialectSQLite).Select("id").From("entries").Where("nct_id = ?", "NCT1").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM entries WHERE nct_id = ?", query)
}

func TestWithTx_Commit(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	db := New(conn, DialectSQLite, nil)
	err = db.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("UPDATE entries SET notes = ?", "n")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	db := New(conn, DialectSQLite, nil)
	err = db.WithTx(context.Background(), func(*sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	db := New(conn, DialectSQLite, nil)
	assert.Panics(t, func() {
		_ = db.WithTx(context.Background(), func(*sql.Tx) error { panic("bad") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("x")))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.True(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))

	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))
	assert.True(t, IsForeignKeyViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Database{Driver: "mysql", DSN: "x"}, logger.Nop())
	assert.Error(t, err)
}

func TestMigrate_DBError(t *testing.T) {
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	err = New(conn, DialectPostgres, nil).Migrate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration error")
}

func TestSQLite_MigrateTwice(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trialnotes.db")

	db, err := NewConnectSQLite(ctx, path, logger.Nop())
	if err != nil {
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	defer db.Close()

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM custom_field_entries").Scan(&n))
	assert.Zero(t, n)
}
