package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestMigrationFilesSorted(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"002_b.sql": "SELECT 2", "001_a.sql": "SELECT 1", "README.md": "docs",
	})
	files, err := MigrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}

func TestMigrateSkipsApplied(t *testing.T) {
	db, mock := setupTestDB(t)
	dir := writeMigrations(t, map[string]string{
		"001_a.sql":     "CREATE TABLE a (id INT)",
		"002_b.sql":     "CREATE TABLE b (id INT)",
		"003_empty.sql": "  \n",
	})

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_a.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE b \(id INT\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_b.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := Migrate(context.Background(), db, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsAtFailure(t *testing.T) {
	db, mock := setupTestDB(t)
	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "CREATE TABLE a (id INT)",
		"002_b.sql": "CREATE TABLE b (id INT)",
	})

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE a \(id INT\)`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	n, err := Migrate(context.Background(), db, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_a.sql")
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
