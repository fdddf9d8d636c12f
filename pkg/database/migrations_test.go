package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsSortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_events.sql":  {Data: []byte("CREATE TABLE events ();")},
		"0001_users.sql":   {Data: []byte("CREATE TABLE users ();")},
		"README.md":        {Data: []byte("ignored")},
		"0010_canteen.sql": {Data: []byte("CREATE TABLE menu_items ();")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
	assert.Equal(t, "users", migrations[0].Name)

	_, err = LoadMigrations(fstest.MapFS{"initial.sql": {Data: []byte("")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"0001_a.sql": {Data: []byte("")},
		"001_b.sql":  {Data: []byte("")},
	})
	assert.ErrorContains(t, err, "version 1")
}

func TestMigratorAppliesPendingOnly(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	fsys := fstest.MapFS{
		"0001_users.sql":  {Data: []byte("CREATE TABLE users (id TEXT)")},
		"0002_events.sql": {Data: []byte("CREATE TABLE events (id TEXT)")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE events (id TEXT)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs(2, "events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrator(db, nil).Run(context.Background(), fsys))
	assert.NoError(t, mock.ExpectationsWereMet())
}
