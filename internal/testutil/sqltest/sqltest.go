// Package sqltest provides a faked database/sql connection for catalog
// and driver-boundary tests, so the suite runs without a SQL Server
// instance.
package sqltest

import (
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

// New returns a faked connection and its expectation handle. Unmet
// expectations fail the test at cleanup.
func New(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}
