package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a named shared in-memory SQLite database. The name is
// derived from t.Name() so parallel tests get isolated databases, and
// percent-encoded so it cannot be misread as DSN query parameters. WAL
// mode does not apply to in-memory databases, so the journal_mode pragma
// is omitted.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		url.PathEscape(t.Name()),
	)

	writer := openTestConn(t, dsn, 1)
	reader := openTestConn(t, dsn, 4)

	db := &DB{Writer: writer, Reader: reader, path: dsn}
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db.Writer))

	return db
}

func openTestConn(t *testing.T, dsn string, maxConns int) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	conn.SetMaxOpenConns(maxConns)
	require.NoError(t, conn.PingContext(context.Background()))

	return conn
}
