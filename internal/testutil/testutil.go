// Package testutil provides shared test helpers for databases and processors.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/solatis/metasync/internal/core/db"
)

// TestQueries creates a migrated temporary SQLite database and returns its
// named queries. The database is closed when the test ends.
func TestQueries(t *testing.T) *db.Queries {
	t.Helper()

	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "metasync-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.MigrateUp(conn); err != nil {
		t.Fatal(err)
	}

	queries, err := db.LoadQueries(conn)
	if err != nil {
		t.Fatal(err)
	}
	return queries
}
