package db_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/GalleryKeeper/internal/db"
)

func TestOpen_ErrorPaths(t *testing.T) {
	cases := []struct {
		name       string
		driver     string
		dsn        string
		wantSubstr string
	}{
		{"invalid postgres DSN", db.DriverPostgres, "some=random", "ping postgres"},
		{"unsupported driver", "mysql", "", "unsupported driver"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.Open(context.Background(), tc.driver, tc.dsn)
			if err == nil {
				t.Fatalf("Open(%q, %q) did not return error", tc.driver, tc.dsn)
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("Open(%q) error = %q; want substring %q", tc.dsn, err.Error(), tc.wantSubstr)
			}
		})
	}
}

func TestOpen_SQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")

	conn, err := db.Open(ctx, db.DriverSQLite, path)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer conn.Close()

	for _, table := range []string{"accounts", "preferences"} {
		var name string
		err := conn.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}

	// Re-running migrations on an up-to-date schema is a no-op.
	if err := db.Migrate(ctx, conn, db.DriverSQLite); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}
