package sqlitemigrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return sqlDB
}

func TestApplyMigrationsRequiresDB(t *testing.T) {
	t.Parallel()

	if err := ApplyMigrations(nil, fstest.MapFS{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestApplyMigrationsRunsFilesInOrder(t *testing.T) {
	t.Parallel()

	sqlDB := openTestDB(t)
	fsys := fstest.MapFS{
		"0002_rows.sql": &fstest.MapFile{Data: []byte(
			"-- +migrate Up\nINSERT INTO items (name) VALUES ('from-second');\n-- +migrate Down\nDELETE FROM items;",
		)},
		"0001_table.sql": &fstest.MapFile{Data: []byte(
			"-- +migrate Up\nCREATE TABLE items (name TEXT);\n-- +migrate Down\nDROP TABLE items;",
		)},
	}

	if err := ApplyMigrations(sqlDB, fsys); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 1 {
		t.Fatalf("item count = %d, want 1", count)
	}
}

func TestApplyMigrationsSkipsAppliedFiles(t *testing.T) {
	t.Parallel()

	sqlDB := openTestDB(t)
	fsys := fstest.MapFS{
		"0001_table.sql": &fstest.MapFile{Data: []byte(
			"-- +migrate Up\nCREATE TABLE items (name TEXT);\nINSERT INTO items (name) VALUES ('seed');",
		)},
	}

	if err := ApplyMigrations(sqlDB, fsys); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := ApplyMigrations(sqlDB, fsys); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM items").Scan(&count); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 1 {
		t.Fatalf("item count after rerun = %d, want 1", count)
	}

	var recorded int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&recorded); err != nil {
		t.Fatalf("count tracking rows: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("tracking rows = %d, want 1", recorded)
	}
}

func TestApplyMigrationsToleratesExistingSchema(t *testing.T) {
	t.Parallel()

	sqlDB := openTestDB(t)
	if _, err := sqlDB.Exec("CREATE TABLE items (name TEXT)"); err != nil {
		t.Fatalf("pre-create table: %v", err)
	}

	fsys := fstest.MapFS{
		"0001_table.sql": &fstest.MapFile{Data: []byte(
			"-- +migrate Up\nCREATE TABLE items (name TEXT);",
		)},
	}
	if err := ApplyMigrations(sqlDB, fsys); err != nil {
		t.Fatalf("apply over existing schema: %v", err)
	}
}

func TestUpSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "both markers",
			content: "-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;",
			want:    "\nCREATE TABLE a (x);\n",
		},
		{
			name:    "no markers runs whole file",
			content: "CREATE TABLE a (x);",
			want:    "CREATE TABLE a (x);",
		},
		{
			name:    "up only",
			content: "-- +migrate Up\nCREATE TABLE a (x);",
			want:    "\nCREATE TABLE a (x);",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := UpSection(tt.content); got != tt.want {
				t.Fatalf("got = %q, want %q", got, tt.want)
			}
		})
	}
}
