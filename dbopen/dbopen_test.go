package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		url     string
		dialect Dialect
		dsn     string
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/tracker", Postgres, "postgres://u:p@localhost:5432/tracker", false},
		{"postgresql://u:p@localhost/tracker", Postgres, "postgresql://u:p@localhost/tracker", false},
		{"sqlite://tracker.db", SQLite, "tracker.db", false},
		{"sqlite:///data/tracker.db", SQLite, "/data/tracker.db", false},
		{"tracker.db", SQLite, "tracker.db", false},
		{"mysql://u:p@localhost/tracker", 0, "", true},
		{"sqlite://", 0, "", true},
		{"", 0, "", true},
	}
	for _, tt := range tests {
		dialect, dsn, err := Parse(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.url, err)
			continue
		}
		if dialect != tt.dialect || dsn != tt.dsn {
			t.Errorf("Parse(%q) = (%v, %q), want (%v, %q)", tt.url, dialect, dsn, tt.dialect, tt.dsn)
		}
	}
}

func TestOpenSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "t.db")
	db, dialect, err := Open("sqlite://"+path, WithMkdirAll())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if dialect != SQLite {
		t.Fatalf("dialect = %v, want sqlite", dialect)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpenUnknownScheme(t *testing.T) {
	_, _, err := Open("redis://localhost:6379")
	if err == nil {
		t.Fatal("expected error for unknown scheme")
	}
	if !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	db := OpenMemory(t)
	if _, err := db.Exec("CREATE TABLE x(id INTEGER)"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO x VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM x").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestRunTxRollsBackOnError(t *testing.T) {
	db := OpenMemory(t)
	if _, err := db.Exec("CREATE TABLE x(id INTEGER)"); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("boom")
	err := RunTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO x VALUES (1)"); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("RunTx error = %v, want %v", err, wantErr)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM x").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("rollback failed, count = %d", n)
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Fatal("nil should not be busy")
	}
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatal("SQLITE_BUSY not detected")
	}
	if IsBusy(errors.New("pq: connection refused")) {
		t.Fatal("postgres error misclassified as busy")
	}
}
