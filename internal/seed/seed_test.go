package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simplici0/meshquote/internal/catalog"
	"github.com/Simplici0/meshquote/internal/db"
	"github.com/Simplici0/meshquote/internal/migrations"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "seed-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(context.Background(), database, zerolog.Nop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	database := openMigrated(t)
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var first Revision
	for i := 0; i < 10; i++ {
		rev, stats, err := Run(database, cat, "embedded", start.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			first = rev
			if stats.Inserts != 1 || stats.Updates != 0 {
				t.Fatalf("expected 1 insert in first run, got %+v", stats)
			}
			continue
		}
		if rev != first {
			t.Fatalf("revision changed between runs: %+v vs %+v", rev, first)
		}
		if stats.Inserts != 0 || stats.Updates != 1 {
			t.Fatalf("expected only an update in iteration %d, got %+v", i, stats)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM catalog_revisions WHERE fingerprint = ?`, first.Fingerprint, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM catalog_revisions WHERE methods = 13 AND materials = 38`, nil, 1)

	var firstSeen, lastSeen string
	if err := database.QueryRow(`SELECT first_seen_at, last_seen_at FROM catalog_revisions`).Scan(&firstSeen, &lastSeen); err != nil {
		t.Fatalf("query seen times: %v", err)
	}
	if firstSeen != "2024-01-02T03:04:05Z" || lastSeen != "2024-01-02T03:13:05Z" {
		t.Fatalf("seen times = %s / %s", firstSeen, lastSeen)
	}
}

func TestRunRecordsNewRevisionWhenCatalogChanges(t *testing.T) {
	t.Parallel()

	database := openMigrated(t)
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	a, _, err := Run(database, cat, "embedded", time.Now())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	cat.Categories[0].Methods[0].StartupFee += 5
	b, stats, err := Run(database, cat, "embedded", time.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if a.Fingerprint == b.Fingerprint || stats.Inserts != 1 {
		t.Fatalf("changed catalog not recorded: %+v %+v", b, stats)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM catalog_revisions`, nil, 2)
}

func assertCount(t *testing.T, database *sql.DB, query string, arg any, expected int) {
	t.Helper()

	var args []any
	if arg != nil {
		args = append(args, arg)
	}

	var count int
	if err := database.QueryRow(query, args...).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("count = %d, want %d (%s)", count, expected, query)
	}
}
