package seed

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Simplici0/meshquote/internal/catalog"
)

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Revision is the catalog fingerprint recorded by Run.
type Revision struct {
	Fingerprint string
	Source      string
}

// Run records the loaded catalog in catalog_revisions in an idempotent
// way: the first run for a fingerprint inserts it, later runs only touch
// last_seen_at.
func Run(db *sql.DB, cat *catalog.Catalog, source string, now time.Time) (Revision, Stats, error) {
	fingerprint, err := cat.Fingerprint()
	if err != nil {
		return Revision{}, Stats{}, fmt.Errorf("fingerprint catalog: %w", err)
	}
	rev := Revision{Fingerprint: fingerprint, Source: source}

	tx, err := db.Begin()
	if err != nil {
		return Revision{}, Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}
	if err := ensureRevision(tx, cat, rev, now, &stats); err != nil {
		_ = tx.Rollback()
		return Revision{}, Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Revision{}, Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return rev, stats, nil
}

func ensureRevision(tx *sql.Tx, cat *catalog.Catalog, rev Revision, now time.Time, stats *Stats) error {
	seenAt := now.UTC().Format(time.RFC3339Nano)

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM catalog_revisions WHERE fingerprint = ? LIMIT 1)`, rev.Fingerprint).Scan(&exists); err != nil {
		return fmt.Errorf("check catalog revision existence: %w", err)
	}
	if exists {
		if _, err := tx.Exec(`UPDATE catalog_revisions SET last_seen_at = ?, source = ? WHERE fingerprint = ?`, seenAt, rev.Source, rev.Fingerprint); err != nil {
			return fmt.Errorf("update catalog revision: %w", err)
		}
		stats.Updates++
		return nil
	}

	categories, methods, materials := cat.Counts()
	if _, err := tx.Exec(`
		INSERT INTO catalog_revisions (fingerprint, source, categories, methods, materials, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rev.Fingerprint, rev.Source, categories, methods, materials, seenAt, seenAt); err != nil {
		return fmt.Errorf("insert catalog revision: %w", err)
	}
	stats.Inserts++
	return nil
}
