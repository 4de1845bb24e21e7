package leads

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore persists leads in the leads table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (*SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Deliver(ctx context.Context, l Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (
			id, received_at, catalog_revision,
			filename, technology, material, finish, delivery, quantity, estimated_price,
			name, company, email, phone,
			surface_structure, color_request, application_use, additional_notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID, l.ReceivedAt.UTC().Format(time.RFC3339Nano), nullable(l.CatalogRevision),
		l.Filename, l.Technology, l.Material, l.Finish, l.Delivery, l.Quantity, l.EstimatedPrice,
		l.Name, nullable(l.Company), l.Email, l.Phone,
		nullable(l.SurfaceStructure), nullable(l.ColorRequest), nullable(l.ApplicationUse), nullable(l.AdditionalNotes),
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// Recent returns up to limit leads, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id, received_at, COALESCE(catalog_revision, ''),
			filename, technology, material, finish, delivery, quantity, estimated_price,
			name, COALESCE(company, ''), email, phone,
			COALESCE(surface_structure, ''), COALESCE(color_request, ''),
			COALESCE(application_use, ''), COALESCE(additional_notes, '')
		FROM leads
		ORDER BY received_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var (
			l          Lead
			receivedAt string
		)
		if err := rows.Scan(
			&l.ID, &receivedAt, &l.CatalogRevision,
			&l.Filename, &l.Technology, &l.Material, &l.Finish, &l.Delivery, &l.Quantity, &l.EstimatedPrice,
			&l.Name, &l.Company, &l.Email, &l.Phone,
			&l.SurfaceStructure, &l.ColorRequest, &l.ApplicationUse, &l.AdditionalNotes,
		); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		l.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parse lead %s received_at: %w", l.ID, err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
