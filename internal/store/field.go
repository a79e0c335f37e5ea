package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Local field names.
const (
	FieldModuleKey = "module_key"
)

// GetField returns a local field value. Returns ErrNotFound if unset.
func (s *Store) GetField(ctx context.Context, name string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM local_field WHERE name = ?`, name,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get field %q: %w", name, err)
	}
	return value, nil
}

// SetField inserts or replaces a local field value.
func (s *Store) SetField(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_field (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set field %q: %w", name, err)
	}
	return nil
}

// SetFieldIfAbsent stores value unless name already has one, and returns
// the value that is stored afterwards.
func (s *Store) SetFieldIfAbsent(ctx context.Context, name, value string) (string, error) {
	var stored string
	err := s.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO local_field (name, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (name) DO NOTHING`,
			name, value, time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert field %q: %w", name, err)
		}
		return tx.QueryRowContext(ctx,
			`SELECT value FROM local_field WHERE name = ?`, name,
		).Scan(&stored)
	})
	if err != nil {
		return "", err
	}
	return stored, nil
}
