package store

import (
	"context"
	"fmt"
	"time"
)

// StatusChange is one recorded connection status transition.
type StatusChange struct {
	ID        string
	Previous  int
	Status    int
	ChangedAt int64 // unix microseconds
}

// RecordStatusChange appends a transition to the history and returns its ID.
func (s *Store) RecordStatusChange(ctx context.Context, previous, status int) (string, error) {
	id := NewULID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_history (id, previous, status, changed_at) VALUES (?, ?, ?, ?)`,
		id, previous, status, time.Now().UnixMicro(),
	)
	if err != nil {
		return "", fmt.Errorf("record status change: %w", err)
	}
	return id, nil
}

// ListStatusChanges returns up to limit transitions, newest first.
func (s *Store) ListStatusChanges(ctx context.Context, limit int) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, previous, status, changed_at FROM status_history
		 ORDER BY changed_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	defer rows.Close()

	var changes []StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.ID, &c.Previous, &c.Status, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// DeleteStatusChangesBefore removes transitions older than cutoff and
// returns the number deleted.
func (s *Store) DeleteStatusChangesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM status_history WHERE changed_at < ?`, cutoff.UnixMicro(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete status changes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
