package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Party is the last party/group pair announced by the communicator.
type Party struct {
	PartyID   string
	GroupID   string
	UpdatedAt int64
}

// SaveParty replaces the stored party identity.
func (s *Store) SaveParty(ctx context.Context, partyID, groupID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO party_identity (id, party_id, group_id, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET party_id = excluded.party_id,
		 group_id = excluded.group_id, updated_at = excluded.updated_at`,
		partyID, groupID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save party: %w", err)
	}
	return nil
}

// LoadParty returns the stored party identity. Returns ErrNotFound if the
// module was never announced.
func (s *Store) LoadParty(ctx context.Context) (*Party, error) {
	p := &Party{}
	err := s.db.QueryRowContext(ctx,
		`SELECT party_id, group_id, updated_at FROM party_identity WHERE id = 1`,
	).Scan(&p.PartyID, &p.GroupID, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load party: %w", err)
	}
	return p, nil
}
