package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ListActiveSubscriptions retrieves every subscription with active = true,
// the set the orchestrator fans out transactions against.
func (s *SQLiteStore) ListActiveSubscriptions(ctx context.Context) ([]*TraderSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_chat_id, leader_pubkey, name, active
		FROM traders WHERE active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*TraderSubscription
	for rows.Next() {
		var t TraderSubscription
		var leaderPubkey string
		var active int

		if err := rows.Scan(&t.OwnerChatID, &leaderPubkey, &t.Name, &active); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}

		t.LeaderPubkey, err = solana.PublicKeyFromBase58(leaderPubkey)
		if err != nil {
			return nil, fmt.Errorf("corrupt leader pubkey %q: %w", leaderPubkey, err)
		}
		t.Active = active != 0

		out = append(out, &t)
	}
	return out, rows.Err()
}

// UpsertSubscription creates or updates a trader subscription.
func (s *SQLiteStore) UpsertSubscription(ctx context.Context, t *TraderSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	if t.Active {
		active = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traders (owner_chat_id, leader_pubkey, name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_chat_id, leader_pubkey) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, t.OwnerChatID, t.LeaderPubkey.String(), t.Name, active, time.Now().Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}
