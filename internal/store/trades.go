package store

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// RecordTrade writes a dispatch result row and rolls it into the running
// per-(user,leader) trade_stats aggregate.
func (s *SQLiteStore) RecordTrade(ctx context.Context, t *TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sig string
	if t.Signature != (solana.Signature{}) {
		sig = t.Signature.String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (
			trade_id, user_chat_id, leader_pubkey, mint, side, signature, status,
			amount_in, amount_out, fee_lamports, slot, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.TradeID, t.UserChatID, t.LeaderPubkey.String(), t.Mint.String(), string(t.Side),
		sig, string(t.Status), t.AmountIn, t.AmountOut, t.FeeLamports, t.Slot, t.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trade_stats (user_chat_id, leader_pubkey, trade_count, total_sol_in, total_sol_out, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(user_chat_id, leader_pubkey) DO UPDATE SET
			trade_count = trade_count + 1,
			total_sol_in = total_sol_in + excluded.total_sol_in,
			total_sol_out = total_sol_out + excluded.total_sol_out,
			updated_at = excluded.updated_at
	`, t.UserChatID, t.LeaderPubkey.String(), t.AmountIn, t.AmountOut, t.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to update trade stats: %w", err)
	}

	return tx.Commit()
}
