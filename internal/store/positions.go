package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ErrPositionNotFound is returned when a user holds no record (open or
// closed) for a mint.
var ErrPositionNotFound = errors.New("store: position not found")

// GetPosition retrieves a user's position in a mint, open or closed.
func (s *SQLiteStore) GetPosition(ctx context.Context, chatID int64, mint solana.PublicKey) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p Position
	p.UserChatID = chatID
	p.Mint = mint

	var amountRaw string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT amount_raw, sol_spent, sol_fee_buy, sol_fee_sell, created_at, updated_at
		FROM user_positions WHERE user_chat_id = ? AND mint = ?
	`, chatID, mint.String()).Scan(&amountRaw, &p.SolSpent, &p.SolFeeBuy, &p.SolFeeSell, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	amt, ok := new(big.Int).SetString(amountRaw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt amount_raw %q for chat %d mint %s", amountRaw, chatID, mint)
	}
	p.AmountRaw = amt
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)

	return &p, nil
}

// ListOpenPositions lists every position with a nonzero amount_raw for
// chatID, the enumeration the ledger's startup rebuild needs since
// positions are keyed by mint and the set of held mints isn't otherwise
// known up front.
func (s *SQLiteStore) ListOpenPositions(ctx context.Context, chatID int64) ([]*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT mint, amount_raw, sol_spent, sol_fee_buy, sol_fee_sell, created_at, updated_at
		FROM user_positions WHERE user_chat_id = ? AND amount_raw != '0'
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions: %w", err)
	}
	defer rows.Close()

	var out []*Position
	for rows.Next() {
		var p Position
		p.UserChatID = chatID

		var mintStr, amountRaw string
		var createdAt, updatedAt int64
		if err := rows.Scan(&mintStr, &amountRaw, &p.SolSpent, &p.SolFeeBuy, &p.SolFeeSell, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}

		mint, err := solana.PublicKeyFromBase58(mintStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt mint %q for chat %d: %w", mintStr, chatID, err)
		}
		amt, ok := new(big.Int).SetString(amountRaw, 10)
		if !ok {
			return nil, fmt.Errorf("corrupt amount_raw %q for chat %d mint %s", amountRaw, chatID, mintStr)
		}

		p.Mint = mint
		p.AmountRaw = amt
		p.CreatedAt = time.Unix(createdAt, 0)
		p.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpsertPosition writes a position's current state. Positions are never
// deleted, even once AmountRaw reaches zero (spec §3: "kept for history").
func (s *SQLiteStore) UpsertPosition(ctx context.Context, p *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	amountRaw := "0"
	if p.AmountRaw != nil {
		amountRaw = p.AmountRaw.String()
	}
	now := time.Now().Unix()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_positions (user_chat_id, mint, amount_raw, sol_spent, sol_fee_buy, sol_fee_sell, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_chat_id, mint) DO UPDATE SET
			amount_raw = excluded.amount_raw,
			sol_spent = excluded.sol_spent,
			sol_fee_buy = excluded.sol_fee_buy,
			sol_fee_sell = excluded.sol_fee_sell,
			updated_at = excluded.updated_at
	`, p.UserChatID, p.Mint.String(), amountRaw, p.SolSpent, p.SolFeeBuy, p.SolFeeSell, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}
