package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned when no user exists for the given chat ID.
var ErrUserNotFound = errors.New("store: user not found")

// GetUser retrieves a user and their trading settings.
func (s *SQLiteStore) GetUser(ctx context.Context, chatID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u User
	u.ChatID = chatID
	var isAdmin int

	err := s.db.QueryRowContext(ctx, `
		SELECT sol_amount_per_trade, slippage_bps, primary_wallet_label, is_admin
		FROM users WHERE chat_id = ?
	`, chatID).Scan(
		&u.Settings.SolAmountPerTradeLamports,
		&u.Settings.SlippageBps,
		&u.Settings.PrimaryWalletLabel,
		&isAdmin,
	)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Settings.IsAdmin = isAdmin != 0
	return &u, nil
}

// UpsertUser creates or updates a user's trading settings.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	isAdmin := 0
	if u.Settings.IsAdmin {
		isAdmin = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, sol_amount_per_trade, slippage_bps, primary_wallet_label, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			sol_amount_per_trade = excluded.sol_amount_per_trade,
			slippage_bps = excluded.slippage_bps,
			primary_wallet_label = excluded.primary_wallet_label,
			is_admin = excluded.is_admin,
			updated_at = excluded.updated_at
	`,
		u.ChatID, u.Settings.SolAmountPerTradeLamports, u.Settings.SlippageBps,
		u.Settings.PrimaryWalletLabel, isAdmin, time.Now().Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}
