package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ErrWalletNotFound is returned when no wallet matches the given owner and
// label.
var ErrWalletNotFound = errors.New("store: wallet not found")

// GetWallet retrieves a user's trading wallet by label.
func (s *SQLiteStore) GetWallet(ctx context.Context, chatID int64, label string) (*TradingWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanWallet(ctx, `
		SELECT owner_chat_id, label, pubkey, encrypted_secret, nonce_account_pubkey, encrypted_nonce_secret
		FROM wallets WHERE owner_chat_id = ? AND label = ?
	`, chatID, label)
}

// ListWallets retrieves all trading wallets belonging to a user.
func (s *SQLiteStore) ListWallets(ctx context.Context, chatID int64) ([]*TradingWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_chat_id, label, pubkey, encrypted_secret, nonce_account_pubkey, encrypted_nonce_secret
		FROM wallets WHERE owner_chat_id = ?
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var out []*TradingWallet
	for rows.Next() {
		w, err := scanWalletRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpsertWallet creates or updates a trading wallet.
func (s *SQLiteStore) UpsertWallet(ctx context.Context, w *TradingWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var noncePubkey, nonceSecret interface{}
	if w.NonceAccountPubkey != nil {
		noncePubkey = w.NonceAccountPubkey.String()
		nonceSecret = w.EncryptedNonceSecret
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (owner_chat_id, label, pubkey, encrypted_secret, nonce_account_pubkey, encrypted_nonce_secret, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_chat_id, label) DO UPDATE SET
			pubkey = excluded.pubkey,
			encrypted_secret = excluded.encrypted_secret,
			nonce_account_pubkey = excluded.nonce_account_pubkey,
			encrypted_nonce_secret = excluded.encrypted_nonce_secret
	`, w.OwnerChatID, w.Label, w.Pubkey.String(), w.EncryptedSecret, noncePubkey, nonceSecret, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanWallet(ctx context.Context, query string, args ...interface{}) (*TradingWallet, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	var w TradingWallet
	var pubkey string
	var noncePubkey sql.NullString
	var nonceSecret []byte

	err := row.Scan(&w.OwnerChatID, &w.Label, &pubkey, &w.EncryptedSecret, &noncePubkey, &nonceSecret)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	w.EncryptedNonceSecret = nonceSecret

	w.Pubkey, err = solana.PublicKeyFromBase58(pubkey)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet pubkey %q: %w", pubkey, err)
	}
	if noncePubkey.Valid {
		pk, err := solana.PublicKeyFromBase58(noncePubkey.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt nonce pubkey %q: %w", noncePubkey.String, err)
		}
		w.NonceAccountPubkey = &pk
	}

	return &w, nil
}

// scanWalletRow scans one row of a *sql.Rows cursor into a TradingWallet,
// shared by ListWallets.
func scanWalletRow(rows *sql.Rows) (*TradingWallet, error) {
	var w TradingWallet
	var pubkey string
	var noncePubkey sql.NullString
	var nonceSecret []byte

	if err := rows.Scan(&w.OwnerChatID, &w.Label, &pubkey, &w.EncryptedSecret, &noncePubkey, &nonceSecret); err != nil {
		return nil, err
	}
	w.EncryptedNonceSecret = nonceSecret

	pk, err := solana.PublicKeyFromBase58(pubkey)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet pubkey %q: %w", pubkey, err)
	}
	w.Pubkey = pk

	if noncePubkey.Valid {
		npk, err := solana.PublicKeyFromBase58(noncePubkey.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt nonce pubkey %q: %w", noncePubkey.String, err)
		}
		w.NonceAccountPubkey = &npk
	}

	return &w, nil
}
