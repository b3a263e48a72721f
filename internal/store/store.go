// Package store defines the external persistence contract the copy-trading
// engine depends on — users, trading wallets, trader subscriptions, trade
// records, and positions — plus a SQLite reference implementation. The core
// pipeline (ingest, classifier, cloner, dispatcher, orchestrator) only ever
// sees the interfaces below; which concrete store backs them is a wiring
// decision made in cmd/copytraderd.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "github.com/mattn/go-sqlite3"
)

// Users reads user accounts and their trading settings.
type Users interface {
	GetUser(ctx context.Context, chatID int64) (*User, error)
}

// Wallets reads trading wallets belonging to users.
type Wallets interface {
	GetWallet(ctx context.Context, chatID int64, label string) (*TradingWallet, error)
	ListWallets(ctx context.Context, chatID int64) ([]*TradingWallet, error)
}

// Traders reads trader (leader wallet) subscriptions.
type Traders interface {
	ListActiveSubscriptions(ctx context.Context) ([]*TraderSubscription, error)
}

// Trades records dispatch results.
type Trades interface {
	RecordTrade(ctx context.Context, t *TradeRecord) error
}

// Positions reads and writes per-(user,mint) positions.
type Positions interface {
	GetPosition(ctx context.Context, chatID int64, mint solana.PublicKey) (*Position, error)
	UpsertPosition(ctx context.Context, p *Position) error
	ListOpenPositions(ctx context.Context, chatID int64) ([]*Position, error)
}

// Store is the full persistence contract consumed by
// internal/collaborators.
type Store interface {
	Users
	Wallets
	Traders
	Trades
	Positions
	Close() error
}

// SQLiteStore is the reference Store implementation backed by
// mattn/go-sqlite3, in WAL mode with a single writer connection — the same
// shape the teacher's storage layer used for its swap-session tables.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates (or opens) the SQLite database at path and ensures its
// schema exists.
func Open(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection, for callers (migrations,
// admin tooling) that need raw access.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		chat_id INTEGER PRIMARY KEY,
		sol_amount_per_trade INTEGER NOT NULL,
		slippage_bps INTEGER NOT NULL,
		primary_wallet_label TEXT NOT NULL DEFAULT '',
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS wallets (
		owner_chat_id INTEGER NOT NULL,
		label TEXT NOT NULL,
		pubkey TEXT NOT NULL,
		encrypted_secret BLOB NOT NULL,
		nonce_account_pubkey TEXT,
		encrypted_nonce_secret BLOB,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (owner_chat_id, label),
		FOREIGN KEY (owner_chat_id) REFERENCES users(chat_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_owner ON wallets(owner_chat_id);

	CREATE TABLE IF NOT EXISTS traders (
		owner_chat_id INTEGER NOT NULL,
		leader_pubkey TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER,
		PRIMARY KEY (owner_chat_id, leader_pubkey)
	);

	CREATE INDEX IF NOT EXISTS idx_traders_active ON traders(active);
	CREATE INDEX IF NOT EXISTS idx_traders_leader ON traders(leader_pubkey);

	CREATE TABLE IF NOT EXISTS trades (
		trade_id TEXT PRIMARY KEY,
		user_chat_id INTEGER NOT NULL,
		leader_pubkey TEXT NOT NULL,
		mint TEXT NOT NULL,
		side TEXT NOT NULL,
		signature TEXT,
		status TEXT NOT NULL,
		amount_in INTEGER NOT NULL,
		amount_out INTEGER NOT NULL,
		fee_lamports INTEGER NOT NULL,
		slot INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_chat_id);
	CREATE INDEX IF NOT EXISTS idx_trades_mint ON trades(user_chat_id, mint);
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);

	CREATE TABLE IF NOT EXISTS trade_stats (
		user_chat_id INTEGER NOT NULL,
		leader_pubkey TEXT NOT NULL,
		trade_count INTEGER NOT NULL DEFAULT 0,
		total_sol_in INTEGER NOT NULL DEFAULT 0,
		total_sol_out INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_chat_id, leader_pubkey)
	);

	CREATE TABLE IF NOT EXISTS user_positions (
		user_chat_id INTEGER NOT NULL,
		mint TEXT NOT NULL,
		amount_raw TEXT NOT NULL,
		sol_spent INTEGER NOT NULL DEFAULT 0,
		sol_fee_buy INTEGER NOT NULL DEFAULT 0,
		sol_fee_sell INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_chat_id, mint)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}
