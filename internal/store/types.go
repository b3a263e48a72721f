package store

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
)

// UserSettings holds the per-user trading defaults consumed by the
// orchestrator and cloner.
type UserSettings struct {
	SolAmountPerTradeLamports uint64
	SlippageBps               uint16
	PrimaryWalletLabel        string
	IsAdmin                   bool
}

// User is a subscriber of the copy-trading engine.
type User struct {
	ChatID   int64
	Settings UserSettings
}

// TradingWallet is a user's on-chain trading wallet. EncryptedSecret is
// opaque to the core pipeline — decryption happens behind the signer
// handle a collaborator hands out, never inside this package.
type TradingWallet struct {
	OwnerChatID          int64
	Label                string
	Pubkey               solana.PublicKey
	EncryptedSecret      []byte
	NonceAccountPubkey   *solana.PublicKey
	EncryptedNonceSecret []byte
}

// NonceState describes a durable nonce account attached to a wallet. When
// present, the dispatcher advances the nonce instead of fetching a recent
// blockhash.
type NonceState struct {
	NoncePubkey      solana.PublicKey
	AuthorityPubkey  solana.PublicKey
	LatestNonceValue solana.Hash
}

// TraderSubscription is a user's subscription to copy a leader wallet.
type TraderSubscription struct {
	OwnerChatID  int64
	LeaderPubkey solana.PublicKey
	Name         string
	Active       bool
}

// TradeSide distinguishes a buy leg from a sell leg.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeStatus is the outcome recorded for a dispatch attempt.
type TradeStatus string

const (
	TradeStatusConfirmed TradeStatus = "confirmed"
	TradeStatusFailed    TradeStatus = "failed"
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusSkipped   TradeStatus = "skipped"
)

// TradeRecord is one row of the trades table, written by RecordTrade. The
// orchestrator's dispatch path does not call RecordTrade, so dispatch
// results are not recorded as rows here.
type TradeRecord struct {
	TradeID      string
	UserChatID   int64
	LeaderPubkey solana.PublicKey
	Mint         solana.PublicKey
	Side         TradeSide
	Signature    solana.Signature
	Status       TradeStatus
	AmountIn     uint64
	AmountOut    uint64
	FeeLamports  uint64
	Slot         uint64
	CreatedAt    time.Time
}

// Position is a user's current holding of a mint, tracked by the ledger
// and persisted here for recovery after restart.
type Position struct {
	UserChatID int64
	Mint       solana.PublicKey
	AmountRaw  *big.Int
	SolSpent   uint64
	SolFeeBuy  uint64
	SolFeeSell uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsClosed reports whether the position currently holds zero tokens. A
// closed position is kept for history, never deleted (spec §3).
func (p *Position) IsClosed() bool {
	return p.AmountRaw == nil || p.AmountRaw.Sign() == 0
}
