// Package collaborators bundles every external dependency the copy-trading
// pipeline consumes into a single immutable handle, replacing the source
// system's late-injected mutable module-scope singletons (dataManager,
// solanaManager, walletManager, apiManager, notificationManager) with one
// struct built once at startup and shared, as a pointer, by every component.
package collaborators

import (
	"context"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solcopy/engine/internal/store"
)

// TokenPrice is a single mint's price in SOL, as returned by ApiManager.
type TokenPrice struct {
	Mint     solana.PublicKey
	PriceSol float64
}

// TokenMetadata is the subset of a mint's metadata the engine needs to
// compute market cap and choose a token-program variant.
type TokenMetadata struct {
	Mint         solana.PublicKey
	Decimals     uint8
	TotalSupply  *big.Int
	TokenProgram solana.PublicKey // SPLTokenProgramID or Token2022ProgramID
}

// SellState reports whether a mint is still sellable (e.g. not frozen,
// liquidity still present) ahead of a speculative pre-build.
type SellState struct {
	Mint     solana.PublicKey
	Sellable bool
	Reason   string
}

// ApiManager provides per-platform balance/price/metadata lookups. Its
// internals (which indexer, which cache) are free; the engine only
// consumes these three operations (spec §1 "out of scope... an ApiManager
// with getTokenPrices, getTokenMetadatas, getSellState").
type ApiManager interface {
	GetTokenPrices(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]TokenPrice, error)
	GetTokenMetadatas(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]TokenMetadata, error)
	GetSellState(ctx context.Context, mint solana.PublicKey) (SellState, error)
}

// NotificationEvent mirrors the teacher's SwapEvent shape, generalized
// from swap lifecycle events to trade lifecycle events.
type NotificationEvent struct {
	TradeID   string
	EventType string
	Data      interface{}
	Timestamp time.Time
}

// NotificationHandler is called when a notification event occurs.
type NotificationHandler func(event NotificationEvent)

// Notifier publishes trade lifecycle events (TradeCompleted, TradeFailed,
// TradePending) to whatever external surface subscribes (operator UI, chat
// bot, metrics). The engine only ever emits; it never queries back.
type Notifier interface {
	OnEvent(handler NotificationHandler)
	Emit(tradeID, eventType string, data interface{})
}

// LeaderTracker optionally resolves a direct RPC endpoint for the current
// slot leader, so the dispatcher can submit closer to the validator that
// will produce the next block, and optionally sends a Jito tip bundle.
type LeaderTracker interface {
	CurrentLeaderEndpoint(ctx context.Context) (endpoint string, ok bool)
	SendJitoBundle(ctx context.Context, tx *solana.Transaction, tipLamports uint64) (solana.Signature, error)
}

// Signer signs a transaction's message on behalf of a single trading
// wallet. The engine never sees plaintext key material: whatever backs
// this interface (an in-process decrypted keypair, an HSM, a remote
// signer) is the secret-storage collaborator's business, not the core
// pipeline's (spec §1 "out of scope... secret storage and encryption").
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// SignerFactory hands out a Signer for a user's trading wallet by label.
type SignerFactory interface {
	SignerFor(ctx context.Context, chatID int64, walletLabel string) (Signer, error)
}

// Collaborators is the single read-only handle passed to every component
// at spawn. There is no late injection and no optional field populated
// after construction — everything is resolved once at startup wiring time.
type Collaborators struct {
	RPC      *rpc.Client
	Api      ApiManager
	Notifier Notifier
	Store    store.Store
	Leader   LeaderTracker
	Signers  SignerFactory
}

// New assembles a Collaborators handle. All fields are required except
// Leader, which may be nil when Jito/direct-leader targeting is disabled.
func New(rpcClient *rpc.Client, api ApiManager, notifier Notifier, st store.Store, leader LeaderTracker, signers SignerFactory) *Collaborators {
	return &Collaborators{
		RPC:      rpcClient,
		Api:      api,
		Notifier: notifier,
		Store:    st,
		Leader:   leader,
		Signers:  signers,
	}
}
