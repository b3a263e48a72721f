// Package ledger is the position ledger (C6): an in-memory
// user→mint→Position map, guarded by a striped lock so unrelated
// (user,mint) pairs never contend, with durable writes to the store on
// every confirmed fill so state survives a restart.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/store"
)

const stripeCount = 32

// ErrNoPosition is returned by SellFill when the ledger holds no open
// position for the (user, mint) pair.
var ErrNoPosition = errors.New("ledger: no open position")

// Ledger tracks every user's open and closed positions.
type Ledger struct {
	store   store.Store
	mu      [stripeCount]sync.Mutex
	entries map[positionKey]*store.Position
	guard   sync.RWMutex // protects entries' map structure, not its values
}

type positionKey struct {
	chatID int64
	mint   solana.PublicKey
}

// New builds an empty Ledger backed by st for durable writes.
func New(st store.Store) *Ledger {
	return &Ledger{
		store:   st,
		entries: make(map[positionKey]*store.Position),
	}
}

func (l *Ledger) stripe(key positionKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write(key.mint[:])
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(key.chatID >> (8 * i))
	}
	h.Write(b[:])
	return &l.mu[h.Sum32()%stripeCount]
}

// GetPosition returns a copy of the current position for (chatID, mint),
// or nil if the user holds none. Used by C4 to size sell trades and by
// the notifier to compute P&L (spec §4.5).
func (l *Ledger) GetPosition(chatID int64, mint solana.PublicKey) *store.Position {
	key := positionKey{chatID: chatID, mint: mint}
	s := l.stripe(key)
	s.Lock()
	defer s.Unlock()

	l.guard.RLock()
	p, ok := l.entries[key]
	l.guard.RUnlock()
	if !ok {
		return nil
	}
	clone := *p
	if p.AmountRaw != nil {
		clone.AmountRaw = new(big.Int).Set(p.AmountRaw)
	}
	return &clone
}

// BuyFill applies spec §4.5's buy-fill update: amount_raw, sol_spent, and
// sol_fee_buy all accumulate by the caller-supplied tokensReceived,
// solSpent, and fee. The orchestrator passes the leader's amounts scaled to
// the user's trade size, the requested SOL amount, and the dispatcher's
// priority fee; no observed balance delta of the user's own transaction is
// read.
func (l *Ledger) BuyFill(ctx context.Context, chatID int64, mint solana.PublicKey, tokensReceived *big.Int, solSpent, fee uint64) (*store.Position, error) {
	key := positionKey{chatID: chatID, mint: mint}
	s := l.stripe(key)
	s.Lock()
	defer s.Unlock()

	p := l.loadOrCreate(key)
	p.AmountRaw = new(big.Int).Add(p.AmountRaw, tokensReceived)
	p.SolSpent += solSpent
	p.SolFeeBuy += fee
	p.UpdatedAt = time.Now()

	if err := l.persist(ctx, p); err != nil {
		return nil, err
	}
	clone := *p
	clone.AmountRaw = new(big.Int).Set(p.AmountRaw)
	return &clone, nil
}

// SellResult is the P&L outcome of a sell fill (spec §4.5).
type SellResult struct {
	GrossPnL *big.Int
	NetPnL   *big.Int
	Position *store.Position
}

// SellFill applies spec §4.5's sell-fill update: gross/net P&L are
// computed against the position's accumulated cost basis, and the sold
// fraction is removed pro-rata from amount_raw and sol_spent. A full-
// position sell (tokensSold >= position.AmountRaw) zeroes both.
//
// ErrNoPosition is returned for a sell against a position the ledger has
// no record of; spec §4.7 treats this as an idempotent no-op upstream
// (sell failures on a fully-sold position), not a ledger error, so
// callers should check for it explicitly.
func (l *Ledger) SellFill(ctx context.Context, chatID int64, mint solana.PublicKey, tokensSold *big.Int, solReceived uint64, feeSell uint64) (*SellResult, error) {
	key := positionKey{chatID: chatID, mint: mint}
	s := l.stripe(key)
	s.Lock()
	defer s.Unlock()

	l.guard.RLock()
	p, ok := l.entries[key]
	l.guard.RUnlock()
	if !ok || p.AmountRaw == nil || p.AmountRaw.Sign() == 0 {
		return nil, ErrNoPosition
	}

	grossPnL := new(big.Int).Sub(big.NewInt(int64(solReceived)), big.NewInt(int64(p.SolSpent)))
	netPnL := new(big.Int).Sub(grossPnL, big.NewInt(int64(p.SolFeeBuy+feeSell)))

	p.SolFeeSell += feeSell

	if tokensSold.Cmp(p.AmountRaw) >= 0 {
		p.AmountRaw = big.NewInt(0)
		p.SolSpent = 0
	} else {
		// Pro-rata: remaining sol_spent = sol_spent * (amount_raw - sold) / amount_raw.
		remaining := new(big.Int).Sub(p.AmountRaw, tokensSold)
		p.SolSpent = scaleProportional(p.SolSpent, remaining, p.AmountRaw)
		p.AmountRaw = remaining
	}
	p.UpdatedAt = time.Now()

	if err := l.persist(ctx, p); err != nil {
		return nil, err
	}

	clone := *p
	clone.AmountRaw = new(big.Int).Set(p.AmountRaw)
	return &SellResult{GrossPnL: grossPnL, NetPnL: netPnL, Position: &clone}, nil
}

func scaleProportional(amount uint64, numerator, denominator *big.Int) uint64 {
	if denominator.Sign() == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(int64(amount)), numerator)
	n.Div(n, denominator)
	return n.Uint64()
}

func (l *Ledger) loadOrCreate(key positionKey) *store.Position {
	l.guard.RLock()
	p, ok := l.entries[key]
	l.guard.RUnlock()
	if ok {
		return p
	}

	l.guard.Lock()
	defer l.guard.Unlock()
	if p, ok := l.entries[key]; ok {
		return p
	}
	p = &store.Position{
		UserChatID: key.chatID,
		Mint:       key.mint,
		AmountRaw:  big.NewInt(0),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	l.entries[key] = p
	return p
}

// persist mirrors the in-memory state to the durable store. The ledger is
// best-effort in memory (spec §4.5); a persist failure is surfaced to the
// caller but the in-memory state is kept so a later retry (or restart
// rebuild) can reconcile it.
func (l *Ledger) persist(ctx context.Context, p *store.Position) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.UpsertPosition(ctx, p); err != nil {
		return fmt.Errorf("ledger: persist position: %w", err)
	}
	return nil
}

// Rebuild reloads every (chatID, mint) pair named by keys from the
// durable store, replacing the in-memory state of each pair the store has a
// row for; a pair with no row is skipped and keeps its in-memory state. Used at startup
// per spec §4.5 ("on restart the ledger can be rebuilt by replaying that
// store").
func (l *Ledger) Rebuild(ctx context.Context, keys []RebuildKey) error {
	for _, k := range keys {
		p, err := l.store.GetPosition(ctx, k.ChatID, k.Mint)
		if err != nil {
			if err == store.ErrPositionNotFound {
				continue
			}
			return fmt.Errorf("ledger: rebuild position (%d, %s): %w", k.ChatID, k.Mint, err)
		}
		key := positionKey{chatID: k.ChatID, mint: k.Mint}
		l.guard.Lock()
		l.entries[key] = p
		l.guard.Unlock()
	}
	return nil
}

// RebuildKey names one (user, mint) pair to reload during Rebuild.
type RebuildKey struct {
	ChatID int64
	Mint   solana.PublicKey
}

// RecordTrade appends a durable trade row for a dispatch attempt,
// independent of the position update (spec §4.5 "a durable record of
// every confirmed trade is written... after each successful dispatch").
func (l *Ledger) RecordTrade(ctx context.Context, t *store.TradeRecord) error {
	if l.store == nil {
		return nil
	}
	return l.store.RecordTrade(ctx, t)
}
