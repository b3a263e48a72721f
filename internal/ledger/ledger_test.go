package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/store"
)

func testMint(fill byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	return solana.PublicKeyFromBytes(b[:])
}

// fakeStore is a store.Store stub that only implements the Positions and
// Trades surfaces the ledger actually calls.
type fakeStore struct {
	store.Store
	positions map[string]*store.Position
	trades    []*store.TradeRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{positions: map[string]*store.Position{}}
}

func (f *fakeStore) key(chatID int64, mint solana.PublicKey) string {
	return mint.String()
}

func (f *fakeStore) UpsertPosition(ctx context.Context, p *store.Position) error {
	cp := *p
	f.positions[f.key(p.UserChatID, p.Mint)] = &cp
	return nil
}

func (f *fakeStore) GetPosition(ctx context.Context, chatID int64, mint solana.PublicKey) (*store.Position, error) {
	p, ok := f.positions[f.key(chatID, mint)]
	if !ok {
		return nil, store.ErrPositionNotFound
	}
	return p, nil
}

func (f *fakeStore) RecordTrade(ctx context.Context, t *store.TradeRecord) error {
	f.trades = append(f.trades, t)
	return nil
}

func TestBuyFillAccumulates(t *testing.T) {
	st := newFakeStore()
	l := New(st)
	mint := testMint(0x01)

	p, err := l.BuyFill(context.Background(), 1, mint, big.NewInt(1000), 500, 5)
	if err != nil {
		t.Fatalf("BuyFill() error = %v", err)
	}
	if p.AmountRaw.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("AmountRaw = %s, want 1000", p.AmountRaw)
	}

	p, err = l.BuyFill(context.Background(), 1, mint, big.NewInt(500), 250, 2)
	if err != nil {
		t.Fatalf("BuyFill() error = %v", err)
	}
	if p.AmountRaw.Cmp(big.NewInt(1500)) != 0 {
		t.Errorf("AmountRaw = %s, want 1500 after second fill", p.AmountRaw)
	}
	if p.SolSpent != 750 {
		t.Errorf("SolSpent = %d, want 750", p.SolSpent)
	}
	if p.SolFeeBuy != 7 {
		t.Errorf("SolFeeBuy = %d, want 7", p.SolFeeBuy)
	}
}

func TestSellFillFullPositionZeroesBasis(t *testing.T) {
	st := newFakeStore()
	l := New(st)
	mint := testMint(0x02)

	if _, err := l.BuyFill(context.Background(), 1, mint, big.NewInt(1000), 1_000_000, 1000); err != nil {
		t.Fatalf("BuyFill() error = %v", err)
	}

	result, err := l.SellFill(context.Background(), 1, mint, big.NewInt(1000), 1_200_000, 1200)
	if err != nil {
		t.Fatalf("SellFill() error = %v", err)
	}
	if result.GrossPnL.Cmp(big.NewInt(200_000)) != 0 {
		t.Errorf("GrossPnL = %s, want 200000", result.GrossPnL)
	}
	wantNet := big.NewInt(200_000 - 1000 - 1200)
	if result.NetPnL.Cmp(wantNet) != 0 {
		t.Errorf("NetPnL = %s, want %s", result.NetPnL, wantNet)
	}
	if result.Position.AmountRaw.Sign() != 0 {
		t.Errorf("AmountRaw = %s, want 0 after full sell", result.Position.AmountRaw)
	}
	if result.Position.SolSpent != 0 {
		t.Errorf("SolSpent = %d, want 0 after full sell", result.Position.SolSpent)
	}
}

func TestSellFillPartialIsProRata(t *testing.T) {
	st := newFakeStore()
	l := New(st)
	mint := testMint(0x03)

	if _, err := l.BuyFill(context.Background(), 1, mint, big.NewInt(1000), 1000, 0); err != nil {
		t.Fatalf("BuyFill() error = %v", err)
	}

	result, err := l.SellFill(context.Background(), 1, mint, big.NewInt(400), 500, 0)
	if err != nil {
		t.Fatalf("SellFill() error = %v", err)
	}
	// Remaining 600/1000 of the original 1000 sol_spent basis.
	if result.Position.SolSpent != 600 {
		t.Errorf("SolSpent = %d, want 600 after a 40%% sell", result.Position.SolSpent)
	}
	if result.Position.AmountRaw.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("AmountRaw = %s, want 600", result.Position.AmountRaw)
	}
}

func TestSellFillNoPositionReturnsErrNoPosition(t *testing.T) {
	st := newFakeStore()
	l := New(st)
	mint := testMint(0x04)

	_, err := l.SellFill(context.Background(), 1, mint, big.NewInt(100), 100, 0)
	if err != ErrNoPosition {
		t.Fatalf("SellFill() error = %v, want ErrNoPosition", err)
	}
}

func TestGetPositionReturnsIndependentCopy(t *testing.T) {
	st := newFakeStore()
	l := New(st)
	mint := testMint(0x05)

	if _, err := l.BuyFill(context.Background(), 1, mint, big.NewInt(1000), 100, 0); err != nil {
		t.Fatalf("BuyFill() error = %v", err)
	}

	p := l.GetPosition(1, mint)
	p.AmountRaw.SetInt64(99999)

	p2 := l.GetPosition(1, mint)
	if p2.AmountRaw.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("mutating a returned position leaked into the ledger: AmountRaw = %s", p2.AmountRaw)
	}
}
