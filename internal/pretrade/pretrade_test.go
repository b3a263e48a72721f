package pretrade

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/collaborators"
	"github.com/solcopy/engine/internal/config"
	"github.com/solcopy/engine/internal/solmeta"
	"github.com/solcopy/engine/pkg/logging"
)

func testMint(fill byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	return solana.PublicKeyFromBytes(b[:])
}

type fakeAPI struct {
	prices map[solana.PublicKey]collaborators.TokenPrice
	metas  map[solana.PublicKey]collaborators.TokenMetadata
}

func (f *fakeAPI) GetTokenPrices(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]collaborators.TokenPrice, error) {
	return f.prices, nil
}

func (f *fakeAPI) GetTokenMetadatas(ctx context.Context, mints []solana.PublicKey) (map[solana.PublicKey]collaborators.TokenMetadata, error) {
	return f.metas, nil
}

func (f *fakeAPI) GetSellState(ctx context.Context, mint solana.PublicKey) (collaborators.SellState, error) {
	return collaborators.SellState{}, nil
}

func testConfig() config.PreTradeConfig {
	return config.PreTradeConfig{
		PumpFunMinMarketCapSol:    1000,
		LaunchpadGraceSeconds:     300,
		LaunchpadMinMarketCapSol:  50000,
		GeneralDEXGraceSeconds:    3600,
		GeneralDEXMinMarketCapSol: 250000,
		JanitorIntervalSeconds:    60,
	}
}

func TestSweepPrunesLowMarketCapPumpFunEntry(t *testing.T) {
	mint := testMint(0x01)
	api := &fakeAPI{
		prices: map[solana.PublicKey]collaborators.TokenPrice{mint: {Mint: mint, PriceSol: 0.0001}},
		metas:  map[solana.PublicKey]collaborators.TokenMetadata{mint: {Mint: mint, Decimals: 6, TotalSupply: big.NewInt(1_000_000_000)}},
	}
	c := New(api, testConfig(), logging.Default())

	key := Key{UserChatID: 1, Mint: mint, Platform: solmeta.PlatformPumpFunBondingCurve}
	c.Put(&Entry{Key: key, Instructions: []classifier.Instruction{}, CreatedAt: time.Now()})

	c.sweep(context.Background())

	if c.Get(key) != nil {
		t.Error("expected low-market-cap pump.fun entry to be pruned")
	}
}

func TestSweepKeepsHighMarketCapEntry(t *testing.T) {
	mint := testMint(0x02)
	api := &fakeAPI{
		prices: map[solana.PublicKey]collaborators.TokenPrice{mint: {Mint: mint, PriceSol: 1.0}},
		metas:  map[solana.PublicKey]collaborators.TokenMetadata{mint: {Mint: mint, Decimals: 6, TotalSupply: big.NewInt(5_000_000 * 1_000_000)}},
	}
	c := New(api, testConfig(), logging.Default())

	key := Key{UserChatID: 1, Mint: mint, Platform: solmeta.PlatformPumpFunBondingCurve}
	c.Put(&Entry{Key: key, Instructions: []classifier.Instruction{}, CreatedAt: time.Now()})

	c.sweep(context.Background())

	if c.Get(key) == nil {
		t.Error("expected high-market-cap entry to survive the sweep")
	}
}

func TestSweepSkipsEntryWithMissingMetadata(t *testing.T) {
	mint := testMint(0x03)
	api := &fakeAPI{
		prices: map[solana.PublicKey]collaborators.TokenPrice{},
		metas:  map[solana.PublicKey]collaborators.TokenMetadata{},
	}
	c := New(api, testConfig(), logging.Default())

	key := Key{UserChatID: 1, Mint: mint, Platform: solmeta.PlatformPumpFunBondingCurve}
	c.Put(&Entry{Key: key, Instructions: []classifier.Instruction{}, CreatedAt: time.Now()})

	c.sweep(context.Background())

	if c.Get(key) == nil {
		t.Error("missing metadata must never prune an entry")
	}
}

func TestSweepRespectsLaunchpadGrace(t *testing.T) {
	mint := testMint(0x04)
	api := &fakeAPI{
		prices: map[solana.PublicKey]collaborators.TokenPrice{mint: {Mint: mint, PriceSol: 0}},
		metas:  map[solana.PublicKey]collaborators.TokenMetadata{mint: {Mint: mint, Decimals: 6, TotalSupply: big.NewInt(0)}},
	}
	c := New(api, testConfig(), logging.Default())

	key := Key{UserChatID: 1, Mint: mint, Platform: solmeta.PlatformRaydiumLaunchpad}
	c.Put(&Entry{Key: key, Instructions: []classifier.Instruction{}, CreatedAt: time.Now()})

	c.sweep(context.Background())

	if c.Get(key) == nil {
		t.Error("a freshly created launchpad entry must survive its grace period even at zero market cap")
	}
}
