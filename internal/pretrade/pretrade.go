// Package pretrade is the pre-trade cache + janitor (C7): a sync.Map of
// speculatively pre-built instructions keyed by (user, mint, platform),
// pruned on a periodic schedule by platform-class market-cap rules.
package pretrade

import (
	"context"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/collaborators"
	"github.com/solcopy/engine/internal/config"
	"github.com/solcopy/engine/internal/solmeta"
	"github.com/solcopy/engine/pkg/logging"
)

// Key identifies one cache entry (spec §4.6 "keyed by (user, mint,
// platform)").
type Key struct {
	UserChatID int64
	Mint       solana.PublicKey
	Platform   solmeta.Platform
}

// Entry is an immutable speculative pre-build. The cache never mutates an
// entry in place; a refresh replaces it wholesale (spec §9 "mutable
// pre-built instructions" design note).
type Entry struct {
	Key          Key
	Instructions []classifier.Instruction
	CreatedAt    time.Time
}

// Cache holds speculative pre-builds and prunes them periodically.
type Cache struct {
	entries sync.Map // Key -> *Entry
	api     collaborators.ApiManager
	cfg     config.PreTradeConfig
	log     *logging.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds a Cache. api supplies the batched price/metadata lookups the
// janitor needs; it is the "separate universal-scanner path... treated as
// an optional collaborator" spec §4.6 describes.
func New(api collaborators.ApiManager, cfg config.PreTradeConfig, log *logging.Logger) *Cache {
	return &Cache{api: api, cfg: cfg, log: log.Component("pretrade")}
}

// Put inserts or wholesale-replaces an entry.
func (c *Cache) Put(entry *Entry) {
	c.entries.Store(entry.Key, entry)
}

// Get returns the cached entry for key, or nil if absent.
func (c *Cache) Get(key Key) *Entry {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil
	}
	return v.(*Entry)
}

// Delete evicts key unconditionally.
func (c *Cache) Delete(key Key) {
	c.entries.Delete(key)
}

// Start launches the janitor goroutine. ctx governs its lifetime; calling
// Stop (or cancelling ctx) ends it.
func (c *Cache) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
	c.log.Info("pretrade janitor started", "interval", c.cfg.JanitorInterval())
}

// Stop ends the janitor goroutine and waits for it to exit.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.done != nil {
			<-c.done
		}
	})
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.JanitorInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep implements spec §4.6's four-step janitor pass: batch-fetch price
// and metadata for every cached mint, then evaluate each entry against
// its platform-class prune rule.
func (c *Cache) sweep(ctx context.Context) {
	entries := c.snapshot()
	if len(entries) == 0 {
		return
	}

	mints := make([]solana.PublicKey, 0, len(entries))
	seen := map[solana.PublicKey]bool{}
	for _, e := range entries {
		if !seen[e.Key.Mint] {
			seen[e.Key.Mint] = true
			mints = append(mints, e.Key.Mint)
		}
	}

	prices, err := c.api.GetTokenPrices(ctx, mints)
	if err != nil {
		c.log.Warn("pretrade janitor: price fetch failed, skipping this cycle", "error", err)
		return
	}
	metas, err := c.api.GetTokenMetadatas(ctx, mints)
	if err != nil {
		c.log.Warn("pretrade janitor: metadata fetch failed, skipping this cycle", "error", err)
		return
	}

	now := time.Now()
	for _, e := range entries {
		price, havePrice := prices[e.Key.Mint]
		meta, haveMeta := metas[e.Key.Mint]
		if !havePrice || !haveMeta {
			// Missing metadata never prunes (spec §4.6 point 4).
			continue
		}

		marketCap := marketCapSol(meta, price)
		if c.shouldPrune(e.Key.Platform, marketCap, now.Sub(e.CreatedAt)) {
			c.entries.Delete(e.Key)
		}
	}
}

func (c *Cache) snapshot() []*Entry {
	var out []*Entry
	c.entries.Range(func(_, v interface{}) bool {
		out = append(out, v.(*Entry))
		return true
	})
	return out
}

// marketCapSol implements spec §4.6 point 2:
// market_cap = (total_supply / 10^decimals) * price_sol.
func marketCapSol(meta collaborators.TokenMetadata, price collaborators.TokenPrice) float64 {
	if meta.TotalSupply == nil || meta.Decimals > 30 {
		return 0
	}
	supply := new(big.Float).SetInt(meta.TotalSupply)
	divisor := new(big.Float).SetFloat64(math.Pow10(int(meta.Decimals)))
	adjusted := new(big.Float).Quo(supply, divisor)
	adjustedFloat, _ := adjusted.Float64()
	return adjustedFloat * price.PriceSol
}

// shouldPrune evaluates spec §4.6's exhaustive platform-class rule. It
// switches on the enum, never a platform name string (spec §9).
func (c *Cache) shouldPrune(platform solmeta.Platform, marketCapSol float64, age time.Duration) bool {
	switch platform.Class() {
	case solmeta.ClassPumpFun:
		return marketCapSol < c.cfg.PumpFunMinMarketCapSol
	case solmeta.ClassLaunchpad:
		if age < c.cfg.LaunchpadGrace() {
			return false
		}
		return marketCapSol <= c.cfg.LaunchpadMinMarketCapSol
	case solmeta.ClassGeneralDEX:
		if age < c.cfg.GeneralDEXGrace() {
			return false
		}
		return marketCapSol < c.cfg.GeneralDEXMinMarketCapSol
	default:
		return false
	}
}
