// Package poller is the fallback signature poller (C2): when the stream
// ingest is Degraded, it fetches recent signatures per leader on an interval
// and emits the same LeaderTxEvent shape as the stream, so the rest of the
// pipeline never needs to know which path a transaction arrived on.
package poller

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solcopy/engine/internal/dedup"
	"github.com/solcopy/engine/internal/ingest"
	"github.com/solcopy/engine/pkg/logging"
)

// Poller fetches recent signatures for each watched leader and emits
// LeaderTxEvents through the same dedup set the stream client shares.
type Poller struct {
	client   *rpc.Client
	interval time.Duration
	dedup    *dedup.SignatureSet
	log      *logging.Logger

	leadersMu sync.RWMutex
	leaders   []solana.PublicKey

	highWaterMu sync.Mutex
	highWater   map[solana.PublicKey]solana.Signature

	events chan ingest.LeaderTxEvent

	runningMu sync.Mutex
	cancel    context.CancelFunc
}

// New builds a Poller. It starts out not running; call Start when the
// stream ingest reports Degraded and Stop when it reports Healthy.
func New(client *rpc.Client, interval time.Duration, dedupSet *dedup.SignatureSet, log *logging.Logger) *Poller {
	return &Poller{
		client:    client,
		interval:  interval,
		dedup:     dedupSet,
		log:       log,
		highWater: make(map[solana.PublicKey]solana.Signature),
		events:    make(chan ingest.LeaderTxEvent, 1024),
	}
}

// Events implements ingest.StreamSource.
func (p *Poller) Events() <-chan ingest.LeaderTxEvent { return p.events }

// SetLeaders implements ingest.StreamSource.
func (p *Poller) SetLeaders(leaders []solana.PublicKey) {
	p.leadersMu.Lock()
	p.leaders = append([]solana.PublicKey(nil), leaders...)
	p.leadersMu.Unlock()
}

func (p *Poller) currentLeaders() []solana.PublicKey {
	p.leadersMu.RLock()
	defer p.leadersMu.RUnlock()
	return append([]solana.PublicKey(nil), p.leaders...)
}

// Close implements ingest.StreamSource.
func (p *Poller) Close() error {
	p.Stop()
	return nil
}

// Start begins the polling loop if it is not already running. Safe to call
// repeatedly; a second call while already running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	if p.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go p.run(loopCtx)
	p.log.Info("fallback poller started")
}

// Stop halts the polling loop if it is running.
func (p *Poller) Stop() {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.log.Info("fallback poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	for _, leader := range p.currentLeaders() {
		p.pollLeader(ctx, leader)
	}
}

func (p *Poller) pollLeader(ctx context.Context, leader solana.PublicKey) {
	p.highWaterMu.Lock()
	until := p.highWater[leader]
	p.highWaterMu.Unlock()

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: intPtr(50),
	}
	if until != (solana.Signature{}) {
		opts.Until = until
	}

	sigs, err := p.client.GetSignaturesForAddressWithOpts(ctx, leader, opts)
	if err != nil {
		p.log.Warn("poll GetSignaturesForAddress failed", "leader", leader, "error", err)
		return
	}
	if len(sigs) == 0 {
		return
	}

	// The RPC returns newest-first; advance the high-water mark to the
	// newest signature seen, then process oldest-to-newest so downstream
	// ordering roughly matches on-chain order.
	newHighWater := sigs[0].Signature
	for i := len(sigs) - 1; i >= 0; i-- {
		entry := sigs[i]
		if entry.Err != nil {
			continue
		}
		p.fetchAndEmit(ctx, leader, entry.Signature, entry.Slot)
	}

	p.highWaterMu.Lock()
	p.highWater[leader] = newHighWater
	p.highWaterMu.Unlock()
}

func (p *Poller) fetchAndEmit(ctx context.Context, leader solana.PublicKey, sig solana.Signature, slot uint64) {
	sigStr := sig.String()
	if p.dedup.SeenOrAdd(leader.String(), sigStr) {
		return
	}

	maxVersion := uint64(0)
	tx, err := p.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		p.log.Warn("poll GetTransaction failed", "signature", sigStr, "error", err)
		return
	}
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return
	}

	decoded, err := tx.Transaction.GetTransaction()
	if err != nil || decoded == nil {
		p.log.Warn("poll decode transaction failed", "signature", sigStr, "error", err)
		return
	}

	raw := buildRawTransaction(decoded, tx.Meta)

	select {
	case p.events <- ingest.LeaderTxEvent{
		LeaderPubkey: leader,
		Signature:    sigStr,
		Slot:         slot,
		RawTx:        raw,
		ObservedAt:   time.Now(),
		Source:       "poll",
	}:
	default:
		p.log.Warn("poll event channel full, dropping event", "signature", sigStr)
	}
}

func buildRawTransaction(tx *solana.Transaction, meta *rpc.TransactionMeta) *ingest.RawTransaction {
	numStatic := len(tx.Message.AccountKeys)
	numLoadedWritable := len(meta.LoadedAddresses.Writable)

	keys := append([]solana.PublicKey(nil), tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.Readonly...)

	instructions := make([]ingest.CompiledInstruction, len(tx.Message.Instructions))
	for i, ci := range tx.Message.Instructions {
		accountIndices := make([]uint16, len(ci.Accounts))
		for j, a := range ci.Accounts {
			accountIndices[j] = uint16(a)
		}
		instructions[i] = ingest.CompiledInstruction{
			ProgramIDIndex: uint16(ci.ProgramIDIndex),
			AccountIndices: accountIndices,
			Data:           []byte(ci.Data),
		}
	}

	header := tx.Message.Header

	return &ingest.RawTransaction{
		AccountKeys:                 keys,
		NumStaticAccountKeys:        numStatic,
		NumLoadedWritable:           numLoadedWritable,
		NumRequiredSignatures:       header.NumRequiredSignatures,
		NumReadonlySignedAccounts:   header.NumReadonlySignedAccounts,
		NumReadonlyUnsignedAccounts: header.NumReadonlyUnsignedAccounts,
		Instructions:                instructions,
		Meta: ingest.TransactionMeta{
			Err:               meta.Err != nil,
			PreBalances:       meta.PreBalances,
			PostBalances:      meta.PostBalances,
			PreTokenBalances:  convertTokenBalances(meta.PreTokenBalances),
			PostTokenBalances: convertTokenBalances(meta.PostTokenBalances),
			LogMessages:       meta.LogMessages,
			InnerInstructions: convertInnerInstructions(meta.InnerInstructions),
		},
	}
}

func convertInnerInstructions(src []rpc.InnerInstruction) []ingest.InnerInstructionSet {
	out := make([]ingest.InnerInstructionSet, len(src))
	for i, set := range src {
		instructions := make([]ingest.CompiledInstruction, len(set.Instructions))
		for j, ci := range set.Instructions {
			accountIndices := make([]uint16, len(ci.Accounts))
			for k, a := range ci.Accounts {
				accountIndices[k] = uint16(a)
			}
			instructions[j] = ingest.CompiledInstruction{
				ProgramIDIndex: uint16(ci.ProgramIDIndex),
				AccountIndices: accountIndices,
				Data:           []byte(ci.Data),
			}
		}
		out[i] = ingest.InnerInstructionSet{Index: uint16(set.Index), Instructions: instructions}
	}
	return out
}

func convertTokenBalances(src []rpc.TokenBalance) []ingest.TokenBalance {
	out := make([]ingest.TokenBalance, 0, len(src))
	for _, tb := range src {
		if tb.UiTokenAmount == nil {
			continue
		}
		amount, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
		if !ok {
			continue
		}
		var owner solana.PublicKey
		if tb.Owner != nil {
			owner = *tb.Owner
		}
		out = append(out, ingest.TokenBalance{
			AccountIndex: uint16(tb.AccountIndex),
			Mint:         tb.Mint,
			Owner:        owner,
			Amount:       amount,
			Decimals:     tb.UiTokenAmount.Decimals,
		})
	}
	return out
}

func intPtr(v int) *int { return &v }
