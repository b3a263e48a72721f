// Package dispatcher is the submission engine (C5): it takes a cloner
// result, wraps it in compute-budget instructions, signs it through a
// collaborators.Signer, submits it, and polls for confirmation.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/collaborators"
	"github.com/solcopy/engine/internal/config"
	"github.com/solcopy/engine/internal/store"
	"github.com/solcopy/engine/pkg/logging"
)

// Input is one dispatch attempt's worth of work: a cloned instruction list
// plus everything needed to turn it into a signed, submitted transaction.
type Input struct {
	Instructions []classifier.Instruction
	UsedNonce    bool
	Nonce        *store.NonceState

	UserPubkey solana.PublicKey
	Signer     collaborators.Signer

	// ComputeUnitLimit is the leader's own compute-unit limit, reused
	// verbatim when present (spec §4.4); nil falls back to
	// config.TradingConfig.ComputeUnitDefault.
	ComputeUnitLimit *uint32

	// TradeAmountLamports is the user's SOL-equivalent trade size, used to
	// compute the priority fee (spec §4.5 "min(user_sol_amount * ratio,
	// cap)").
	TradeAmountLamports uint64
}

// Result is the outcome of one dispatch attempt.
type Result struct {
	Signature solana.Signature
	Status    store.TradeStatus

	// FeeLamports is the priority fee (compute-unit price * compute-unit
	// limit, converted from micro-lamports) attached to the submitted
	// transaction, for the caller to record against the position ledger.
	FeeLamports uint64
}

// Dispatcher submits cloned instruction lists to the network.
type Dispatcher struct {
	rpc    *rpc.Client
	cfg    config.TradingConfig
	tip    TipPolicy
	leader collaborators.LeaderTracker
	log    *logging.Logger
}

// TipPolicy is the optional block-engine tip-bundle policy (spec §1 "no
// MEV-protection beyond an optional tip"). Zero value disables tipping.
type TipPolicy struct {
	Enabled     bool
	TipLamports uint64
}

// New builds a Dispatcher. leader may be nil when direct slot-leader/Jito
// targeting is disabled.
func New(rpcClient *rpc.Client, cfg config.TradingConfig, tip TipPolicy, leader collaborators.LeaderTracker, log *logging.Logger) *Dispatcher {
	return &Dispatcher{rpc: rpcClient, cfg: cfg, tip: tip, leader: leader, log: log.Component("dispatcher")}
}

// ErrNonceAdvanceFailed is returned when the leading instruction was a
// nonce-advance and submission failed for a reason attributable to the
// nonce itself (stale nonce, wrong authority). The dispatch is not
// retried: the nonce state must be refreshed upstream first.
var ErrNonceAdvanceFailed = errors.New("dispatcher: nonce advance failed")

// Dispatch builds, signs, submits, and confirms one transaction for in.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (*Result, error) {
	instructions, feeLamports := d.composeInstructions(in)

	var lastErr error
	for attempt := 0; attempt <= d.cfg.SendMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		tx, recentBlockhash, err := d.buildTransaction(ctx, instructions, in)
		if err != nil {
			return nil, err
		}
		_ = recentBlockhash

		if err := d.sign(tx, in.UserPubkey, in.Signer); err != nil {
			return nil, fmt.Errorf("dispatcher: sign transaction: %w", err)
		}

		sig, err := d.submit(ctx, tx)
		if err != nil {
			if in.UsedNonce && isNonceError(err) {
				return nil, fmt.Errorf("%w: %v", ErrNonceAdvanceFailed, err)
			}
			if !isTransientSendError(err) {
				return &Result{Status: store.TradeStatusFailed, FeeLamports: feeLamports}, err
			}
			lastErr = err
			d.log.Warn("transient send failure, retrying", "attempt", attempt, "error", err)
			continue
		}

		status := d.confirm(ctx, sig)
		return &Result{Signature: sig, Status: status, FeeLamports: feeLamports}, nil
	}

	return &Result{Status: store.TradeStatusFailed, FeeLamports: feeLamports}, fmt.Errorf("dispatcher: exhausted %d retries: %w", d.cfg.SendMaxRetries, lastErr)
}

// composeInstructions implements spec §4.4's ordering rule: nonce-advance
// (if present, already first in in.Instructions per spec §4.3.5) stays
// first, then compute-unit-limit, then compute-unit-price, then the rest.
// It also returns the resulting priority fee in lamports (compute-unit
// price is denominated in micro-lamports per compute unit), for the
// caller to record against the position ledger.
func (d *Dispatcher) composeInstructions(in Input) ([]classifier.Instruction, uint64) {
	limit := d.cfg.ComputeUnitDefault
	if in.ComputeUnitLimit != nil {
		limit = *in.ComputeUnitLimit
	}
	price := d.cfg.PriorityFeeMicroLamports(in.TradeAmountLamports)
	feeLamports := (price * uint64(limit)) / 1_000_000

	budget := []classifier.Instruction{
		mustConvert(computebudget.NewSetComputeUnitLimitInstruction(limit).Build()),
		mustConvert(computebudget.NewSetComputeUnitPriceInstruction(price).Build()),
	}

	rest := in.Instructions
	head := []classifier.Instruction{}
	if in.UsedNonce && len(rest) > 0 {
		head = append(head, rest[0])
		rest = rest[1:]
	}

	out := make([]classifier.Instruction, 0, len(head)+len(budget)+len(rest))
	out = append(out, head...)
	out = append(out, budget...)
	out = append(out, rest...)
	return out, feeLamports
}

// buildTransaction acquires a blockhash (or the durable nonce's value) and
// compiles instructions into an unsigned solana.Transaction.
func (d *Dispatcher) buildTransaction(ctx context.Context, instructions []classifier.Instruction, in Input) (*solana.Transaction, solana.Hash, error) {
	var blockhash solana.Hash
	if in.UsedNonce && in.Nonce != nil {
		blockhash = in.Nonce.LatestNonceValue
	} else {
		recent, err := d.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return nil, solana.Hash{}, fmt.Errorf("dispatcher: get latest blockhash: %w", err)
		}
		blockhash = recent.Value.Blockhash
	}

	solIxs := make([]solana.Instruction, len(instructions))
	for i, ix := range instructions {
		solIxs[i] = toSolanaInstruction(ix)
	}

	tx, err := solana.NewTransaction(solIxs, blockhash, solana.TransactionPayer(in.UserPubkey))
	if err != nil {
		return nil, solana.Hash{}, fmt.Errorf("dispatcher: build transaction: %w", err)
	}
	return tx, blockhash, nil
}

// sign signs tx's message with signer, matching signer slots by pubkey.
// The engine never holds plaintext key material itself: signer.Sign hides
// whatever backs it (spec §1 "out of scope... secret storage").
func (d *Dispatcher) sign(tx *solana.Transaction, user solana.PublicKey, signer collaborators.Signer) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return fmt.Errorf("signer.Sign: %w", err)
	}

	for i, key := range tx.Message.AccountKeys {
		if i >= len(tx.Signatures) {
			break
		}
		if key.Equals(user) {
			tx.Signatures[i] = sig
			return nil
		}
	}
	return fmt.Errorf("user pubkey %s not found among required signers", user)
}

// submit sends tx, preferring a Jito hand-off when the collaborator is
// wired and tipping is enabled (spec §1 "no MEV-protection beyond an
// optional tip"), and otherwise the current slot leader's RPC endpoint when
// the collaborator knows one, else the primary RPC.
func (d *Dispatcher) submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	client := d.rpc
	if d.leader != nil {
		if d.tip.Enabled {
			sig, err := d.leader.SendJitoBundle(ctx, tx, d.tip.TipLamports)
			if err == nil {
				return sig, nil
			}
			d.log.Warn("jito bundle submission failed, falling back to direct RPC send", "error", err)
		}
		if endpoint, ok := d.leader.CurrentLeaderEndpoint(ctx); ok && endpoint != "" {
			client = rpc.New(endpoint)
		}
	}

	zero := uint(0)
	return client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentProcessed,
		MaxRetries:          &zero,
	})
}

// confirm polls signature statuses until confirmed/finalized, failed, or
// the configured timeout elapses, mirroring the example corpus's
// waitForTransactionResult/deriveSignatureStatus pattern.
func (d *Dispatcher) confirm(ctx context.Context, sig solana.Signature) store.TradeStatus {
	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.ConfirmTimeout())
	defer cancel()

	for {
		select {
		case <-waitCtx.Done():
			return store.TradeStatusPending
		default:
		}

		resp, err := d.rpc.GetSignatureStatuses(waitCtx, false, sig)
		if err != nil || resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
			time.Sleep(500 * time.Millisecond)
			continue
		}

		status := resp.Value[0]
		if status.Err != nil {
			return store.TradeStatusFailed
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return store.TradeStatusConfirmed
		default:
			time.Sleep(500 * time.Millisecond)
		}
	}
}

func toSolanaInstruction(ix classifier.Instruction) solana.Instruction {
	metas := make(solana.AccountMetaSlice, len(ix.Accounts))
	for i, a := range ix.Accounts {
		metas[i] = &solana.AccountMeta{
			PublicKey:  a.Pubkey,
			IsSigner:   a.IsSigner,
			IsWritable: a.IsWritable,
		}
	}
	return solana.NewInstruction(ix.ProgramID, metas, ix.Data)
}

func mustConvert(ix solana.Instruction) classifier.Instruction {
	data, err := ix.Data()
	if err != nil {
		// compute-budget instructions never fail to encode: their data is
		// a fixed-size integer, not user input.
		panic(fmt.Sprintf("dispatcher: compute-budget instruction encode: %v", err))
	}
	metas := ix.Accounts()
	accounts := make([]classifier.AccountMeta, len(metas))
	for i, m := range metas {
		accounts[i] = classifier.AccountMeta{Pubkey: m.PublicKey, IsSigner: m.IsSigner, IsWritable: m.IsWritable}
	}
	return classifier.Instruction{ProgramID: ix.ProgramID(), Accounts: accounts, Data: data}
}

// backoffDelay doubles starting from 50ms and caps at 2s (spec §7
// DispatchTransient), mirroring the stream client's reconnect backoff.
func backoffDelay(attempt int) time.Duration {
	backoff := 50 * time.Millisecond
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= 2*time.Second {
			return 2 * time.Second
		}
	}
	return backoff
}

func isTransientSendError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "BlockhashNotFound", "rate limit", "timeout", "connection reset", "temporarily unavailable")
}

func isNonceError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "NonceNoLongerValid", "InvalidAccountData", "nonce")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
