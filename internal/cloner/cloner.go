// Package cloner is the universal cloner (C4): given a leader's classified
// swap intent and a subscriber's wallet, it builds an instruction list that
// replays the same economic action under the subscriber's signature. It is
// the largest and most platform-specific component in the pipeline; the
// account reforging, PDA re-derivation, instruction-data strategies, and
// prerequisite synthesis each live in their own file.
package cloner

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/solmeta"
	"github.com/solcopy/engine/internal/store"
)

// FatalError is returned when the cloner cannot safely proceed and the
// user's trade must be skipped rather than sent malformed (spec §4.3.6).
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("cloner: fatal: %s", e.Reason)
}

// ChainReader is the read-only on-chain lookup surface the cloner needs.
// Its concrete implementation (RPC-backed or otherwise) is free; the cloner
// only ever calls these two operations (spec §4.3 "a read-only connection
// abstraction for on-chain lookups").
type ChainReader interface {
	// MintTokenProgram returns the token program that owns mint
	// (solmeta.SPLTokenProgramID or solmeta.Token2022ProgramID). On lookup
	// failure it is expected to return (SPLTokenProgramID, err) so callers
	// can apply spec §4.3.6's "assume standard-SPL, log warning, continue".
	MintTokenProgram(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error)
	// AccountExists reports whether pubkey currently holds an account.
	AccountExists(ctx context.Context, pubkey solana.PublicKey) (bool, error)
}

// RPCChainReader implements ChainReader against a live Solana RPC client.
type RPCChainReader struct {
	Client *rpc.Client
}

// NewRPCChainReader builds a ChainReader backed by client.
func NewRPCChainReader(client *rpc.Client) *RPCChainReader {
	return &RPCChainReader{Client: client}
}

// MintTokenProgram implements ChainReader.
func (r *RPCChainReader) MintTokenProgram(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	info, err := r.Client.GetAccountInfo(ctx, mint)
	if err != nil {
		return solmeta.SPLTokenProgramID, err
	}
	if info == nil || info.Value == nil {
		return solmeta.SPLTokenProgramID, fmt.Errorf("cloner: mint %s has no account info", mint)
	}
	owner := info.Value.Owner
	if owner.Equals(solmeta.Token2022ProgramID) {
		return solmeta.Token2022ProgramID, nil
	}
	return solmeta.SPLTokenProgramID, nil
}

// AccountExists implements ChainReader.
func (r *RPCChainReader) AccountExists(ctx context.Context, pubkey solana.PublicKey) (bool, error) {
	info, err := r.Client.GetAccountInfo(ctx, pubkey)
	if err != nil {
		if isAccountNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info != nil && info.Value != nil, nil
}

func isAccountNotFound(err error) bool {
	return errors.Is(err, rpc.ErrNotFound)
}

// Input carries everything the cloner needs beyond the classified intent
// itself (spec §4.3 "Inputs").
type Input struct {
	Intent        *classifier.SwapIntent
	UserPubkey    solana.PublicKey
	UserAmountRaw uint64 // lamports on a buy, token base units on a sell
	SlippageBps   uint16
	Nonce         *store.NonceState
}

// CloneResult is the cloner's output: an ordered instruction list ready for
// the dispatcher to wrap in compute-budget instructions and sign.
type CloneResult struct {
	Instructions []classifier.Instruction
	UsedNonce    bool
}

// Clone implements spec §4.3 end to end: forging map, account reforging,
// PDA re-derivation, instruction-data strategy, and prerequisite synthesis.
func Clone(ctx context.Context, reader ChainReader, in Input) (*CloneResult, error) {
	if in.Intent == nil {
		return nil, &FatalError{Reason: "nil swap intent"}
	}
	intent := in.Intent

	target, platform := effectiveTarget(intent)

	forgingMap, err := buildForgingMap(ctx, reader, intent, in.UserPubkey)
	if err != nil {
		return nil, err
	}

	accounts, err := reforgeAccounts(target.ProgramID, target.Accounts, forgingMap, in.UserPubkey, platform)
	if err != nil {
		return nil, err
	}

	data, err := buildInstructionData(target, platform, intent, in.UserAmountRaw, in.SlippageBps)
	if err != nil {
		return nil, err
	}

	reforged := classifier.Instruction{
		ProgramID: target.ProgramID,
		Accounts:  accounts,
		Data:      data,
	}

	prereqs, usedNonce, err := synthesizePrerequisites(ctx, reader, in, forgingMap, platform)
	if err != nil {
		return nil, err
	}

	instructions := make([]classifier.Instruction, 0, len(prereqs)+1)
	instructions = append(instructions, prereqs...)
	instructions = append(instructions, reforged)

	return &CloneResult{Instructions: instructions, UsedNonce: usedNonce}, nil
}

// effectiveTarget picks the instruction the cloner actually rebuilds: the
// CPI-extracted nested leaf AMM call when the selected cloning target is a
// router and a nested leaf was found, otherwise the cloning target itself
// (spec §4.3.4 "special case... the dispatcher may CPI-extract").
func effectiveTarget(intent *classifier.SwapIntent) (classifier.Instruction, solmeta.Platform) {
	if solmeta.IsRouter(intent.CloningTarget.ProgramID) && intent.NestedTarget != nil {
		return *intent.NestedTarget, intent.NestedPlatform
	}
	return intent.CloningTarget, intent.Platform
}

// buildForgingMap implements spec §4.3.1: leader pubkey and leader
// associated-token-accounts map to the user's equivalents, for every mint
// that is not native SOL.
func buildForgingMap(ctx context.Context, reader ChainReader, intent *classifier.SwapIntent, user solana.PublicKey) (map[solana.PublicKey]solana.PublicKey, error) {
	forgingMap := map[solana.PublicKey]solana.PublicKey{
		intent.LeaderPubkey: user,
	}

	if !intent.InputMint.Equals(solmeta.NativeSOLMint) {
		leaderATA, userATA, err := forgeATAPair(ctx, reader, intent.LeaderPubkey, user, intent.InputMint)
		if err != nil {
			return nil, err
		}
		forgingMap[leaderATA] = userATA
	}
	if !intent.OutputMint.Equals(solmeta.NativeSOLMint) {
		leaderATA, userATA, err := forgeATAPair(ctx, reader, intent.LeaderPubkey, user, intent.OutputMint)
		if err != nil {
			return nil, err
		}
		forgingMap[leaderATA] = userATA
	}

	return forgingMap, nil
}

// forgeATAPair derives both the leader's and the user's associated-token-
// account address for mint. Both are derived against the standard
// SPL-Token program whichever program owns the mint; a Token-2022 mint gets
// the standard-SPL address.
func forgeATAPair(ctx context.Context, reader ChainReader, leader, user, mint solana.PublicKey) (leaderATA, userATA solana.PublicKey, err error) {
	// The mint-owner lookup's result and error are both discarded; neither
	// affects the derivation below.
	_, _ = reader.MintTokenProgram(ctx, mint)

	// solana-go's FindAssociatedTokenAddress always derives against the
	// standard SPL-Token program; no Token-2022-aware ATA derivation helper
	// exists anywhere in the example corpus, so Token-2022 mints use the
	// same derivation (see DESIGN.md).
	leaderATA, _, err = solana.FindAssociatedTokenAddress(leader, mint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("cloner: derive leader ATA: %w", err)
	}
	userATA, _, err = solana.FindAssociatedTokenAddress(user, mint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("cloner: derive user ATA: %w", err)
	}
	return leaderATA, userATA, nil
}
