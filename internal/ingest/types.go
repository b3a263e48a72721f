// Package ingest subscribes to leader-account transaction notifications and
// normalizes them into LeaderTxEvents, falling back to polling when the
// stream is unhealthy.
package ingest

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
)

// CompiledInstruction is one instruction as it appeared in the leader's
// transaction message: account and program indices into RawTransaction's
// AccountKeys, plus the raw instruction data.
type CompiledInstruction struct {
	ProgramIDIndex uint16
	AccountIndices []uint16
	Data           []byte
}

// TokenBalance is a pre- or post- token balance entry for one account index.
type TokenBalance struct {
	AccountIndex uint16
	Mint         solana.PublicKey
	Owner        solana.PublicKey
	Amount       *big.Int
	Decimals     uint8
}

// InnerInstructionSet is the CPI trace for one top-level instruction index,
// needed by the classifier's router tie-break (spec §4.2: "the first inner
// instruction whose program_id is a recognized leaf AMM").
type InnerInstructionSet struct {
	Index        uint16
	Instructions []CompiledInstruction
}

// TransactionMeta carries the balance deltas and log output the classifier
// needs, without requiring a second RPC round trip.
type TransactionMeta struct {
	Err               bool
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
	InnerInstructions []InnerInstructionSet
}

// RawTransaction is the full account-key list (static ∪ loaded-writable ∪
// loaded-readonly, in that order) plus ordered compiled instructions and
// meta, complete enough to reproduce any instruction the leader executed.
type RawTransaction struct {
	AccountKeys []solana.PublicKey
	// NumStaticAccountKeys is the count of AccountKeys entries that came
	// from the message itself, before any address-lookup-table expansion.
	NumStaticAccountKeys int
	// NumLoadedWritable is the count of loaded (ALT) keys that are
	// writable; they are appended to AccountKeys before the loaded
	// readonly keys (spec's static ∪ loaded-writable ∪ loaded-readonly
	// ordering).
	NumLoadedWritable           int
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8

	Instructions []CompiledInstruction
	Meta         TransactionMeta
}

// IsSigner reports whether the account at index signed the transaction.
// Only static accounts (never address-lookup-table loaded ones) can sign.
func (r *RawTransaction) IsSigner(index int) bool {
	return index < int(r.NumRequiredSignatures)
}

// IsWritable reports whether the account at index is writable, applying
// the standard Solana message-header writability rule for static accounts
// and the loaded-writable/loaded-readonly split for ALT accounts.
func (r *RawTransaction) IsWritable(index int) bool {
	if index < r.NumStaticAccountKeys {
		if index < int(r.NumRequiredSignatures) {
			return index < int(r.NumRequiredSignatures)-int(r.NumReadonlySignedAccounts)
		}
		return index < r.NumStaticAccountKeys-int(r.NumReadonlyUnsignedAccounts)
	}
	loadedIndex := index - r.NumStaticAccountKeys
	return loadedIndex < r.NumLoadedWritable
}

// LeaderTxEvent is emitted by the stream client and the fallback poller.
type LeaderTxEvent struct {
	LeaderPubkey solana.PublicKey
	Signature    string // base58, for dedup and logging
	Slot         uint64
	RawTx        *RawTransaction
	ObservedAt   time.Time
	Source       string // "stream" or "poll", for logging only
}

// CircuitState is the ingest health state driving the fallback poller.
type CircuitState int

const (
	// Healthy means the stream is connected and has delivered a message
	// within the last 30 seconds.
	Healthy CircuitState = iota
	// Degraded means the stream is down or stale; the fallback poller
	// should be running.
	Degraded
)

func (s CircuitState) String() string {
	if s == Healthy {
		return "healthy"
	}
	return "degraded"
}

// StreamSource is the interface both the websocket client and the fallback
// poller implement, so the orchestrator wiring treats them uniformly.
type StreamSource interface {
	// Events returns the channel LeaderTxEvents are published on.
	Events() <-chan LeaderTxEvent
	// SetLeaders replaces the set of leader pubkeys being watched.
	SetLeaders(leaders []solana.PublicKey)
	// Close stops the source and releases its connection.
	Close() error
}
