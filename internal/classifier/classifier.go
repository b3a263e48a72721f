// Package classifier turns a raw leader transaction into a SwapIntent: the
// trade side, mints, platform, and the one instruction selected as the
// cloning target. It is a pure function package — no network calls, no
// shared state, deterministic on identical input (spec's single
// source-of-truth requirement for "what did the leader just do").
package classifier

import (
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/ingest"
	"github.com/solcopy/engine/internal/solmeta"
)

// TradeType is the leader's side of the swap relative to native SOL.
type TradeType int

const (
	Buy TradeType = iota
	Sell
)

func (t TradeType) String() string {
	if t == Buy {
		return "buy"
	}
	return "sell"
}

// AccountMeta is one account reference inside a cloning target.
type AccountMeta struct {
	Pubkey     solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a fully-resolved instruction: program, accounts, data.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// SwapIntent is the classifier's output: everything the cloner needs to
// rebuild the leader's swap for a different payer.
type SwapIntent struct {
	LeaderPubkey       solana.PublicKey
	TradeType          TradeType
	InputMint          solana.PublicKey
	OutputMint         solana.PublicKey
	Platform           solmeta.Platform
	CloningTarget      Instruction
	LeaderInAmountRaw  uint64
	LeaderOutAmountRaw uint64

	// NestedTarget is set when CloningTarget's program is a recognized
	// router and a recognized leaf-AMM instruction was found among that
	// same outer instruction's inner (CPI) instructions. The cloner may
	// CPI-extract: build a direct instruction against NestedTarget's
	// platform instead of replaying the router call (spec §4.3.4).
	NestedTarget   *Instruction
	NestedPlatform solmeta.Platform
}

// instructionsNeverSelected are never picked as a cloning target even if
// their program_id happens to be recognized incidentally (spec §4.2).
var instructionsNeverSelected = map[solana.PublicKey]bool{
	solmeta.ComputeBudgetProgramID:   true,
	solmeta.MemoProgramID:            true,
	solmeta.AssociatedTokenProgramID: true,
}

// Classify implements spec §4.2. It returns (nil, false) when raw is not a
// recognizable swap by or for leader — never an error; a transaction simply
// not being a swap is an expected, common outcome.
func Classify(raw *ingest.RawTransaction, leader solana.PublicKey) (*SwapIntent, bool) {
	if raw == nil || raw.Meta.Err {
		return nil, false
	}

	candidate, nested, nestedPlatform, ok := selectCloningTarget(raw, leader)
	if !ok {
		return nil, false
	}

	tradeType, inputMint, outputMint, inAmount, outAmount, ok := classifyDeltas(raw, leader)
	if !ok {
		return nil, false
	}

	platform, _ := solmeta.PlatformFor(candidate.ProgramID)

	return &SwapIntent{
		LeaderPubkey:       leader,
		TradeType:          tradeType,
		InputMint:          inputMint,
		OutputMint:         outputMint,
		Platform:           platform,
		CloningTarget:      candidate,
		LeaderInAmountRaw:  inAmount,
		LeaderOutAmountRaw: outAmount,
		NestedTarget:       nested,
		NestedPlatform:     nestedPlatform,
	}, true
}

// selectCloningTarget walks the transaction's top-level instructions in
// order, preferring a recognized router's outer call over any inner leaf
// AMM instruction, and otherwise falling back to the first inner
// instruction whose program_id is a recognized leaf AMM (spec §4.2 tie
// break for multi-hop routes).
func selectCloningTarget(raw *ingest.RawTransaction, leader solana.PublicKey) (Instruction, *Instruction, solmeta.Platform, bool) {
	for outerIdx, ci := range raw.Instructions {
		programID, ok := resolveProgramID(raw, ci.ProgramIDIndex)
		if !ok || instructionsNeverSelected[programID] {
			continue
		}
		if _, recognized := solmeta.PlatformFor(programID); !recognized {
			continue
		}
		instr := buildInstruction(raw, programID, ci)
		if !includesSigner(instr, leader) {
			continue
		}

		// A recognized outer instruction wins outright: if it is a
		// router, spec prefers it over any inner leaf AMM call; if it is
		// a leaf AMM directly, there is nothing to prefer it over. When it
		// is a router, also surface the first recognized non-router inner
		// instruction it invoked, so the cloner can CPI-extract.
		if solmeta.IsRouter(programID) {
			nested, nestedPlatform := findNestedLeaf(raw, outerIdx)
			return instr, nested, nestedPlatform, true
		}
		return instr, nil, solmeta.PlatformUnknown, true
	}

	// No recognized top-level instruction signed by leader: look for a
	// recognized leaf AMM among the inner (CPI) instructions, in order of
	// the outer instruction they belong to.
	for _, set := range raw.Meta.InnerInstructions {
		for _, ci := range set.Instructions {
			programID, ok := resolveProgramID(raw, ci.ProgramIDIndex)
			if !ok || instructionsNeverSelected[programID] {
				continue
			}
			if _, recognized := solmeta.PlatformFor(programID); !recognized || solmeta.IsRouter(programID) {
				continue
			}
			instr := buildInstruction(raw, programID, ci)
			if includesSigner(instr, leader) {
				return instr, nil, solmeta.PlatformUnknown, true
			}
		}
	}

	return Instruction{}, nil, solmeta.PlatformUnknown, false
}

// findNestedLeaf looks among outerIdx's inner instructions for the first
// recognized non-router program, for CPI-extraction out of a router call.
func findNestedLeaf(raw *ingest.RawTransaction, outerIdx int) (*Instruction, solmeta.Platform) {
	for _, set := range raw.Meta.InnerInstructions {
		if int(set.Index) != outerIdx {
			continue
		}
		for _, ci := range set.Instructions {
			programID, ok := resolveProgramID(raw, ci.ProgramIDIndex)
			if !ok || instructionsNeverSelected[programID] {
				continue
			}
			platform, recognized := solmeta.PlatformFor(programID)
			if !recognized || solmeta.IsRouter(programID) {
				continue
			}
			instr := buildInstruction(raw, programID, ci)
			return &instr, platform
		}
	}
	return nil, solmeta.PlatformUnknown
}

func resolveProgramID(raw *ingest.RawTransaction, index uint16) (solana.PublicKey, bool) {
	if int(index) >= len(raw.AccountKeys) {
		return solana.PublicKey{}, false
	}
	return raw.AccountKeys[index], true
}

func buildInstruction(raw *ingest.RawTransaction, programID solana.PublicKey, ci ingest.CompiledInstruction) Instruction {
	accounts := make([]AccountMeta, len(ci.AccountIndices))
	for i, idx := range ci.AccountIndices {
		if int(idx) >= len(raw.AccountKeys) {
			continue
		}
		accounts[i] = AccountMeta{
			Pubkey:     raw.AccountKeys[idx],
			IsSigner:   raw.IsSigner(int(idx)),
			IsWritable: raw.IsWritable(int(idx)),
		}
	}
	data := make([]byte, len(ci.Data))
	copy(data, ci.Data)
	return Instruction{ProgramID: programID, Accounts: accounts, Data: data}
}

func includesSigner(instr Instruction, leader solana.PublicKey) bool {
	for _, acc := range instr.Accounts {
		if acc.IsSigner && acc.Pubkey.Equals(leader) {
			return true
		}
	}
	return false
}

// classifyDeltas determines trade_type, input_mint, output_mint and the
// absolute amounts by intersecting leader's SOL balance delta against
// leader-owned token-account balance deltas (spec §4.2 step 3).
func classifyDeltas(raw *ingest.RawTransaction, leader solana.PublicKey) (tradeType TradeType, inputMint, outputMint solana.PublicKey, inAmount, outAmount uint64, ok bool) {
	solDelta, hasSOL := leaderSOLDelta(raw, leader)
	if !hasSOL {
		return 0, solana.PublicKey{}, solana.PublicKey{}, 0, 0, false
	}

	tokenDeltas := leaderTokenDeltas(raw, leader)
	if len(tokenDeltas) == 0 {
		return 0, solana.PublicKey{}, solana.PublicKey{}, 0, 0, false
	}

	// Exactly one side must be native-SOL: pick the single non-zero token
	// delta that moved opposite to SOL (spec invariant "exactly one side
	// native-SOL").
	var mint solana.PublicKey
	var tokenDelta *big.Int
	nonZero := 0
	for m, d := range tokenDeltas {
		if d.Sign() == 0 {
			continue
		}
		nonZero++
		mint = m
		tokenDelta = d
	}
	if nonZero != 1 {
		return 0, solana.PublicKey{}, solana.PublicKey{}, 0, 0, false
	}

	if solDelta.Sign() == 0 || tokenDelta.Sign() == 0 {
		return 0, solana.PublicKey{}, solana.PublicKey{}, 0, 0, false
	}

	absSOL := new(big.Int).Abs(solDelta)
	absToken := new(big.Int).Abs(tokenDelta)

	if solDelta.Sign() < 0 && tokenDelta.Sign() > 0 {
		// leader spent SOL, received tokens: a buy.
		return Buy, solmeta.NativeSOLMint, mint, absSOL.Uint64(), absToken.Uint64(), true
	}
	if solDelta.Sign() > 0 && tokenDelta.Sign() < 0 {
		// leader spent tokens, received SOL: a sell.
		return Sell, mint, solmeta.NativeSOLMint, absToken.Uint64(), absSOL.Uint64(), true
	}

	return 0, solana.PublicKey{}, solana.PublicKey{}, 0, 0, false
}

// leaderSOLDelta finds the leader's own account in AccountKeys and computes
// returns its post-minus-pre lamport balance delta. The delta is not
// adjusted for the transaction fee: when the leader is the fee payer, the
// fee is part of it, and so of the SOL amount classifyDeltas reports.
func leaderSOLDelta(raw *ingest.RawTransaction, leader solana.PublicKey) (*big.Int, bool) {
	for i, key := range raw.AccountKeys {
		if !key.Equals(leader) {
			continue
		}
		if i >= len(raw.Meta.PreBalances) || i >= len(raw.Meta.PostBalances) {
			return nil, false
		}
		pre := new(big.Int).SetUint64(raw.Meta.PreBalances[i])
		post := new(big.Int).SetUint64(raw.Meta.PostBalances[i])
		return new(big.Int).Sub(post, pre), true
	}
	return nil, false
}

// leaderTokenDeltas sums post-minus-pre token balance deltas per mint across
// every account index owned by leader.
func leaderTokenDeltas(raw *ingest.RawTransaction, leader solana.PublicKey) map[solana.PublicKey]*big.Int {
	deltas := make(map[solana.PublicKey]*big.Int)

	pre := make(map[uint16]ingest.TokenBalance)
	for _, tb := range raw.Meta.PreTokenBalances {
		if tb.Owner.Equals(leader) {
			pre[tb.AccountIndex] = tb
		}
	}
	post := make(map[uint16]ingest.TokenBalance)
	for _, tb := range raw.Meta.PostTokenBalances {
		if tb.Owner.Equals(leader) {
			post[tb.AccountIndex] = tb
		}
	}

	seen := make(map[uint16]bool)
	for idx := range pre {
		seen[idx] = true
	}
	for idx := range post {
		seen[idx] = true
	}

	for idx := range seen {
		preTB, hasPre := pre[idx]
		postTB, hasPost := post[idx]

		var mint solana.PublicKey
		var preAmount, postAmount *big.Int
		switch {
		case hasPre && hasPost:
			mint = preTB.Mint
			preAmount, postAmount = preTB.Amount, postTB.Amount
		case hasPre:
			mint = preTB.Mint
			preAmount, postAmount = preTB.Amount, big.NewInt(0)
		case hasPost:
			mint = postTB.Mint
			preAmount, postAmount = big.NewInt(0), postTB.Amount
		default:
			continue
		}

		delta := new(big.Int).Sub(postAmount, preAmount)
		if existing, ok := deltas[mint]; ok {
			deltas[mint] = new(big.Int).Add(existing, delta)
		} else {
			deltas[mint] = delta
		}
	}

	return deltas
}
