package classifier

import (
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/ingest"
	"github.com/solcopy/engine/internal/solmeta"
)

// testKey builds a deterministic, distinct 32-byte pubkey from a single
// filler byte, avoiding any dependence on hand-typed base58 literals.
func testKey(fill byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	return solana.PublicKeyFromBytes(b[:])
}

// buildPumpFunBuy constructs a minimal synthetic transaction: the leader
// signs a pump.fun buy instruction, spends lamports, and receives tokens of
// a single mint.
func buildPumpFunBuy(t *testing.T) (*ingest.RawTransaction, solana.PublicKey, solana.PublicKey) {
	t.Helper()

	leader := testKey(0x01)
	mint := testKey(0x02)
	leaderATA := testKey(0x03)

	accountKeys := []solana.PublicKey{
		leader,                   // 0: signer, writable (fee payer)
		leaderATA,                // 1: writable, leader's token account
		mint,                     // 2: readonly
		solmeta.PumpFunProgramID, // 3: readonly, program
	}

	raw := &ingest.RawTransaction{
		AccountKeys:                 accountKeys,
		NumStaticAccountKeys:        len(accountKeys),
		NumRequiredSignatures:       1,
		NumReadonlySignedAccounts:   0,
		NumReadonlyUnsignedAccounts: 2,
		Instructions: []ingest.CompiledInstruction{
			{
				ProgramIDIndex: 3,
				AccountIndices: []uint16{0, 1, 2},
				Data:           []byte{0x66, 0x06, 0x3D, 0x11, 0x01, 0x05, 0x24, 0x72},
			},
		},
		Meta: ingest.TransactionMeta{
			PreBalances:  []uint64{10_000_000_000, 0, 0, 0},
			PostBalances: []uint64{9_000_000_000, 0, 0, 0},
			PreTokenBalances: []ingest.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: leader, Amount: big.NewInt(0), Decimals: 6},
			},
			PostTokenBalances: []ingest.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: leader, Amount: big.NewInt(500_000), Decimals: 6},
			},
		},
	}

	return raw, leader, mint
}

func TestClassifyPumpFunBuy(t *testing.T) {
	raw, leader, mint := buildPumpFunBuy(t)

	intent, ok := Classify(raw, leader)
	if !ok {
		t.Fatal("expected a classified swap intent")
	}
	if intent.TradeType != Buy {
		t.Errorf("TradeType = %v, want Buy", intent.TradeType)
	}
	if !intent.InputMint.Equals(solmeta.NativeSOLMint) {
		t.Errorf("InputMint = %s, want native SOL", intent.InputMint)
	}
	if !intent.OutputMint.Equals(mint) {
		t.Errorf("OutputMint = %s, want %s", intent.OutputMint, mint)
	}
	if intent.LeaderInAmountRaw != 1_000_000_000 {
		t.Errorf("LeaderInAmountRaw = %d, want 1_000_000_000", intent.LeaderInAmountRaw)
	}
	if intent.LeaderOutAmountRaw != 500_000 {
		t.Errorf("LeaderOutAmountRaw = %d, want 500_000", intent.LeaderOutAmountRaw)
	}
	if intent.Platform != solmeta.PlatformPumpFunBondingCurve {
		t.Errorf("Platform = %v, want PlatformPumpFunBondingCurve", intent.Platform)
	}
	if len(intent.CloningTarget.Accounts) != 3 {
		t.Fatalf("CloningTarget.Accounts len = %d, want 3", len(intent.CloningTarget.Accounts))
	}
	if !intent.CloningTarget.Accounts[0].IsSigner {
		t.Error("leader account in cloning target should be marked signer")
	}
}

func TestClassifyRejectsUnrecognizedProgram(t *testing.T) {
	raw, leader, _ := buildPumpFunBuy(t)
	raw.AccountKeys[3] = testKey(0xFF)
	raw.Instructions[0].ProgramIDIndex = 3

	if _, ok := Classify(raw, leader); ok {
		t.Fatal("expected no classification for unrecognized program")
	}
}

func TestClassifyRejectsWhenLeaderNotSigner(t *testing.T) {
	raw, leader, _ := buildPumpFunBuy(t)
	raw.NumRequiredSignatures = 0

	if _, ok := Classify(raw, leader); ok {
		t.Fatal("expected no classification when leader never signs")
	}
}

func TestClassifyRejectsFailedTransaction(t *testing.T) {
	raw, leader, _ := buildPumpFunBuy(t)
	raw.Meta.Err = true

	if _, ok := Classify(raw, leader); ok {
		t.Fatal("expected no classification for a failed transaction")
	}
}

func TestClassifySellDirection(t *testing.T) {
	raw, leader, mint := buildPumpFunBuy(t)
	raw.Instructions[0].Data = []byte{0x2A, 0x7A, 0x81, 0x76, 0x27, 0x66, 0x93, 0x9F}
	raw.Meta.PreBalances = []uint64{9_000_000_000, 0, 0, 0}
	raw.Meta.PostBalances = []uint64{10_000_000_000, 0, 0, 0}
	raw.Meta.PreTokenBalances[0].Amount = big.NewInt(500_000)
	raw.Meta.PostTokenBalances[0].Amount = big.NewInt(0)

	intent, ok := Classify(raw, leader)
	if !ok {
		t.Fatal("expected a classified sell")
	}
	if intent.TradeType != Sell {
		t.Errorf("TradeType = %v, want Sell", intent.TradeType)
	}
	if !intent.InputMint.Equals(mint) {
		t.Errorf("InputMint = %s, want %s", intent.InputMint, mint)
	}
	if !intent.OutputMint.Equals(solmeta.NativeSOLMint) {
		t.Errorf("OutputMint = %s, want native SOL", intent.OutputMint)
	}
}
