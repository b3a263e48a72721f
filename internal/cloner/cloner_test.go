package cloner

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/solmeta"
)

func testKey(fill byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	return solana.PublicKeyFromBytes(b[:])
}

// fakeChainReader is a ChainReader stub: every mint is standard-SPL, and
// accounts named in existingAccounts already exist.
type fakeChainReader struct {
	existingAccounts map[solana.PublicKey]bool
}

func (f *fakeChainReader) MintTokenProgram(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	return solmeta.SPLTokenProgramID, nil
}

func (f *fakeChainReader) AccountExists(ctx context.Context, pubkey solana.PublicKey) (bool, error) {
	return f.existingAccounts[pubkey], nil
}

func buildPumpFunBuyIntent(leader, mint, user solana.PublicKey) *classifier.SwapIntent {
	leaderATA, _, _ := solana.FindAssociatedTokenAddress(leader, mint)

	accounts := make([]classifier.AccountMeta, 14)
	accounts[0] = classifier.AccountMeta{Pubkey: testKey(0x10)} // global
	accounts[1] = classifier.AccountMeta{Pubkey: testKey(0x11), IsWritable: true}
	accounts[2] = classifier.AccountMeta{Pubkey: mint}
	accounts[3] = classifier.AccountMeta{Pubkey: testKey(0x12), IsWritable: true}
	accounts[4] = classifier.AccountMeta{Pubkey: testKey(0x13), IsWritable: true}
	accounts[5] = classifier.AccountMeta{Pubkey: leaderATA, IsWritable: true}
	accounts[6] = classifier.AccountMeta{Pubkey: leader, IsSigner: true, IsWritable: true}
	accounts[7] = classifier.AccountMeta{Pubkey: solmeta.SystemProgramID}
	accounts[8] = classifier.AccountMeta{Pubkey: solmeta.SPLTokenProgramID}
	accounts[9] = classifier.AccountMeta{Pubkey: testKey(0x14), IsWritable: true}
	accounts[10] = classifier.AccountMeta{Pubkey: testKey(0x15)}
	accounts[11] = classifier.AccountMeta{Pubkey: solmeta.PumpFunProgramID}
	accounts[12] = classifier.AccountMeta{Pubkey: testKey(0x16), IsWritable: true}
	accounts[13] = classifier.AccountMeta{Pubkey: testKey(0x17), IsWritable: true}

	return &classifier.SwapIntent{
		LeaderPubkey: leader,
		TradeType:    classifier.Buy,
		InputMint:    solmeta.NativeSOLMint,
		OutputMint:   mint,
		Platform:     solmeta.PlatformPumpFunBondingCurve,
		CloningTarget: classifier.Instruction{
			ProgramID: solmeta.PumpFunProgramID,
			Accounts:  accounts,
			Data:      append(append([]byte{}, solmeta.PumpFunBuyDiscriminator[:]...), make([]byte, 16)...),
		},
		LeaderInAmountRaw:  1_000_000_000,
		LeaderOutAmountRaw: 500_000,
	}
}

func TestClonePumpFunBuyReforgesAccountsAndSigner(t *testing.T) {
	leader := testKey(0x01)
	mint := testKey(0x02)
	user := testKey(0x03)

	intent := buildPumpFunBuyIntent(leader, mint, user)
	reader := &fakeChainReader{existingAccounts: map[solana.PublicKey]bool{}}

	result, err := Clone(context.Background(), reader, Input{
		Intent:        intent,
		UserPubkey:    user,
		UserAmountRaw: 1_000_000_000,
		SlippageBps:   500,
	})
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}

	var swapIx classifier.Instruction
	for _, ix := range result.Instructions {
		if ix.ProgramID.Equals(solmeta.PumpFunProgramID) {
			swapIx = ix
		}
	}
	if swapIx.ProgramID.IsZero() {
		t.Fatal("expected a pump.fun instruction in the clone result")
	}

	signers := 0
	for _, acc := range swapIx.Accounts {
		if acc.IsSigner {
			signers++
			if !acc.Pubkey.Equals(user) {
				t.Errorf("unexpected signer account %s, only user should sign", acc.Pubkey)
			}
		}
	}
	if signers != 1 {
		t.Errorf("signer count = %d, want 1 (user only)", signers)
	}

	if !swapIx.Accounts[6].Pubkey.Equals(user) {
		t.Errorf("leader account slot = %s, want user %s", swapIx.Accounts[6].Pubkey, user)
	}
	if swapIx.Accounts[0].IsWritable {
		t.Error("global account should be read-only per override table")
	}

	// user_volume_accumulator (index 13) must be re-derived, not the
	// leader's original placeholder key.
	if swapIx.Accounts[13].Pubkey.Equals(testKey(0x17)) {
		t.Error("user_volume_accumulator was not re-derived under the user's wallet")
	}
}

func TestCloneRejectsNilIntent(t *testing.T) {
	reader := &fakeChainReader{existingAccounts: map[solana.PublicKey]bool{}}
	if _, err := Clone(context.Background(), reader, Input{UserPubkey: testKey(0x03)}); err == nil {
		t.Fatal("expected an error for a nil swap intent")
	}
}

func TestCloneReconstructsPumpFunBuyData(t *testing.T) {
	leader := testKey(0x01)
	mint := testKey(0x02)
	user := testKey(0x03)

	intent := buildPumpFunBuyIntent(leader, mint, user)
	reader := &fakeChainReader{existingAccounts: map[solana.PublicKey]bool{}}

	result, err := Clone(context.Background(), reader, Input{
		Intent:        intent,
		UserPubkey:    user,
		UserAmountRaw: 2_000_000_000,
		SlippageBps:   1000,
	})
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}

	var swapIx classifier.Instruction
	for _, ix := range result.Instructions {
		if ix.ProgramID.Equals(solmeta.PumpFunProgramID) {
			swapIx = ix
		}
	}

	if len(swapIx.Data) != 24 {
		t.Fatalf("reconstructed data len = %d, want 24 (8 discriminator + 2x u64)", len(swapIx.Data))
	}
	for i, b := range swapIx.Data[:8] {
		if b != solmeta.PumpFunBuyDiscriminator[i] {
			t.Fatalf("discriminator not preserved from leader data")
		}
	}
}

func TestCloneATACreatedWhenAbsent(t *testing.T) {
	leader := testKey(0x01)
	mint := testKey(0x02)
	user := testKey(0x03)

	intent := buildPumpFunBuyIntent(leader, mint, user)
	reader := &fakeChainReader{existingAccounts: map[solana.PublicKey]bool{}}

	result, err := Clone(context.Background(), reader, Input{
		Intent:        intent,
		UserPubkey:    user,
		UserAmountRaw: 1_000_000_000,
		SlippageBps:   500,
	})
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}

	found := false
	for _, ix := range result.Instructions {
		if ix.ProgramID.Equals(solmeta.AssociatedTokenProgramID) {
			found = true
		}
	}
	if !found {
		t.Error("expected an ATA-create instruction when the user's output ATA does not exist")
	}
}

func TestCloneSkipsATAWhenAlreadyExists(t *testing.T) {
	leader := testKey(0x01)
	mint := testKey(0x02)
	user := testKey(0x03)

	intent := buildPumpFunBuyIntent(leader, mint, user)
	userATA, _, _ := solana.FindAssociatedTokenAddress(user, mint)
	reader := &fakeChainReader{existingAccounts: map[solana.PublicKey]bool{userATA: true}}

	result, err := Clone(context.Background(), reader, Input{
		Intent:        intent,
		UserPubkey:    user,
		UserAmountRaw: 1_000_000_000,
		SlippageBps:   500,
	})
	if err != nil {
		t.Fatalf("Clone() error = %v", err)
	}

	for _, ix := range result.Instructions {
		if ix.ProgramID.Equals(solmeta.AssociatedTokenProgramID) {
			t.Error("should not emit an ATA-create instruction when one already exists")
		}
	}
}
