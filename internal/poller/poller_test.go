package poller

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

func TestBuildRawTransactionUnionsAccountKeys(t *testing.T) {
	leader := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	loadedWritable := solana.SystemProgramID
	loadedReadonly := solana.TokenProgramID

	tx := &solana.Transaction{
		Message: solana.Message{
			AccountKeys: []solana.PublicKey{leader},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 0, Accounts: []uint16{0}, Data: solana.Base58{1, 2, 3}},
			},
		},
	}
	meta := &rpc.TransactionMeta{
		LoadedAddresses: rpc.LoadedAddresses{
			Writable: []solana.PublicKey{loadedWritable},
			Readonly: []solana.PublicKey{loadedReadonly},
		},
	}

	raw := buildRawTransaction(tx, meta)

	if len(raw.AccountKeys) != 3 {
		t.Fatalf("AccountKeys len = %d, want 3", len(raw.AccountKeys))
	}
	if !raw.AccountKeys[1].Equals(loadedWritable) {
		t.Errorf("AccountKeys[1] = %s, want %s", raw.AccountKeys[1], loadedWritable)
	}
	if len(raw.Instructions) != 1 || len(raw.Instructions[0].Data) != 3 {
		t.Fatalf("instructions not carried over: %+v", raw.Instructions)
	}
}

func TestConvertTokenBalancesSkipsMissingAmount(t *testing.T) {
	mint := solana.TokenProgramID
	owner := solana.SystemProgramID
	src := []rpc.TokenBalance{
		{
			AccountIndex: 2,
			Mint:         mint,
			Owner:        &owner,
			UiTokenAmount: &rpc.UiTokenAmount{
				Amount:   "1000",
				Decimals: 6,
			},
		},
		{
			AccountIndex:  3,
			Mint:          mint,
			UiTokenAmount: nil,
		},
	}

	out := convertTokenBalances(src)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Amount.String() != "1000" {
		t.Errorf("Amount = %s, want 1000", out[0].Amount.String())
	}
	if !out[0].Owner.Equals(owner) {
		t.Errorf("Owner = %s, want %s", out[0].Owner, owner)
	}
}
