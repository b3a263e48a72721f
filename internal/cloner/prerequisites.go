package cloner

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	ata "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	tokenprog "github.com/gagliardetto/solana-go/programs/token"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/solmeta"
	"github.com/solcopy/engine/internal/store"
)

// synthesizePrerequisites builds the instructions spec §4.3.5 prepends
// ahead of the reforged swap instruction: nonce-advance, destination-ATA
// creation, and the wrapped-SOL wrap sequence for AMM-family platforms.
func synthesizePrerequisites(ctx context.Context, reader ChainReader, in Input, forgingMap map[solana.PublicKey]solana.PublicKey, platform solmeta.Platform) ([]classifier.Instruction, bool, error) {
	var out []classifier.Instruction
	usedNonce := false

	if in.Nonce != nil {
		advance, err := buildAdvanceNonce(*in.Nonce)
		if err != nil {
			return nil, false, err
		}
		out = append(out, advance)
		usedNonce = true
	}

	intent := in.Intent

	if intent.TradeType == classifier.Buy && !intent.OutputMint.Equals(solmeta.NativeSOLMint) {
		ix, err := ensureATA(ctx, reader, in.UserPubkey, intent.OutputMint)
		if err != nil {
			return nil, usedNonce, err
		}
		if ix != nil {
			out = append(out, *ix)
		}
	}
	if intent.TradeType == classifier.Sell && !intent.InputMint.Equals(solmeta.NativeSOLMint) {
		ix, err := ensureATA(ctx, reader, in.UserPubkey, intent.InputMint)
		if err != nil {
			return nil, usedNonce, err
		}
		if ix != nil {
			out = append(out, *ix)
		}
	}

	if platform.AMMFamily() && intent.InputMint.Equals(solmeta.NativeSOLMint) {
		wrapIxs, err := wrapNativeSOL(ctx, reader, in.UserPubkey, in.UserAmountRaw)
		if err != nil {
			return nil, usedNonce, err
		}
		out = append(out, wrapIxs...)
	}

	return out, usedNonce, nil
}

// buildAdvanceNonce builds the durable-nonce-advance instruction that must
// lead the transaction whenever a NonceState is supplied in place of a
// recent blockhash.
func buildAdvanceNonce(nonce store.NonceState) (classifier.Instruction, error) {
	ix := system.NewAdvanceNonceAccountInstruction(
		nonce.NoncePubkey,
		solana.SysVarRecentBlockHashesPubkey,
		nonce.AuthorityPubkey,
	).Build()
	return convertInstruction(ix)
}

// ensureATA returns a create-ATA instruction for (owner, mint) if no
// account currently exists there, or nil if one already does. The address
// and the create instruction both use the standard SPL-Token program; the
// mint's owning program is not looked up, so a Token-2022 mint gets a
// standard-SPL ATA.
func ensureATA(ctx context.Context, reader ChainReader, owner, mint solana.PublicKey) (*classifier.Instruction, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("cloner: derive ATA for create check: %w", err)
	}

	exists, err := reader.AccountExists(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("cloner: check ATA existence: %w", err)
	}
	if exists {
		return nil, nil
	}

	ix, err := ata.NewCreateInstruction(owner, owner, mint).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("cloner: build ATA-create instruction: %w", err)
	}
	converted, err := convertInstruction(ix)
	if err != nil {
		return nil, err
	}
	return &converted, nil
}

// wrapNativeSOL builds the create(if absent)/transfer/sync-native sequence
// spec §4.3.5 point 4 requires for AMM-family platforms taking native SOL
// as input: the wrapped-SOL account must actually hold the funds, so this
// sequence is appended even when the account already exists.
func wrapNativeSOL(ctx context.Context, reader ChainReader, owner solana.PublicKey, amountLamports uint64) ([]classifier.Instruction, error) {
	wsolATA, _, err := solana.FindAssociatedTokenAddress(owner, solmeta.NativeSOLMint)
	if err != nil {
		return nil, fmt.Errorf("cloner: derive wrapped-SOL ATA: %w", err)
	}

	var out []classifier.Instruction

	exists, err := reader.AccountExists(ctx, wsolATA)
	if err != nil {
		return nil, fmt.Errorf("cloner: check wrapped-SOL ATA existence: %w", err)
	}
	if !exists {
		createIx, err := ata.NewCreateInstruction(owner, owner, solmeta.NativeSOLMint).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("cloner: build wrapped-SOL ATA-create instruction: %w", err)
		}
		converted, err := convertInstruction(createIx)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}

	transferIx := system.NewTransferInstruction(amountLamports, owner, wsolATA).Build()
	converted, err := convertInstruction(transferIx)
	if err != nil {
		return nil, err
	}
	out = append(out, converted)

	syncIx := tokenprog.NewSyncNativeInstruction(wsolATA).Build()
	converted, err = convertInstruction(syncIx)
	if err != nil {
		return nil, err
	}
	out = append(out, converted)

	return out, nil
}

// convertInstruction lowers a solana-go builder instruction into the
// classifier.Instruction shape the rest of the cloner operates on.
func convertInstruction(ix solana.Instruction) (classifier.Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return classifier.Instruction{}, fmt.Errorf("cloner: encode instruction data: %w", err)
	}

	metas := ix.Accounts()
	accounts := make([]classifier.AccountMeta, len(metas))
	for i, m := range metas {
		accounts[i] = classifier.AccountMeta{
			Pubkey:     m.PublicKey,
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		}
	}

	return classifier.Instruction{
		ProgramID: ix.ProgramID(),
		Accounts:  accounts,
		Data:      data,
	}, nil
}
