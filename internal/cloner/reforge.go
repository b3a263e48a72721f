package cloner

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/pda"
	"github.com/solcopy/engine/internal/solmeta"
)

// reforgeAccounts implements spec §4.3.2 (forging-map substitution, signer
// carry-over, writability override tables) followed by §4.3.3 (per-platform
// PDA re-derivation).
func reforgeAccounts(programID solana.PublicKey, original []classifier.AccountMeta, forgingMap map[solana.PublicKey]solana.PublicKey, user solana.PublicKey, platform solmeta.Platform) ([]classifier.AccountMeta, error) {
	overrides := solmeta.AccountOverridesFor(platform)

	accounts := make([]classifier.AccountMeta, len(original))
	for i, acc := range original {
		newPubkey := acc.Pubkey
		if forged, ok := forgingMap[acc.Pubkey]; ok {
			newPubkey = forged
		}

		// No account may become a signer except the user themself; a
		// non-signer account must never be upgraded to a signer.
		isSigner := newPubkey.Equals(user) || acc.IsSigner

		isWritable := acc.IsWritable
		if overrides.ReadOnlyIndices[i] {
			isWritable = false
		}
		if overrides.WritableIndices[i] {
			isWritable = true
		}
		if newPubkey.Equals(user) {
			isWritable = true
		}

		accounts[i] = classifier.AccountMeta{
			Pubkey:     newPubkey,
			IsSigner:   isSigner,
			IsWritable: isWritable,
		}
	}

	if err := applyPDAOverrides(programID, accounts, platform, user); err != nil {
		return nil, err
	}

	return accounts, nil
}

// applyPDAOverrides re-derives, in place, any account position a platform
// marks as seeded by the signer's wallet (spec §4.3.3). A position out of
// bounds for the instruction's actual account list is a ClonerFatal: the
// cloner cannot safely guess which account to replace.
func applyPDAOverrides(programID solana.PublicKey, accounts []classifier.AccountMeta, platform solmeta.Platform, user solana.PublicKey) error {
	overrides := solmeta.PDAOverridesFor(platform)
	if len(overrides) == 0 {
		return nil
	}

	for _, o := range overrides {
		if o.AccountIndex < 0 || o.AccountIndex >= len(accounts) {
			return &FatalError{Reason: fmt.Sprintf("PDA re-derivation index %d out of bounds for %d accounts", o.AccountIndex, len(accounts))}
		}

		addr, _, err := pda.Derive(programID, o.Seeds(user)...)
		if err != nil {
			return &FatalError{Reason: fmt.Sprintf("PDA re-derivation failed: %v", err)}
		}

		accounts[o.AccountIndex].Pubkey = addr
		accounts[o.AccountIndex].IsSigner = false
	}

	return nil
}
