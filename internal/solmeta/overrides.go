package solmeta

import "github.com/gagliardetto/solana-go"

// AccountOverrides is a platform's must-be-read-only / must-be-writable
// account-list override table, keyed by positional index into the
// instruction's account list (spec §4.3.2). Applied after the forging-map
// substitution and the default signer/writable carry-over.
type AccountOverrides struct {
	ReadOnlyIndices map[int]bool
	WritableIndices map[int]bool
}

// accountOverrides holds, per platform, the account positions whose
// writability the reforging step must force regardless of what the leader's
// original instruction carried. Indices follow each platform's published
// account layout; pump.fun's is the only one populated so far, the others
// default to "carry the original is_writable forward" (spec §4.3.2 default).
var accountOverrides = map[Platform]AccountOverrides{
	PlatformPumpFunBondingCurve: {
		// global, mint, system_program, token_program, event_authority,
		// program: never writable regardless of what the leader's
		// transaction happened to mark.
		ReadOnlyIndices: map[int]bool{0: true, 2: true, 7: true, 8: true, 10: true, 11: true},
		// fee_recipient, bonding_curve, associated_bonding_curve,
		// associated_user, creator_vault, global_volume_accumulator,
		// user_volume_accumulator: always writable.
		WritableIndices: map[int]bool{1: true, 3: true, 4: true, 5: true, 9: true, 12: true, 13: true},
	},
}

// AccountOverridesFor returns p's override table, or a zero-value table
// (no overrides) if none is registered.
func AccountOverridesFor(p Platform) AccountOverrides {
	return accountOverrides[p]
}

// PDAOverride describes one account position whose address must be
// re-derived under the cloning user's wallet rather than carried over from
// the leader's transaction (spec §4.3.3).
type PDAOverride struct {
	AccountIndex int
	Seeds        func(user solana.PublicKey) [][]byte
}

// pdaOverrides holds, per platform, the positions requiring wallet-specific
// PDA re-derivation. Only pump.fun's user_volume_accumulator is known to
// need this (spec §4.3.3's own example); other platforms' swap instructions
// carry no signer-derived PDA in the examples this registry is grounded on.
var pdaOverrides = map[Platform][]PDAOverride{
	PlatformPumpFunBondingCurve: {
		{
			AccountIndex: 13,
			Seeds: func(user solana.PublicKey) [][]byte {
				return [][]byte{UserVolumeAccumulatorSeed, user[:]}
			},
		},
	},
}

// UserVolumeAccumulatorSeed is pump.fun's per-wallet volume-accumulator PDA
// seed prefix (spec §4.3.3), duplicated here (rather than imported from
// internal/pda) so solmeta's registry stays a pure data package with no
// dependency on the derivation algorithm that consumes it.
var UserVolumeAccumulatorSeed = []byte("user_volume_accumulator")

// PDAOverridesFor returns p's PDA re-derivation table, or nil if none is
// registered.
func PDAOverridesFor(p Platform) []PDAOverride {
	return pdaOverrides[p]
}
