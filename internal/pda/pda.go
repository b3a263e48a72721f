// Package pda derives and validates Solana program-derived addresses.
//
// A PDA is deterministic but must not be a valid point on the ed25519
// curve — otherwise a private key could exist for it. Derivation searches
// bump seeds from 255 downward, hashing seeds‖bump‖programID‖[]byte{"ProgramDerivedAddress"}
// and accepting the first candidate that fails to decode as a curve point.
// This mirrors, in the opposite direction, the point-decode validity check
// the teacher's node identity code uses to convert an Ed25519 peer key to
// X25519 (there: SetBytes succeeding means a valid point worth converting;
// here: SetBytes failing means a valid, unforgeable PDA).
package pda

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

// ErrNoValidBump is returned when no bump seed in [0, 255] yields an
// off-curve candidate, which in practice never happens but must be
// handled per spec §4.3.6 ("PDA re-derivation position out of bounds ⇒
// abort with ClonerFatal").
var ErrNoValidBump = errors.New("pda: unable to find a valid program address off the ed25519 curve")

var pdaMarker = []byte("ProgramDerivedAddress")

// Derive computes the canonical program-derived address for seeds under
// programID, returning the address and the bump seed that produced it.
func Derive(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate, err := createWithBump(programID, byte(bump), seeds)
		if err != nil {
			continue
		}
		if !isOnCurve(candidate) {
			var out solana.PublicKey
			copy(out[:], candidate)
			return out, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, ErrNoValidBump
}

// createWithBump hashes seeds, the bump byte, programID, and the PDA
// marker into a candidate 32-byte address.
func createWithBump(programID solana.PublicKey, bump byte, seeds [][]byte) ([]byte, error) {
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > 32 {
			return nil, errors.New("pda: seed too long")
		}
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write(pdaMarker)
	return h.Sum(nil), nil
}

// isOnCurve reports whether b decodes to a valid point on the ed25519
// curve. A genuine PDA must fail this check.
func isOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// UserVolumeAccumulatorSeed is pump.fun's per-wallet volume-accumulator PDA
// seed prefix (spec §4.3.3).
var UserVolumeAccumulatorSeed = []byte("user_volume_accumulator")

// DeriveUserVolumeAccumulator derives pump.fun's user_volume_accumulator
// PDA for the given wallet, seeded ["user_volume_accumulator", user].
func DeriveUserVolumeAccumulator(programID, user solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := Derive(programID, UserVolumeAccumulatorSeed, user[:])
	return addr, err
}
