package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestDeriveIsOffCurve(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	addr, bump, err := Derive(programID, []byte("user_volume_accumulator"), programID[:])
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}
	if isOnCurve(addr[:]) {
		t.Fatalf("derived address %s is a valid curve point, want off-curve", addr)
	}
	if bump > 255 {
		t.Fatalf("bump %d out of range", bump)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	programID := solana.SystemProgramID
	seed := []byte("trade-position")

	addr1, bump1, err := Derive(programID, seed)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	addr2, bump2, err := Derive(programID, seed)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Fatalf("Derive not deterministic: (%s,%d) != (%s,%d)", addr1, bump1, addr2, bump2)
	}
}

func TestDeriveDistinctSeedsDiverge(t *testing.T) {
	programID := solana.SystemProgramID
	addrA, _, err := Derive(programID, []byte("seed-a"))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	addrB, _, err := Derive(programID, []byte("seed-b"))
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if addrA == addrB {
		t.Fatalf("distinct seeds produced the same address %s", addrA)
	}
}

func TestDeriveUserVolumeAccumulator(t *testing.T) {
	programID := solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	user := solana.MustPublicKeyFromBase58("11111111111111111111111111111112")

	addr, err := DeriveUserVolumeAccumulator(programID, user)
	if err != nil {
		t.Fatalf("DeriveUserVolumeAccumulator: %v", err)
	}
	if addr.IsZero() {
		t.Fatal("expected a non-zero derived address")
	}
}

func TestCreateWithBumpRejectsOversizeSeed(t *testing.T) {
	programID := solana.SystemProgramID
	oversize := make([]byte, 33)
	if _, err := createWithBump(programID, 255, [][]byte{oversize}); err == nil {
		t.Fatal("expected error for seed longer than 32 bytes")
	}
}
