package dispatcher

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/config"
	"github.com/solcopy/engine/internal/solmeta"
)

func testKey(fill byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = fill
	}
	return solana.PublicKeyFromBytes(b[:])
}

func testDispatcher() *Dispatcher {
	cfg := config.TradingConfig{
		ComputeUnitDefault:    1_200_000,
		ConfirmTimeoutSeconds: 30,
		SendMaxRetries:        5,
	}
	return &Dispatcher{cfg: cfg}
}

func TestComposeInstructionsOrdersComputeBudgetAfterNonce(t *testing.T) {
	d := testDispatcher()
	user := testKey(0x01)
	swap := classifier.Instruction{ProgramID: solmeta.PumpFunProgramID}
	nonceAdvance := classifier.Instruction{ProgramID: solmeta.SystemProgramID}

	out, _ := d.composeInstructions(Input{
		Instructions: []classifier.Instruction{nonceAdvance, swap},
		UsedNonce:    true,
		UserPubkey:   user,
	})

	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4 (nonce, cu-limit, cu-price, swap)", len(out))
	}
	if !out[0].ProgramID.Equals(solmeta.SystemProgramID) {
		t.Error("nonce-advance instruction must stay first")
	}
	if !out[3].ProgramID.Equals(solmeta.PumpFunProgramID) {
		t.Error("swap instruction must stay last")
	}
}

func TestComposeInstructionsWithoutNoncePrependsBudgetOnly(t *testing.T) {
	d := testDispatcher()
	swap := classifier.Instruction{ProgramID: solmeta.PumpFunProgramID}

	out, _ := d.composeInstructions(Input{
		Instructions: []classifier.Instruction{swap},
	})

	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3 (cu-limit, cu-price, swap)", len(out))
	}
	if !out[2].ProgramID.Equals(solmeta.PumpFunProgramID) {
		t.Error("swap instruction must stay last")
	}
}

func TestComposeInstructionsReusesLeaderComputeUnitLimit(t *testing.T) {
	d := testDispatcher()
	limit := uint32(400_000)

	out, fee := d.composeInstructions(Input{
		Instructions:        []classifier.Instruction{{ProgramID: solmeta.PumpFunProgramID}},
		ComputeUnitLimit:    &limit,
		TradeAmountLamports: 1_000_000_000,
	})

	data := out[0].Data
	if len(data) < 5 {
		t.Fatalf("compute-unit-limit instruction data too short: %d bytes", len(data))
	}
	if got := binary.LittleEndian.Uint32(data[1:5]); got != limit {
		t.Errorf("compute-unit limit = %d, want leader's %d", got, limit)
	}
	_ = fee
}

func TestComposeInstructionsComputesFeeFromPriceAndLimit(t *testing.T) {
	cfg := config.TradingConfig{
		ComputeUnitDefault:          1_200_000,
		ConfirmTimeoutSeconds:       30,
		SendMaxRetries:              5,
		PriorityFeeRatioOfSol:       0.0001,
		PriorityFeeCapMicroLamports: 1_000_000_000,
	}
	d := &Dispatcher{cfg: cfg}
	limit := uint32(500_000)

	_, fee := d.composeInstructions(Input{
		Instructions:        []classifier.Instruction{{ProgramID: solmeta.PumpFunProgramID}},
		ComputeUnitLimit:    &limit,
		TradeAmountLamports: 1_000_000_000,
	})

	// price = min(1_000_000_000 * 0.0001, cap) = 100_000 micro-lamports/CU
	// feeLamports = 100_000 * 500_000 / 1_000_000 = 50_000
	if fee != 50_000 {
		t.Errorf("fee = %d, want 50000", fee)
	}
}

func TestIsTransientSendError(t *testing.T) {
	cases := map[string]bool{
		"":                        false,
		"blockhash not found: BlockhashNotFound": true,
		"rate limit exceeded":     true,
		"invalid signature":       false,
	}
	for msg, want := range cases {
		var err error
		if msg != "" {
			err = errString(msg)
		}
		if got := isTransientSendError(err); got != want {
			t.Errorf("isTransientSendError(%q) = %v, want %v", msg, got, want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 200 * time.Millisecond},
		{4, 400 * time.Millisecond},
		{8, 2 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(c.attempt); got != c.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
