package cloner

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/solcopy/engine/internal/classifier"
	"github.com/solcopy/engine/internal/solmeta"
)

// dataStrategy is one of the three instruction-data policies spec §4.3.4
// dispatches on.
type dataStrategy int

const (
	strategyPreserve dataStrategy = iota
	strategySurgical
	strategyReconstruct
)

// selectStrategy picks the data strategy for platform. The reconstruct
// strategy goes to the platforms spec §4.3.4 names for it: pump.fun
// bonding-curve buy/sell and Raydium-launchpad buy. The discriminator decides which of the two pump.fun sides
// applies; Raydium-launchpad only reconstructs its buy side.
func selectStrategy(platform solmeta.Platform, tradeType classifier.TradeType) dataStrategy {
	switch platform {
	case solmeta.PlatformPumpFunBondingCurve:
		return strategyReconstruct
	case solmeta.PlatformRaydiumLaunchpad:
		if tradeType == classifier.Buy {
			return strategyReconstruct
		}
		return strategyPreserve
	case solmeta.PlatformJupiter, solmeta.PlatformPhoton:
		// Generic routers whose payloads commonly encode a deadline
		// (spec §4.3.4 "time-sensitive routers").
		return strategySurgical
	default:
		return strategyPreserve
	}
}

// buildInstructionData dispatches to the strategy selected for target's
// platform and trade side, producing the final instruction data bytes.
func buildInstructionData(target classifier.Instruction, platform solmeta.Platform, intent *classifier.SwapIntent, userAmountRaw uint64, slippageBps uint16) ([]byte, error) {
	switch selectStrategy(platform, intent.TradeType) {
	case strategyReconstruct:
		return reconstructData(target.Data, intent.TradeType, userAmountRaw, slippageBps, intent.LeaderInAmountRaw, intent.LeaderOutAmountRaw)
	case strategySurgical:
		return surgicalOverwriteDeadline(target.Data), nil
	default:
		data := make([]byte, len(target.Data))
		copy(data, target.Data)
		return data, nil
	}
}

// reconstructData rebuilds the instruction data buffer from scratch,
// keeping only the leader's discriminator and stamping the user's own
// economic amounts (spec §4.3.4 point 3): 8-byte discriminator ∥ u64
// token-amount ∥ u64 sol-amount.
func reconstructData(leaderData []byte, tradeType classifier.TradeType, userAmountRaw uint64, slippageBps uint16, leaderInAmountRaw, leaderOutAmountRaw uint64) ([]byte, error) {
	if len(leaderData) < 8 {
		return nil, &FatalError{Reason: "leader instruction data shorter than a discriminator"}
	}
	discriminator := leaderData[:8]

	var tokenAmount, solAmount uint64
	if tradeType == classifier.Buy {
		// Deliberately loose: accept any amount of tokens out, bound only
		// the SOL willing to be spent.
		tokenAmount = 1
		solAmount = applySlippageUp(userAmountRaw, slippageBps)
	} else {
		// Exact token amount in; bound only the SOL willing to be
		// received, scaled from the leader's own realized ratio.
		tokenAmount = userAmountRaw
		expectedSOL := scaleProportional(userAmountRaw, leaderOutAmountRaw, leaderInAmountRaw)
		solAmount = applySlippageDown(expectedSOL, slippageBps)
	}

	buf := new(bytes.Buffer)
	buf.Write(discriminator)
	binary.Write(buf, binary.LittleEndian, tokenAmount)
	binary.Write(buf, binary.LittleEndian, solAmount)
	return buf.Bytes(), nil
}

// applySlippageUp widens amount by slippageBps, for a user-facing upper
// bound (max_sol_in = amount * (10000 + slippage) / 10000).
func applySlippageUp(amount uint64, slippageBps uint16) uint64 {
	num := new(big.Int).Mul(big.NewInt(int64(amount)), big.NewInt(10000+int64(slippageBps)))
	return new(big.Int).Div(num, big.NewInt(10000)).Uint64()
}

// applySlippageDown narrows amount by slippageBps, for a user-facing lower
// bound (min_sol_out = amount * (10000 - slippage) / 10000).
func applySlippageDown(amount uint64, slippageBps uint16) uint64 {
	bps := int64(10000) - int64(slippageBps)
	if bps < 0 {
		bps = 0
	}
	num := new(big.Int).Mul(big.NewInt(int64(amount)), big.NewInt(bps))
	return new(big.Int).Div(num, big.NewInt(10000)).Uint64()
}

// scaleProportional computes part * numerator / denominator, the user's
// expected SOL output scaled from the leader's realized input/output
// ratio. Returns 0 if denominator is 0.
func scaleProportional(part, numerator, denominator uint64) uint64 {
	if denominator == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(int64(part)), big.NewInt(int64(numerator)))
	return new(big.Int).Div(n, big.NewInt(int64(denominator))).Uint64()
}

// plausibleEpochMin/Max bound what "looks like" a Unix timestamp for the
// surgical-overwrite scan: roughly 2023 to 2033.
const (
	plausibleEpochMin = int64(1_672_531_200)
	plausibleEpochMax = int64(2_000_000_000)
)

// surgicalOverwriteDeadline scans data for an 8-byte little-endian value
// inside a plausible Unix-epoch range and replaces the first one found with
// the current time, leaving the rest of the buffer untouched (spec §4.3.4
// point 2). If no plausible field is found, data is returned unmodified —
// equivalent to falling back to Preserve.
func surgicalOverwriteDeadline(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)

	for i := 0; i+8 <= len(out); i++ {
		v := int64(binary.LittleEndian.Uint64(out[i : i+8]))
		if v >= plausibleEpochMin && v <= plausibleEpochMax {
			binary.LittleEndian.PutUint64(out[i:i+8], uint64(time.Now().Unix()))
			return out
		}
	}
	return out
}
