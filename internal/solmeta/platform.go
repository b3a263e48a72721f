// Package solmeta is the configuration artifact for "which program does
// what": the platform vocabulary, program-ID registry, and discriminator
// table every other component dispatches on. It holds data, not behavior —
// classifier, cloner, and dispatcher all key off the Platform enum instead
// of matching on program-ID strings.
package solmeta

import "github.com/gagliardetto/solana-go"

// Platform tags the DEX or router that produced a cloning target.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformPumpFunBondingCurve
	PlatformPumpFunAMM
	PlatformRaydiumV4
	PlatformRaydiumCPMM
	PlatformRaydiumCLMM
	PlatformRaydiumLaunchpad
	PlatformMeteoraDLMM
	PlatformMeteoraDBC
	PlatformMeteoraCPAMM
	PlatformJupiter
	PlatformPhoton
	PlatformOther
)

func (p Platform) String() string {
	switch p {
	case PlatformPumpFunBondingCurve:
		return "pumpfun-bonding-curve"
	case PlatformPumpFunAMM:
		return "pumpfun-amm"
	case PlatformRaydiumV4:
		return "raydium-v4"
	case PlatformRaydiumCPMM:
		return "raydium-cpmm"
	case PlatformRaydiumCLMM:
		return "raydium-clmm"
	case PlatformRaydiumLaunchpad:
		return "raydium-launchpad"
	case PlatformMeteoraDLMM:
		return "meteora-dlmm"
	case PlatformMeteoraDBC:
		return "meteora-dbc"
	case PlatformMeteoraCPAMM:
		return "meteora-cp-amm"
	case PlatformJupiter:
		return "jupiter"
	case PlatformPhoton:
		return "photon"
	case PlatformOther:
		return "other"
	default:
		return "unknown"
	}
}

// PlatformClass buckets platforms for the janitor's prune rules (spec §4.6).
type PlatformClass int

const (
	ClassPumpFun PlatformClass = iota
	ClassLaunchpad
	ClassGeneralDEX
)

// Class returns the janitor platform-class for p.
func (p Platform) Class() PlatformClass {
	switch p {
	case PlatformPumpFunBondingCurve, PlatformPumpFunAMM:
		return ClassPumpFun
	case PlatformRaydiumLaunchpad, PlatformMeteoraDBC:
		return ClassLaunchpad
	default:
		return ClassGeneralDEX
	}
}

// NativeSOLMint is the wrapped/native SOL mint address.
var NativeSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// System and token-family program IDs.
var (
	SystemProgramID            = solana.SystemProgramID
	SPLTokenProgramID          = solana.TokenProgramID
	Token2022ProgramID         = solana.Token2022ProgramID
	AssociatedTokenProgramID   = solana.SPLAssociatedTokenAccountProgramID
	ComputeBudgetProgramID     = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	RentSysvarID               = solana.SysVarRentPubkey
	ClockSysvarID              = solana.SysVarClockPubkey
	MemoProgramID              = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

// programRegistry maps a program ID to its Platform tag. Populated by
// register in init() below, mirroring the teacher's chain.Register idiom.
var programRegistry = map[solana.PublicKey]Platform{}

// routerPrograms are program IDs recognized as routers: when the outer
// instruction belongs to one of these, the classifier prefers it over any
// inner leaf-AMM instruction (spec §4.2 tie-break rule).
var routerPrograms = map[solana.PublicKey]bool{}

// register records a program ID's platform tag, and (for router programs)
// its router-ness. Not safe for concurrent use; called only from init().
func register(id solana.PublicKey, platform Platform, isRouter bool) {
	programRegistry[id] = platform
	if isRouter {
		routerPrograms[id] = true
	}
}

// PlatformFor returns the recognized platform for a program ID, or
// (PlatformUnknown, false) if unrecognized.
func PlatformFor(id solana.PublicKey) (Platform, bool) {
	p, ok := programRegistry[id]
	return p, ok
}

// IsRouter reports whether id is a recognized router/aggregator program.
func IsRouter(id solana.PublicKey) bool {
	return routerPrograms[id]
}

// Pump.fun program IDs: the original bonding-curve program and its known
// variant deployment.
var (
	PumpFunProgramID        = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	PumpFunVariantProgramID = solana.MustPublicKeyFromBase58("BSfD6SHZigAfDWSjzD5Q41jw8LmKwtmjskPH9XW1mrRW")
	PumpFunAMMProgramID     = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
)

// Raydium program IDs.
var (
	RaydiumV4ProgramID        = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	RaydiumCPMMProgramID      = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	RaydiumCLMMProgramID      = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
	RaydiumLaunchpadProgramID = solana.MustPublicKeyFromBase58("LanMV9sAd7wArD4vJFi2qDdfnVhFxYSUg6eADduJ3uj")
)

// Meteora program IDs.
var (
	MeteoraDLMMProgramID      = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	MeteoraDBCProgramID       = solana.MustPublicKeyFromBase58("dbcij3LWUppWqq96dh6gJWwBifmcGfLSB5D4DuSMaqN")
	MeteoraDBCLegacyProgramID = solana.MustPublicKeyFromBase58("dbcCJv2L4J3bCJ3pYLyAEGbLnADoYnvn8oSKUNS1dAc")
	MeteoraCPAMMProgramID     = solana.MustPublicKeyFromBase58("CPMDWBwJDtYax9qW9z1uahWpdK4FgozXFckMzTc7A1x")
)

// Router / aggregator program IDs.
var (
	JupiterProgramID = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	PhotonProgramID   = solana.MustPublicKeyFromBase58("BTBUMJjJ6ME2p7QNDEjJoEu2U43ZGQHBqVCBdIjJ3gjE")
)

func init() {
	register(PumpFunProgramID, PlatformPumpFunBondingCurve, false)
	register(PumpFunVariantProgramID, PlatformPumpFunBondingCurve, false)
	register(PumpFunAMMProgramID, PlatformPumpFunAMM, false)

	register(RaydiumV4ProgramID, PlatformRaydiumV4, false)
	register(RaydiumCPMMProgramID, PlatformRaydiumCPMM, false)
	register(RaydiumCLMMProgramID, PlatformRaydiumCLMM, false)
	register(RaydiumLaunchpadProgramID, PlatformRaydiumLaunchpad, false)

	register(MeteoraDLMMProgramID, PlatformMeteoraDLMM, false)
	register(MeteoraDBCProgramID, PlatformMeteoraDBC, false)
	register(MeteoraDBCLegacyProgramID, PlatformMeteoraDBC, false)
	register(MeteoraCPAMMProgramID, PlatformMeteoraCPAMM, false)

	register(JupiterProgramID, PlatformJupiter, true)
	register(PhotonProgramID, PlatformPhoton, true)
}

// Discriminators required byte-exact by spec §6, used by the cloner's
// Reconstruct strategy (spec §4.3.4).
var (
	PumpFunBuyDiscriminator  = [8]byte{0x66, 0x06, 0x3D, 0x11, 0x01, 0x05, 0x24, 0x72}
	PumpFunSellDiscriminator = [8]byte{0x2A, 0x7A, 0x81, 0x76, 0x27, 0x66, 0x93, 0x9F}

	RaydiumLaunchpadBuyDiscriminator = [8]byte{0xFA, 0xEA, 0x0D, 0x7B, 0xD5, 0x9C, 0x13, 0xEC}
)

// AMMFamily reports whether a platform requires a funded wrapped-SOL input
// account for native-SOL legs (every AMM-family platform except pump.fun,
// spec §4.3.5 point 4).
func (p Platform) AMMFamily() bool {
	switch p {
	case PlatformRaydiumV4, PlatformRaydiumCPMM, PlatformRaydiumCLMM,
		PlatformRaydiumLaunchpad, PlatformMeteoraDLMM, PlatformMeteoraDBC,
		PlatformMeteoraCPAMM:
		return true
	default:
		return false
	}
}
