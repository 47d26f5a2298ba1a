// Package pumpfun holds the pump.fun program's addresses, instruction
// discriminators and log markers.
package pumpfun

import "pumpfun-engine/internal/codec"

// Program and well-known accounts.
const (
	ProgramID          = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	GlobalAccount      = "4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf"
	FeeRecipient       = "CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM"
	EventAuthority     = "Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1"
	MintAuthority      = "TSLvdd1pWpHVjahSpsvCXUbgwsL3JAcvokwaKt1eokM"
	SystemProgram      = "11111111111111111111111111111111"
	TokenProgram       = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenPgm = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	RentSysvar         = "SysvarRent111111111111111111111111111111111"
)

// Protocol issuance defaults for a freshly created curve.
const (
	InitialVirtualSolReserves   uint64 = 30_000_000_004
	InitialVirtualTokenReserves uint64 = 1_073_000_000_000_000
	InitialRealTokenReserves    uint64 = 793_100_000_000_000
	TokenTotalSupply            uint64 = 1_000_000_000_000_000
	TokenDecimals               uint8  = 6
	FeeBasisPoints              uint64 = 100
)

// Instruction-name markers in program logs.
const (
	InstructionPrefix = "Program log: Instruction: "
	InstructionCreate = "Create"
	InstructionBuy    = "Buy"
	InstructionSell   = "Sell"
)

// Instruction discriminators: sha256("global:<name>")[:8].
var (
	BuyDiscriminator  = [codec.DiscriminatorSize]byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	SellDiscriminator = [codec.DiscriminatorSize]byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
)

// BuyInstructionData encodes buy(amount, maxSolCost).
func BuyInstructionData(tokenAmount, maxSolCost uint64) []byte {
	return codec.NewWriter().Discriminator(BuyDiscriminator).U64(tokenAmount).U64(maxSolCost).Bytes()
}

// SellInstructionData encodes sell(amount, minSolOutput).
func SellInstructionData(tokenAmount, minSolOutput uint64) []byte {
	return codec.NewWriter().Discriminator(SellDiscriminator).U64(tokenAmount).U64(minSolOutput).Bytes()
}
