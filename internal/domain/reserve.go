package domain

// Base-unit scales.
const (
	LamportsPerSol    = 1_000_000_000 // lamports in one SOL
	SolDecimals       = 9
	PumpTokenDecimals = 6 // every pump.fun mint uses 6 decimals
)

// ReserveState is a snapshot of a bonding curve's reserves in base units.
// Snapshots are values: every event carries its own copy.
type ReserveState struct {
	VirtualSol   uint64 // lamports, including the protocol offset
	VirtualToken uint64 // smallest token units, including the protocol offset
	RealSol      uint64 // lamports actually pooled
	RealToken    uint64 // tokens still purchasable
	TotalSupply  uint64 // token total supply
	Complete     bool   // curve migrated, no further trades modeled
}
