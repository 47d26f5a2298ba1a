package trading

import (
	"context"

	"pumpfun-engine/internal/domain"
)

// Order is everything a Submitter needs to put one trade on chain.
type Order struct {
	Kind         domain.OperationKind
	Mint         string
	BondingCurve string
	Owner        string
	// Lamports to spend for buys; unused for sells.
	SolAmount uint64
	// Expected tokens out for buys, tokens to sell for sells (base units).
	TokenAmount uint64
	// Maximum SOL cost for buys, minimum SOL output for sells.
	SolLimit    uint64
	SlippageBps uint16
}

// Submitter signs and broadcasts one trade and returns its signature. It
// records attempts and blockhashes on op. Errors are already classified.
type Submitter interface {
	Submit(ctx context.Context, order Order, op *domain.TradingOperation) (string, error)
}
