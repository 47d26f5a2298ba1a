package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationKind is the side of a trading operation.
type OperationKind string

const (
	OperationBuy  OperationKind = "buy"
	OperationSell OperationKind = "sell"
)

// OperationState is a step of the trading state machine.
type OperationState string

const (
	StateIdle                 OperationState = "idle"
	StateSubmitting           OperationState = "submitting"
	StateAwaitingConfirmation OperationState = "awaiting-confirmation"
	StateDecoding             OperationState = "decoding"
	StateDone                 OperationState = "done"
	StateFailed               OperationState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s OperationState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// TradingOperation is the ephemeral record of one buy or sell attempt.
// It is owned by the executing call and discarded when the call returns.
type TradingOperation struct {
	ID              string
	Kind            OperationKind
	TokenAddress    string
	AmountRequested uint64 // lamports for buys, token base units for sells
	SlippageBps     uint16
	Attempt         int
	LastBlockhash   string
	Signature       string
	State           OperationState
	Outcome         string
	StartedAt       time.Time
}

// TradeResult is returned to buy/sell callers. Failures are data, never panics.
type TradeResult struct {
	Success     bool
	Signature   string
	SolAmount   decimal.Decimal
	TokenAmount decimal.Decimal
	Error       error
	Warning     string
	Operation   TradingOperation
}
