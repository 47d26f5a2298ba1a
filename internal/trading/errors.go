package trading

import (
	"context"
	"errors"
	"strings"

	"pumpfun-engine/internal/curve"
	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
)

// Sentinel errors for trading operations.
var (
	ErrInvalidAmount       = errors.New("trading: amount must be positive")
	ErrBuyInFlight         = errors.New("trading: a buy is already in flight")
	ErrSellInFlight        = errors.New("trading: a sell is already in flight")
	ErrCurveComplete       = curve.ErrCurveComplete
	ErrCurveNotFound       = errors.New("trading: bonding curve account not found")
	ErrInsufficientBalance = errors.New("trading: token balance too low for sell")
	ErrInsufficientFunds   = errors.New("trading: insufficient funds")
	ErrSlippageExceeded    = errors.New("trading: slippage exceeded")
	ErrProgramRejected     = errors.New("trading: program rejected transaction")
	ErrTransient           = errors.New("trading: transient failure")
	ErrNotConfirmed        = errors.New("trading: transaction not confirmed in time")
)

var transientMarkers = []string{
	"blockhash not found",
	"block height exceeded",
	"blockhash expired",
	"timeout",
	"timed out",
	"too many requests",
	"429",
	"502",
	"503",
	"504",
	"connection reset",
	"eof",
}

// classify maps a submission error onto the trading taxonomy. Known
// transient failures are wrapped in ErrTransient and may be retried;
// everything else is fatal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrInsufficientFunds, ErrSlippageExceeded, ErrProgramRejected, ErrInsufficientBalance, ErrTransient} {
		if errors.Is(err, known) {
			return err
		}
	}

	if se := sendErrorOf(err); se != nil {
		switch {
		case se.IsInsufficientFunds():
			return wrap(ErrInsufficientFunds, err)
		case se.IsSlippage():
			return wrap(ErrSlippageExceeded, err)
		case se.Code != "" || se.Number != 0:
			return wrap(ErrProgramRejected, err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient lamports"), strings.Contains(msg, "insufficient funds"):
		return wrap(ErrInsufficientFunds, err)
	case strings.Contains(msg, "custom program error"):
		return wrap(ErrProgramRejected, err)
	}

	var agg *rpcpool.AggregateError
	if errors.As(err, &agg) || errors.Is(err, context.DeadlineExceeded) {
		return wrap(ErrTransient, err)
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return wrap(ErrTransient, err)
		}
	}
	return err
}

// Fatal reports whether err must not be retried.
func Fatal(err error) bool {
	return err != nil && !errors.Is(classify(err), ErrTransient)
}

// sendErrorOf recovers program failure details from a decoded send error or
// from the simulation logs attached to a preflight RPC error.
func sendErrorOf(err error) *decoder.SendError {
	var se *decoder.SendError
	if errors.As(err, &se) {
		return se
	}
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		if logs := rpcErr.Logs(); len(logs) > 0 {
			return decoder.ParseSendError(logs, nil)
		}
	}
	return nil
}

type classified struct {
	kind error
	err  error
}

func (e *classified) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *classified) Unwrap() []error { return []error{e.kind, e.err} }

func wrap(kind, err error) error {
	return &classified{kind: kind, err: err}
}
