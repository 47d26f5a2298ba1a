// Package curve implements the pump.fun constant-product bonding curve in
// integer arithmetic. Every function is pure and works on base units.
package curve

import (
	"errors"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"pumpfun-engine/internal/domain"
)

// PriceDecimals is the fixed precision of every rendered price.
const PriceDecimals = 10

// MaxBps is 100% in basis points.
const MaxBps = 10_000

var (
	ErrCurveComplete      = errors.New("bonding curve is complete")
	ErrZeroAmount         = errors.New("amount must be greater than zero")
	ErrInvalidFee         = errors.New("fee basis points out of range")
	ErrInsufficientSupply = errors.New("requested tokens exceed curve reserves")
)

func u(v uint64) sdkmath.Int {
	return sdkmath.NewIntFromUint64(v)
}

func toUint64(v sdkmath.Int) uint64 {
	if v.IsNegative() {
		return 0
	}
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// BuyTokensForSol returns the tokens received for solIn lamports:
// vT - floor(vS*vT/(vS+solIn)) - 1, clamped to the real token reserve.
func BuyTokensForSol(state domain.ReserveState, solIn uint64) (uint64, error) {
	if state.Complete {
		return 0, ErrCurveComplete
	}
	if solIn == 0 {
		return 0, ErrZeroAmount
	}
	vs, vt := u(state.VirtualSol), u(state.VirtualToken)
	k := vs.Mul(vt)
	out := vt.Sub(k.Quo(vs.Add(u(solIn)))).SubRaw(1)
	tokens := toUint64(out)
	if tokens > state.RealToken {
		tokens = state.RealToken
	}
	return tokens, nil
}

// SolForSellTokens returns the lamports received for tokenIn after the
// protocol fee: gross = floor(tokenIn*vS/(vT+tokenIn)), net = gross - floor(gross*fee/10000).
func SolForSellTokens(state domain.ReserveState, tokenIn uint64, feeBps uint64) (uint64, error) {
	if state.Complete {
		return 0, ErrCurveComplete
	}
	if feeBps > MaxBps {
		return 0, ErrInvalidFee
	}
	if tokenIn == 0 {
		return 0, ErrZeroAmount
	}
	vs, vt, in := u(state.VirtualSol), u(state.VirtualToken), u(tokenIn)
	gross := in.Mul(vs).Quo(vt.Add(in))
	fee := gross.Mul(u(feeBps)).QuoRaw(MaxBps)
	return toUint64(gross.Sub(fee)), nil
}

// SolForBuyTokens returns the lamports needed to buy exactly tokenOut:
// floor(tokenOut*vS/(vT-tokenOut)) + 1.
func SolForBuyTokens(state domain.ReserveState, tokenOut uint64) (uint64, error) {
	if state.Complete {
		return 0, ErrCurveComplete
	}
	if tokenOut == 0 {
		return 0, ErrZeroAmount
	}
	if tokenOut > state.RealToken || tokenOut >= state.VirtualToken {
		return 0, ErrInsufficientSupply
	}
	vs, vt, out := u(state.VirtualSol), u(state.VirtualToken), u(tokenOut)
	return toUint64(out.Mul(vs).Quo(vt.Sub(out)).AddRaw(1)), nil
}

// MarketCapSol returns floor(totalSupply*vS/vT) in lamports, or 0 when vT is 0.
func MarketCapSol(state domain.ReserveState) (uint64, error) {
	if state.Complete {
		return 0, ErrCurveComplete
	}
	if state.VirtualToken == 0 {
		return 0, nil
	}
	return toUint64(u(state.TotalSupply).Mul(u(state.VirtualSol)).Quo(u(state.VirtualToken))), nil
}

// PriceString renders the SOL price of one whole token, virtualSol/virtualToken
// in display units, with PriceDecimals fractional digits (half away from zero).
// This is the only price formula used for state that feeds decisions.
func PriceString(virtualSol, virtualToken uint64, tokenDecimals uint8) string {
	if virtualToken == 0 {
		return decimal.Zero.StringFixed(PriceDecimals)
	}
	num := decimal.NewFromBigInt(new(big.Int).SetUint64(virtualSol), -domain.SolDecimals)
	den := decimal.NewFromBigInt(new(big.Int).SetUint64(virtualToken), -int32(tokenDecimals))
	return num.DivRound(den, PriceDecimals).StringFixed(PriceDecimals)
}

// StatePrice is PriceString over a snapshot with pump.fun token decimals.
func StatePrice(state domain.ReserveState) string {
	return PriceString(state.VirtualSol, state.VirtualToken, domain.PumpTokenDecimals)
}

// WithSlippage widens amount by bps: upward for maximum cost, downward for
// minimum output.
func WithSlippage(amount uint64, bps uint64, up bool) uint64 {
	if up {
		return toUint64(u(amount).Mul(u(MaxBps + bps)).QuoRaw(MaxBps))
	}
	if bps >= MaxBps {
		return 0
	}
	return toUint64(u(amount).Mul(u(MaxBps - bps)).QuoRaw(MaxBps))
}

// NetOfFee is the part of gross lamports left for the curve when the program
// charges feeBps on top: floor(gross*10000/(10000+feeBps)).
func NetOfFee(gross uint64, feeBps uint64) uint64 {
	return toUint64(u(gross).Mul(u(MaxBps)).Quo(u(MaxBps).Add(u(feeBps))))
}
