package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the direction of a bonding-curve trade.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// MintEvent is a token creation decoded from a confirmed transaction.
// Immutable after decoding, except InitialBuy which is attached while the
// same transaction is decoded.
type MintEvent struct {
	TokenAddress         string          `json:"tokenAddress"`
	CreatorAddress       string          `json:"creatorAddress"`
	BondingCurveAddress  string          `json:"bondingCurveAddress"`
	TotalSupply          string          `json:"totalSupply"` // base units
	Decimals             uint8           `json:"decimals"`
	VirtualSolReserves   decimal.Decimal `json:"virtualSolReserves"`
	VirtualTokenReserves decimal.Decimal `json:"virtualTokenReserves"`
	PriceString          string          `json:"priceString"`
	MarketCapSol         decimal.Decimal `json:"marketCapSol"`
	Name                 *string         `json:"name,omitempty"`
	Symbol               *string         `json:"symbol,omitempty"`
	MetadataURI          *string         `json:"metadataUri,omitempty"`
	InitialBuy           *TradeEvent     `json:"initialBuy,omitempty"`
	Signature            string          `json:"signature"`
	InstructionIndex     int             `json:"instructionIndex"`
	CreatedAt            time.Time       `json:"createdAt"`
	Curve                ReserveState    `json:"-"`
}

// TradeEvent is one confirmed buy or sell instruction.
type TradeEvent struct {
	TradeType              TradeType       `json:"tradeType"`
	TokenAddress           string          `json:"tokenAddress"`
	TraderAddress          string          `json:"traderAddress"`
	BondingCurveAddress    string          `json:"bondingCurveAddress"`
	SolAmount              decimal.Decimal `json:"solAmount"`   // fee-exclusive
	TokenAmount            decimal.Decimal `json:"tokenAmount"` // display units
	FeeAmount              decimal.Decimal `json:"feeAmount"`   // transaction fee in SOL
	PriceString            string          `json:"priceString"`
	TraderPreBalanceSol    decimal.Decimal `json:"traderPreBalanceSol"`
	TraderPostBalanceSol   decimal.Decimal `json:"traderPostBalanceSol"`
	TraderPostTokenBalance decimal.Decimal `json:"traderPostTokenBalance"`
	TraderPostPercentToken decimal.Decimal `json:"traderPostPercentToken"`
	VirtualSolReserves     decimal.Decimal `json:"virtualSolReserves"`
	VirtualTokenReserves   decimal.Decimal `json:"virtualTokenReserves"`
	RealSolReserves        decimal.Decimal `json:"realSolReserves"`
	RealTokenReserves      decimal.Decimal `json:"realTokenReserves"`
	MarketCapSol           decimal.Decimal `json:"marketCapSol"`
	Timestamp              time.Time       `json:"timestamp"`
	Signature              string          `json:"signature"`
	InstructionIndex       int             `json:"instructionIndex"`
	Curve                  ReserveState    `json:"-"`
}

// IsBuy reports whether the trade bought tokens from the curve.
func (e *TradeEvent) IsBuy() bool {
	return e.TradeType == TradeTypeBuy
}

// Lamports renders base-unit lamports as a SOL decimal.
func Lamports(v uint64) decimal.Decimal {
	return Scaled(v, SolDecimals)
}

// Scaled renders a base-unit amount with the given number of decimals.
func Scaled(v uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -int32(decimals))
}

// BaseUnits converts a display amount back to base units, truncating extra
// precision. Negative or overflowing amounts read as zero.
func BaseUnits(d decimal.Decimal, decimals uint8) uint64 {
	v := d.Shift(int32(decimals)).Truncate(0).BigInt()
	if v.Sign() < 0 || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
