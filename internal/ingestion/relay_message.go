package ingestion

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"

	"pumpfun-engine/internal/curve"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/pumpfun"
)

// ErrUnknownRelayMessage is returned for pushed objects that are neither an
// event nor a subscription acknowledgement.
var ErrUnknownRelayMessage = errors.New("ingestion: unknown relay message")

// RelayKind discriminates RelayMessage.
type RelayKind string

const (
	RelayKindCreate RelayKind = "create"
	RelayKindTrade  RelayKind = "trade"
	RelayKindAck    RelayKind = "ack"
)

// bondingCurvePool is the relay's pool label for trades on the curve itself.
const bondingCurvePool = "pump"

// RelayMessage is one object pushed by the relay feed. Exactly one of the
// pointers is set, matching Kind.
type RelayMessage struct {
	Kind   RelayKind
	Create *RelayCreate
	Trade  *RelayTrade
	Ack    *RelayAck
}

// RelayCreate is a token creation as reported by the relay.
type RelayCreate struct {
	Signature     string
	Mint          string
	Creator       string
	BondingCurve  string
	InitialBuy    decimal.Decimal // display tokens bought by the creator
	SolAmount     decimal.Decimal // SOL spent on the initial buy
	VirtualTokens decimal.Decimal
	VirtualSol    decimal.Decimal
	MarketCapSol  decimal.Decimal
	Name          string
	Symbol        string
	URI           string
	Pool          string
	ReceivedAt    time.Time
}

// RelayTrade is a buy or sell as reported by the relay.
type RelayTrade struct {
	Signature       string
	Mint            string
	Trader          string
	Type            domain.TradeType
	TokenAmount     decimal.Decimal
	SolAmount       decimal.Decimal
	NewTokenBalance decimal.Decimal
	BondingCurve    string
	VirtualTokens   decimal.Decimal
	VirtualSol      decimal.Decimal
	MarketCapSol    decimal.Decimal
	Pool            string
	ReceivedAt      time.Time
}

// RelayAck is a subscription acknowledgement or error notice.
type RelayAck struct {
	Message string
	Error   string
}

// relayPayload is the union of every field the relay pushes.
type relayPayload struct {
	Signature             string          `json:"signature"`
	Mint                  string          `json:"mint"`
	TraderPublicKey       string          `json:"traderPublicKey"`
	TxType                string          `json:"txType"`
	InitialBuy            decimal.Decimal `json:"initialBuy"`
	TokenAmount           decimal.Decimal `json:"tokenAmount"`
	SolAmount             decimal.Decimal `json:"solAmount"`
	NewTokenBalance       decimal.Decimal `json:"newTokenBalance"`
	BondingCurveKey       string          `json:"bondingCurveKey"`
	VTokensInBondingCurve decimal.Decimal `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    decimal.Decimal `json:"vSolInBondingCurve"`
	MarketCapSol          decimal.Decimal `json:"marketCapSol"`
	Name                  string          `json:"name"`
	Symbol                string          `json:"symbol"`
	URI                   string          `json:"uri"`
	Pool                  string          `json:"pool"`
	Message               string          `json:"message"`
	Errors                string          `json:"errors"`
}

// ParseRelayMessage normalizes one pushed object.
func ParseRelayMessage(data []byte, receivedAt time.Time) (RelayMessage, error) {
	var p relayPayload
	if err := sonnet.Unmarshal(data, &p); err != nil {
		return RelayMessage{}, fmt.Errorf("decode relay message: %w", err)
	}

	switch p.TxType {
	case "create":
		return RelayMessage{Kind: RelayKindCreate, Create: &RelayCreate{
			Signature:     p.Signature,
			Mint:          p.Mint,
			Creator:       p.TraderPublicKey,
			BondingCurve:  p.BondingCurveKey,
			InitialBuy:    p.InitialBuy,
			SolAmount:     p.SolAmount,
			VirtualTokens: p.VTokensInBondingCurve,
			VirtualSol:    p.VSolInBondingCurve,
			MarketCapSol:  p.MarketCapSol,
			Name:          p.Name,
			Symbol:        p.Symbol,
			URI:           p.URI,
			Pool:          p.Pool,
			ReceivedAt:    receivedAt,
		}}, nil
	case "buy", "sell":
		return RelayMessage{Kind: RelayKindTrade, Trade: &RelayTrade{
			Signature:       p.Signature,
			Mint:            p.Mint,
			Trader:          p.TraderPublicKey,
			Type:            domain.TradeType(p.TxType),
			TokenAmount:     p.TokenAmount,
			SolAmount:       p.SolAmount,
			NewTokenBalance: p.NewTokenBalance,
			BondingCurve:    p.BondingCurveKey,
			VirtualTokens:   p.VTokensInBondingCurve,
			VirtualSol:      p.VSolInBondingCurve,
			MarketCapSol:    p.MarketCapSol,
			Pool:            p.Pool,
			ReceivedAt:      receivedAt,
		}}, nil
	case "":
		if p.Message != "" || p.Errors != "" {
			return RelayMessage{Kind: RelayKindAck, Ack: &RelayAck{Message: p.Message, Error: p.Errors}}, nil
		}
	}
	return RelayMessage{}, fmt.Errorf("%w: txType %q", ErrUnknownRelayMessage, p.TxType)
}

// OnCurve reports whether the event happened on the bonding curve rather
// than after migration.
func (c *RelayCreate) OnCurve() bool { return c.Pool == "" || c.Pool == bondingCurvePool }

// OnCurve reports whether the trade happened on the bonding curve.
func (t *RelayTrade) OnCurve() bool { return t.Pool == "" || t.Pool == bondingCurvePool }

// MintEvent converts the relay create. A non-zero initial buy is attached as
// the mint's InitialBuy.
func (c *RelayCreate) MintEvent() *domain.MintEvent {
	state := relayReserves(c.VirtualSol, c.VirtualTokens)
	name, symbol, uri := c.Name, c.Symbol, c.URI

	ev := &domain.MintEvent{
		TokenAddress:         c.Mint,
		CreatorAddress:       c.Creator,
		BondingCurveAddress:  c.BondingCurve,
		TotalSupply:          strconv.FormatUint(pumpfun.TokenTotalSupply, 10),
		Decimals:             pumpfun.TokenDecimals,
		VirtualSolReserves:   c.VirtualSol,
		VirtualTokenReserves: c.VirtualTokens,
		PriceString:          curve.StatePrice(state),
		MarketCapSol:         c.MarketCapSol,
		Name:                 &name,
		Symbol:               &symbol,
		MetadataURI:          &uri,
		Signature:            c.Signature,
		CreatedAt:            c.ReceivedAt,
		Curve:                state,
	}

	if c.InitialBuy.IsPositive() {
		ev.InitialBuy = (&RelayTrade{
			Signature:       c.Signature,
			Mint:            c.Mint,
			Trader:          c.Creator,
			Type:            domain.TradeTypeBuy,
			TokenAmount:     c.InitialBuy,
			SolAmount:       c.SolAmount,
			NewTokenBalance: c.InitialBuy,
			BondingCurve:    c.BondingCurve,
			VirtualTokens:   c.VirtualTokens,
			VirtualSol:      c.VirtualSol,
			MarketCapSol:    c.MarketCapSol,
			Pool:            c.Pool,
			ReceivedAt:      c.ReceivedAt,
		}).TradeEvent()
	}
	return ev
}

// TradeEvent converts the relay trade. The relay does not report the
// trader's SOL balances or the fee, so those stay zero.
func (t *RelayTrade) TradeEvent() *domain.TradeEvent {
	state := relayReserves(t.VirtualSol, t.VirtualTokens)
	supply := domain.Scaled(pumpfun.TokenTotalSupply, pumpfun.TokenDecimals)

	return &domain.TradeEvent{
		TradeType:              t.Type,
		TokenAddress:           t.Mint,
		TraderAddress:          t.Trader,
		BondingCurveAddress:    t.BondingCurve,
		SolAmount:              t.SolAmount,
		TokenAmount:            t.TokenAmount,
		PriceString:            curve.StatePrice(state),
		TraderPostTokenBalance: t.NewTokenBalance,
		TraderPostPercentToken: t.NewTokenBalance.Mul(decimal.NewFromInt(100)).DivRound(supply, 4),
		VirtualSolReserves:     t.VirtualSol,
		VirtualTokenReserves:   t.VirtualTokens,
		RealSolReserves:        domain.Lamports(state.RealSol),
		RealTokenReserves:      domain.Scaled(state.RealToken, pumpfun.TokenDecimals),
		MarketCapSol:           t.MarketCapSol,
		Timestamp:              t.ReceivedAt,
		Signature:              t.Signature,
		Curve:                  state,
	}
}

// relayReserves rebuilds a snapshot from the relay's display-unit virtual
// reserves. Real reserves are the virtual ones minus the protocol offsets.
func relayReserves(virtualSol, virtualTokens decimal.Decimal) domain.ReserveState {
	vs := domain.BaseUnits(virtualSol, domain.SolDecimals)
	vt := domain.BaseUnits(virtualTokens, pumpfun.TokenDecimals)
	tokenOffset := pumpfun.InitialVirtualTokenReserves - pumpfun.InitialRealTokenReserves

	return domain.ReserveState{
		VirtualSol:   vs,
		VirtualToken: vt,
		RealSol:      saturatingSub(vs, pumpfun.InitialVirtualSolReserves),
		RealToken:    saturatingSub(vt, tokenOffset),
		TotalSupply:  pumpfun.TokenTotalSupply,
	}
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
