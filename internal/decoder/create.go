package decoder

import (
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/curve"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/solana"
)

// decodeCreate builds the mint event for create marker m. The first buy in
// the same transaction is decoded as the initial buy and supplies the curve
// state; any further trades land in Trades.
func (d *Decoder) decodeCreate(tx *solana.Transaction, s *logScan, m marker) (*Decoded, error) {
	res := &Decoded{Kind: KindCreate}
	mint := &domain.MintEvent{
		CreatorAddress:   tx.FeePayer(),
		Decimals:         pumpfun.TokenDecimals,
		Signature:        tx.Signature,
		InstructionIndex: m.ordinal,
	}

	// The minted account is the first post-balance entry; the supply is the
	// sum over every account holding it.
	var supply uint64
	if tx.Meta != nil && len(tx.Meta.PostTokenBalances) > 0 {
		first := tx.Meta.PostTokenBalances[0]
		mint.TokenAddress = first.Mint
		mint.Decimals = first.Decimals
		for _, b := range tx.Meta.PostTokenBalances {
			if b.Mint == first.Mint {
				supply += b.AmountUint64()
			}
		}
	} else {
		res.Fallbacks = append(res.Fallbacks, FallbackTokenBalanceAbsent)
		// The mint keypair signs right after the fee payer.
		if tx.Message != nil && len(tx.Message.AccountKeys) > 1 {
			mint.TokenAddress = tx.Message.AccountKeys[1]
		}
		supply = pumpfun.TokenTotalSupply
	}
	mint.TotalSupply = strconv.FormatUint(supply, 10)

	if addr, err := pumpfun.BondingCurveAddress(mint.TokenAddress); err == nil {
		mint.BondingCurveAddress = addr
	}

	if meta, ok := s.createEvent(); ok {
		mint.Name = &meta.Name
		mint.Symbol = &meta.Symbol
		mint.MetadataURI = &meta.URI
	} else {
		if _, drift := s.unknownDiscriminator(); drift {
			return nil, missingEvent(tx, s)
		}
		res.Fallbacks = append(res.Fallbacks, FallbackMetadataAbsent)
	}

	state := domain.ReserveState{
		VirtualSol:   pumpfun.InitialVirtualSolReserves,
		VirtualToken: pumpfun.InitialVirtualTokenReserves,
		RealToken:    pumpfun.InitialRealTokenReserves,
		TotalSupply:  supply,
	}

	shared := len(s.trades()) > 1
	bm, hasBuy := s.first(pumpfun.InstructionBuy)
	if hasBuy {
		var buyFallbacks []Fallback
		buy, err := d.decodeTrade(tx, s, bm, shared, &buyFallbacks)
		var sendErr *SendError
		switch {
		case errors.Is(err, ErrUnknownEventLayout):
			return nil, err
		case errors.As(err, &sendErr):
			d.logger.WithFields(logrus.Fields{"signature": tx.Signature}).Warn("create carries a buy marker without a trade event")
		case err == nil:
			mint.InitialBuy = buy
			res.Fallbacks = append(res.Fallbacks, buyFallbacks...)
			state.VirtualSol = buy.Curve.VirtualSol
			state.VirtualToken = buy.Curve.VirtualToken
			state.RealSol = buy.Curve.RealSol
			state.RealToken = buy.Curve.RealToken
		}
	}
	if mint.InitialBuy == nil {
		res.Fallbacks = append(res.Fallbacks, FallbackInitialReserves)
	}

	var rest []marker
	for _, tm := range s.trades() {
		if !hasBuy || tm.ordinal != bm.ordinal {
			rest = append(rest, tm)
		}
	}
	if len(rest) > 0 {
		trades, err := d.decodeTrades(tx, s, rest, &res.Fallbacks)
		var sendErr *SendError
		switch {
		case errors.Is(err, ErrUnknownEventLayout):
			return nil, err
		case errors.As(err, &sendErr):
			d.logger.WithFields(logrus.Fields{"signature": tx.Signature}).Warn("create carries trade markers without trade events")
		}
		res.Trades = trades
	}

	mint.Curve = state
	mint.VirtualSolReserves = domain.Lamports(state.VirtualSol)
	mint.VirtualTokenReserves = domain.Scaled(state.VirtualToken, mint.Decimals)
	mint.PriceString = curve.PriceString(state.VirtualSol, state.VirtualToken, mint.Decimals)
	mcap, _ := curve.MarketCapSol(state)
	mint.MarketCapSol = domain.Lamports(mcap)

	switch {
	case tx.BlockTime > 0:
		mint.CreatedAt = d.eventTime(tx.BlockTime, 0, &res.Fallbacks)
	case mint.InitialBuy != nil:
		mint.CreatedAt = mint.InitialBuy.Timestamp
	default:
		mint.CreatedAt = d.eventTime(0, 0, &res.Fallbacks)
	}

	res.Mint = mint
	return res, nil
}
