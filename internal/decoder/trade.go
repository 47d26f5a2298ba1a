package decoder

import (
	"github.com/shopspring/decimal"

	"pumpfun-engine/internal/curve"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/solana"
)

var hundred = decimal.NewFromInt(100)

// decodeTrade builds the trade event for marker m from the matching event
// payload and the trader's balance changes. When shared is set the
// transaction carries several trades, so balance deltas cannot be attributed
// to one of them and the event amounts are used.
func (d *Decoder) decodeTrade(tx *solana.Transaction, s *logScan, m marker, shared bool, fallbacks *[]Fallback) (*domain.TradeEvent, error) {
	isBuy := m.name == pumpfun.InstructionBuy
	ev, ok := s.tradeEvent(isBuy, s.rank(m))
	if !ok {
		return nil, missingEvent(tx, s)
	}

	trade := &domain.TradeEvent{
		TradeType:        domain.TradeTypeSell,
		TokenAddress:     ev.Mint,
		TraderAddress:    ev.User,
		Signature:        tx.Signature,
		InstructionIndex: m.ordinal,
	}
	if isBuy {
		trade.TradeType = domain.TradeTypeBuy
	}
	if addr, err := pumpfun.BondingCurveAddress(ev.Mint); err == nil {
		trade.BondingCurveAddress = addr
	}

	var fee uint64
	if tx.Meta != nil {
		fee = tx.Meta.Fee
	}
	trade.FeeAmount = domain.Lamports(fee)

	// SOL leg: balance delta of the trader, excluding the network fee when
	// the trader paid it.
	idx := tx.AccountIndex(ev.User)
	if idx < 0 {
		idx = 0
		trade.TraderAddress = tx.FeePayer()
		if trade.TraderAddress == "" {
			trade.TraderAddress = ev.User
		}
	}
	paidFee := fee
	if idx != 0 {
		paidFee = 0
	}
	solAmount := ev.SolAmount
	if pre, post, ok := solBalances(tx, idx); ok {
		trade.TraderPreBalanceSol = domain.Lamports(pre)
		trade.TraderPostBalanceSol = domain.Lamports(post)
		if delta, ok := solDelta(pre, post, paidFee, isBuy); ok && !shared {
			solAmount = delta
		} else {
			*fallbacks = append(*fallbacks, FallbackEventAmounts)
		}
	} else {
		*fallbacks = append(*fallbacks, FallbackSolBalanceAbsent)
	}
	trade.SolAmount = domain.Lamports(solAmount)

	// Token leg.
	decimals := pumpfun.TokenDecimals
	tokenAmount := ev.TokenAmount
	post, postOK := tokenBalance(tx.Meta, false, ev.Mint, trade.TraderAddress)
	if postOK {
		decimals = post.Decimals
		pre, _ := tokenBalance(tx.Meta, true, ev.Mint, trade.TraderAddress)
		if delta := absDiff(post.AmountUint64(), pre.AmountUint64()); delta > 0 && !shared {
			tokenAmount = delta
		} else {
			*fallbacks = append(*fallbacks, FallbackEventAmounts)
		}
	} else {
		*fallbacks = append(*fallbacks, FallbackTokenBalanceAbsent)
	}
	postTokens := post.AmountUint64()
	trade.TokenAmount = domain.Scaled(tokenAmount, decimals)
	trade.TraderPostTokenBalance = domain.Scaled(postTokens, decimals)
	trade.TraderPostPercentToken = domain.Scaled(postTokens, 0).
		Mul(hundred).
		DivRound(domain.Scaled(pumpfun.TokenTotalSupply, 0), 4)

	// Curve snapshot after the trade.
	state := ev.Reserves(pumpfun.TokenTotalSupply)
	trade.Curve = state
	trade.VirtualSolReserves = domain.Lamports(state.VirtualSol)
	trade.VirtualTokenReserves = domain.Scaled(state.VirtualToken, decimals)
	trade.RealSolReserves = domain.Lamports(state.RealSol)
	trade.RealTokenReserves = domain.Scaled(state.RealToken, decimals)
	trade.PriceString = curve.PriceString(state.VirtualSol, state.VirtualToken, decimals)
	mcap, _ := curve.MarketCapSol(state)
	trade.MarketCapSol = domain.Lamports(mcap)

	trade.Timestamp = d.eventTime(ev.Timestamp, tx.BlockTime, fallbacks)
	return trade, nil
}

func solBalances(tx *solana.Transaction, idx int) (pre, post uint64, ok bool) {
	if tx.Meta == nil || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return 0, 0, false
	}
	return tx.Meta.PreBalances[idx], tx.Meta.PostBalances[idx], true
}

// solDelta is SOL spent on a buy (pre-post-fee) or received on a sell
// (post-pre+fee). A non-positive result means the balances do not describe
// this trade.
func solDelta(pre, post, fee uint64, isBuy bool) (uint64, bool) {
	if isBuy {
		if pre <= post+fee {
			return 0, false
		}
		return pre - post - fee, true
	}
	if post+fee <= pre {
		return 0, false
	}
	return post + fee - pre, true
}

// tokenBalance finds the owner's balance entry for mint.
func tokenBalance(meta *solana.TransactionMeta, pre bool, mint, owner string) (solana.TokenBalance, bool) {
	if meta == nil {
		return solana.TokenBalance{}, false
	}
	balances := meta.PostTokenBalances
	if pre {
		balances = meta.PreTokenBalances
	}
	for _, b := range balances {
		if b.Mint == mint && b.Owner == owner {
			return b, true
		}
	}
	return solana.TokenBalance{}, false
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
