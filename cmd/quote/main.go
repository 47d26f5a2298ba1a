// Command quote prints a bonding curve's state and buy/sell quotes.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"pumpfun-engine/internal/codec"
	"pumpfun-engine/internal/config"
	"pumpfun-engine/internal/curve"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/rpcpool"
)

func main() {
	rpc := flag.String("rpc", "", "Comma-separated RPC endpoints (default $PUMP_RPC_ENDPOINTS)")
	envFile := flag.String("env-file", ".env", "Dotenv file")
	buy := flag.String("buy", "0.1", "SOL amount to quote a buy for")
	sell := flag.String("sell", "1000000", "Token amount to quote a sell for")
	slippage := flag.Uint64("slippage-bps", 500, "Slippage tolerance for the limits")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: quote [flags] <mint>")
		os.Exit(2)
	}
	buySol, err := decimal.NewFromString(*buy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quote: -buy: %v\n", err)
		os.Exit(2)
	}
	sellTokens, err := decimal.NewFromString(*sell)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quote: -sell: %v\n", err)
		os.Exit(2)
	}

	if err := run(*rpc, *envFile, flag.Arg(0), buySol, sellTokens, *slippage, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "quote: %v\n", err)
		os.Exit(1)
	}
}

func run(rpc, envFile, mint string, buySol, sellTokens decimal.Decimal, slippageBps uint64, timeout time.Duration) error {
	cfg, err := config.LoadRPC(rpc, envFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}
	pool, err := rpcpool.New(cfg, rpcpool.WithLogger(logging.Component(logger, "rpcpool")))
	if err != nil {
		return err
	}

	curveAddr, err := pumpfun.BondingCurveAddress(mint)
	if err != nil {
		return fmt.Errorf("derive bonding curve: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	acct, err := rpcpool.AccountInfo(ctx, pool, curveAddr)
	if err != nil {
		if rpcpool.AllEmpty(err) {
			return fmt.Errorf("bonding curve %s not found", curveAddr)
		}
		return err
	}
	blob, err := base64.StdEncoding.DecodeString(acct.Data)
	if err != nil {
		return fmt.Errorf("decode account data: %w", err)
	}
	state, ok := codec.DecodeBondingCurve(blob)
	if !ok {
		return fmt.Errorf("malformed bonding curve account %s", curveAddr)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	row := func(k string, v any) { fmt.Fprintf(w, "%s\t%v\n", k, v) }

	row("mint", mint)
	row("bonding curve", curveAddr)
	row("complete", state.Complete)
	row("virtual sol", domain.Lamports(state.VirtualSol))
	row("virtual tokens", domain.Scaled(state.VirtualToken, domain.PumpTokenDecimals))
	row("real sol", domain.Lamports(state.RealSol))
	row("real tokens", domain.Scaled(state.RealToken, domain.PumpTokenDecimals))
	row("total supply", domain.Scaled(state.TotalSupply, domain.PumpTokenDecimals))
	row("price (sol/token)", curve.StatePrice(state))
	if mcap, err := curve.MarketCapSol(state); err == nil {
		row("market cap (sol)", domain.Lamports(mcap))
	}

	if state.Complete {
		row("quotes", "curve complete, trading moved off the curve")
		return w.Flush()
	}

	lamports := domain.BaseUnits(buySol, domain.SolDecimals)
	// The program charges its fee on top of the curve cost.
	net := curve.NetOfFee(lamports, pumpfun.FeeBasisPoints)
	if tokens, err := curve.BuyTokensForSol(state, net); err != nil {
		row(fmt.Sprintf("buy %s sol", buySol), err)
	} else {
		row(fmt.Sprintf("buy %s sol", buySol), fmt.Sprintf("%s tokens, max cost %s sol",
			domain.Scaled(tokens, domain.PumpTokenDecimals),
			domain.Lamports(curve.WithSlippage(lamports, slippageBps, true))))
	}

	tokenIn := domain.BaseUnits(sellTokens, domain.PumpTokenDecimals)
	if sol, err := curve.SolForSellTokens(state, tokenIn, pumpfun.FeeBasisPoints); err != nil {
		row(fmt.Sprintf("sell %s tokens", sellTokens), err)
	} else {
		row(fmt.Sprintf("sell %s tokens", sellTokens), fmt.Sprintf("%s sol, min out %s sol",
			domain.Lamports(sol),
			domain.Lamports(curve.WithSlippage(sol, slippageBps, false))))
	}
	return w.Flush()
}
