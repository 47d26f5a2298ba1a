// Command decode fetches one transaction and prints what the decoder makes
// of it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"pumpfun-engine/internal/config"
	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/rpcpool"
)

type output struct {
	Signature string               `json:"signature"`
	Kind      string               `json:"kind"`
	Mint      *domain.MintEvent    `json:"mint,omitempty"`
	Trades    []*domain.TradeEvent `json:"trades,omitempty"`
	Fallbacks []decoder.Fallback   `json:"fallbacks,omitempty"`
	SendError *decoder.SendError   `json:"sendError,omitempty"`
}

func main() {
	rpc := flag.String("rpc", "", "Comma-separated RPC endpoints (default $PUMP_RPC_ENDPOINTS)")
	envFile := flag.String("env-file", ".env", "Dotenv file")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: decode [flags] <signature>")
		os.Exit(2)
	}
	if err := run(*rpc, *envFile, flag.Arg(0), *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)
		os.Exit(1)
	}
}

func run(rpc, envFile, signature string, timeout time.Duration) error {
	cfg, err := config.LoadRPC(rpc, envFile)
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout stays valid JSON.
	logger, err := logging.New(logging.Config{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		return err
	}
	pool, err := rpcpool.New(cfg, rpcpool.WithLogger(logging.Component(logger, "rpcpool")))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tx, err := rpcpool.Transaction(ctx, pool, signature)
	if err != nil {
		if rpcpool.AllEmpty(err) {
			return fmt.Errorf("transaction %s not found", signature)
		}
		return err
	}

	out := output{Signature: signature, Kind: "none"}
	dec := decoder.New(decoder.Options{Logger: logging.Component(logger, "decoder")})
	res, err := dec.Decode(tx)

	var sendErr *decoder.SendError
	switch {
	case errors.As(err, &sendErr):
		out.Kind = "failed"
		out.SendError = sendErr
	case err != nil:
		return err
	case res != nil:
		out.Kind = string(res.Kind)
		out.Mint = res.Mint
		out.Trades = res.Trades
		out.Fallbacks = res.Fallbacks
	}
	return printJSON(out)
}

func printJSON(v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}
