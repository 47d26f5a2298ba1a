package rpcpool

import (
	"context"
	"errors"

	"pumpfun-engine/internal/solana"
)

// Transaction fetches a transaction. A transaction the nodes have not seen
// counts as empty, so it is retried and finally reported via AllEmpty.
func Transaction(ctx context.Context, p *Pool, signature string) (*solana.Transaction, error) {
	return Do(ctx, p, "getTransaction", func(ctx context.Context, c solana.RPCClient) (*solana.Transaction, error) {
		return c.GetTransaction(ctx, signature)
	})
}

// AccountInfo fetches an account. A missing account counts as empty.
func AccountInfo(ctx context.Context, p *Pool, address string) (*solana.AccountInfo, error) {
	return Do(ctx, p, "getAccountInfo", func(ctx context.Context, c solana.RPCClient) (*solana.AccountInfo, error) {
		return c.GetAccountInfo(ctx, address)
	})
}

type lamports struct {
	value uint64
	set   bool
}

// Balance fetches a lamport balance. Zero is a valid balance here.
func Balance(ctx context.Context, p *Pool, address string) (uint64, error) {
	res, err := Do(ctx, p, "getBalance", func(ctx context.Context, c solana.RPCClient) (lamports, error) {
		v, err := c.GetBalance(ctx, address)
		if err != nil {
			return lamports{}, err
		}
		return lamports{value: v, set: true}, nil
	})
	return res.value, err
}

// TokenBalance fetches an SPL token account balance. A token account that
// does not exist reports a zero amount.
func TokenBalance(ctx context.Context, p *Pool, account string) (*solana.TokenAmount, error) {
	return Do(ctx, p, "getTokenAccountBalance", func(ctx context.Context, c solana.RPCClient) (*solana.TokenAmount, error) {
		amount, err := c.GetTokenAccountBalance(ctx, account)
		if solana.IsAccountNotFound(err) {
			return &solana.TokenAmount{Amount: "0"}, nil
		}
		return amount, err
	})
}

// LatestBlockhash fetches a recent blockhash.
func LatestBlockhash(ctx context.Context, p *Pool) (*solana.Blockhash, error) {
	return Do(ctx, p, "getLatestBlockhash", func(ctx context.Context, c solana.RPCClient) (*solana.Blockhash, error) {
		bh, err := c.GetLatestBlockhash(ctx)
		if err == nil && bh != nil && bh.Blockhash == "" {
			return nil, nil
		}
		return bh, err
	})
}

// Send broadcasts a signed transaction to several endpoints. Node-side
// rejections (preflight failures, bad blockhash) are not retried on the
// endpoint that returned them.
func Send(ctx context.Context, p *Pool, tx string, opts solana.SendOptions) (string, error) {
	return Do(ctx, p, "sendTransaction", func(ctx context.Context, c solana.RPCClient) (string, error) {
		sig, err := c.SendTransaction(ctx, tx, opts)
		var rpcErr *solana.RPCError
		if errors.As(err, &rpcErr) {
			return "", Permanent(err)
		}
		return sig, err
	})
}

// Simulate runs simulateTransaction.
func Simulate(ctx context.Context, p *Pool, tx string) (*solana.SimulationResult, error) {
	return Do(ctx, p, "simulateTransaction", func(ctx context.Context, c solana.RPCClient) (*solana.SimulationResult, error) {
		res, err := c.SimulateTransaction(ctx, tx)
		var rpcErr *solana.RPCError
		if errors.As(err, &rpcErr) {
			return nil, Permanent(err)
		}
		return res, err
	})
}

// SignatureStatus fetches the status of one signature. An unknown signature
// counts as empty.
func SignatureStatus(ctx context.Context, p *Pool, signature string) (*solana.SignatureStatus, error) {
	return Do(ctx, p, "getSignatureStatuses", func(ctx context.Context, c solana.RPCClient) (*solana.SignatureStatus, error) {
		statuses, err := c.GetSignatureStatuses(ctx, signature)
		if err != nil || len(statuses) == 0 {
			return nil, err
		}
		return statuses[0], nil
	})
}

type signaturePage struct {
	items   []solana.SignatureInfo
	fetched bool
}

// Signatures fetches one page of signatures for address, newest first. An
// empty page is a valid answer at the end of history.
func Signatures(ctx context.Context, p *Pool, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	page, err := Do(ctx, p, "getSignaturesForAddress", func(ctx context.Context, c solana.RPCClient) (signaturePage, error) {
		items, err := c.GetSignaturesForAddress(ctx, address, opts)
		if err != nil {
			return signaturePage{}, err
		}
		return signaturePage{items: items, fetched: true}, nil
	})
	return page.items, err
}
