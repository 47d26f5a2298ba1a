// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pumpfun-engine/internal/solana"
)

// ErrNotFound is returned for blocks the stub does not hold.
var ErrNotFound = errors.New("not found")

// DefaultBlockhash is returned by GetLatestBlockhash when BlockhashFunc is nil.
const DefaultBlockhash = "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"

// RPCClient implements solana.RPCClient for testing.
// Fields may be set directly before use; methods are safe for concurrent use.
type RPCClient struct {
	mu sync.Mutex

	Transactions  map[string]*solana.Transaction
	Blocks        map[int64]*solana.Block
	Signatures    map[string][]solana.SignatureInfo
	Accounts      map[string]*solana.AccountInfo
	Balances      map[string]uint64
	TokenBalances map[string]*solana.TokenAmount
	Statuses      map[string]*solana.SignatureStatus
	Slot          int64

	// Err, when set, fails every call.
	Err error
	// BlockhashFunc returns the n-th blockhash (1-based).
	BlockhashFunc func(n int) (string, error)
	// SendFunc handles sendTransaction; the default echoes a signature.
	SendFunc func(tx string) (string, error)
	// SimulateFunc handles simulateTransaction; the default succeeds.
	SimulateFunc func(tx string) (*solana.SimulationResult, error)

	Sent  []string
	calls map[string]int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.Transaction),
		Blocks:        make(map[int64]*solana.Block),
		Signatures:    make(map[string][]solana.SignatureInfo),
		Accounts:      make(map[string]*solana.AccountInfo),
		Balances:      make(map[string]uint64),
		TokenBalances: make(map[string]*solana.TokenAmount),
		Statuses:      make(map[string]*solana.SignatureStatus),
		calls:         make(map[string]int),
	}
}

// record counts a call and returns the configured failure, if any.
func (c *RPCClient) record(method string) error {
	c.calls[method]++
	return c.Err
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getTransaction"); err != nil {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetBlock retrieves a block by slot from the stub store.
func (c *RPCClient) GetBlock(_ context.Context, slot int64) (*solana.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getBlock"); err != nil {
		return nil, err
	}
	block, ok := c.Blocks[slot]
	if !ok {
		return nil, ErrNotFound
	}
	return block, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getSignaturesForAddress"); err != nil {
		return nil, err
	}
	sigs := c.Signatures[address]
	if opts == nil {
		return sigs, nil
	}
	if opts.Before != "" {
		for i, s := range sigs {
			if s.Signature == opts.Before {
				sigs = sigs[i+1:]
				break
			}
		}
	}
	if opts.Until != "" {
		for i, s := range sigs {
			if s.Signature == opts.Until {
				sigs = sigs[:i]
				break
			}
		}
	}
	if opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}
	return sigs, nil
}

// GetAccountInfo returns a stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getAccountInfo"); err != nil {
		return nil, err
	}
	return c.Accounts[pubkey], nil
}

// GetBalance returns a stored lamport balance, zero if unknown.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getBalance"); err != nil {
		return 0, err
	}
	return c.Balances[pubkey], nil
}

// GetTokenAccountBalance returns a stored token balance. Unknown accounts
// fail the way a node does.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, account string) (*solana.TokenAmount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getTokenAccountBalance"); err != nil {
		return nil, err
	}
	bal, ok := c.TokenBalances[account]
	if !ok {
		return nil, &solana.RPCError{Code: -32602, Message: "Invalid param: could not find account"}
	}
	return bal, nil
}

// GetLatestBlockhash returns BlockhashFunc's value or DefaultBlockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getLatestBlockhash"); err != nil {
		return nil, err
	}
	hash := DefaultBlockhash
	if c.BlockhashFunc != nil {
		h, err := c.BlockhashFunc(c.calls["getLatestBlockhash"])
		if err != nil {
			return nil, err
		}
		hash = h
	}
	return &solana.Blockhash{Blockhash: hash, LastValidBlockHeight: 1000}, nil
}

// SendTransaction records tx and delegates to SendFunc.
func (c *RPCClient) SendTransaction(_ context.Context, tx string, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	if err := c.record("sendTransaction"); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.Sent = append(c.Sent, tx)
	n := len(c.Sent)
	send := c.SendFunc
	c.mu.Unlock()

	if send != nil {
		return send(tx)
	}
	return fmt.Sprintf("stubsig%d", n), nil
}

// SimulateTransaction delegates to SimulateFunc or reports success.
func (c *RPCClient) SimulateTransaction(_ context.Context, tx string) (*solana.SimulationResult, error) {
	c.mu.Lock()
	if err := c.record("simulateTransaction"); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	simulate := c.SimulateFunc
	c.mu.Unlock()

	if simulate != nil {
		return simulate(tx)
	}
	return &solana.SimulationResult{}, nil
}

// GetSignatureStatuses returns stored statuses in request order.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getSignatureStatuses"); err != nil {
		return nil, err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// GetSlot returns Slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record("getSlot"); err != nil {
		return 0, err
	}
	return c.Slot, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddBlock adds a block to the stub store.
func (c *RPCClient) AddBlock(block *solana.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Blocks[block.Slot] = block
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// SetAccount stores account data.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// SetTokenBalance stores a token account balance.
func (c *RPCClient) SetTokenBalance(account string, amount *solana.TokenAmount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenBalances[account] = amount
}
