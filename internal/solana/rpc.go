package solana

import "context"

// RPCClient defines the Solana JSON-RPC calls used by the engine.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns nil, nil when the node does not know it yet.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBlock retrieves a block with full transaction details.
	GetBlock(ctx context.Context, slot int64) (*Block, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves an account with base64 data. Returns nil, nil if absent.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenAccountBalance returns the balance of an SPL token account.
	GetTokenAccountBalance(ctx context.Context, account string) (*TokenAmount, error)

	// GetLatestBlockhash returns a recent blockhash.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a base64 encoded signed transaction.
	SendTransaction(ctx context.Context, tx string, opts SendOptions) (string, error)

	// SimulateTransaction simulates a base64 encoded transaction.
	SimulateTransaction(ctx context.Context, tx string) (*SimulationResult, error)

	// GetSignatureStatuses returns statuses in request order; unknown entries are nil.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)

	// GetSlot returns the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction status metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	LogMessages       []string
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TransactionMessage contains the parsed transaction message.
// AccountKeys includes addresses loaded from lookup tables, in index order.
type TransactionMessage struct {
	AccountKeys []string
	Signatures  []string
}

// TokenBalance is one entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw base units
	Decimals     uint8
}

// Failed reports whether the transaction errored on chain.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// AccountIndex returns the position of key in the account list, or -1.
func (t *Transaction) AccountIndex(key string) int {
	if t.Message == nil {
		return -1
	}
	for i, k := range t.Message.AccountKeys {
		if k == key {
			return i
		}
	}
	return -1
}

// FeePayer returns the first account key, the signer paying fees.
func (t *Transaction) FeePayer() string {
	if t.Message == nil || len(t.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Message.AccountKeys[0]
}

// Logs returns the log messages, or nil when there is no meta.
func (t *Transaction) Logs() []string {
	if t.Meta == nil {
		return nil
	}
	return t.Meta.LogMessages
}
