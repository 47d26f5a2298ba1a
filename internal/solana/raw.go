package solana

import "strconv"

// Raw shapes shared by getTransaction, getBlock and blockNotification.

type rawTransaction struct {
	Slot        int64    `json:"slot"`
	BlockTime   *int64   `json:"blockTime"`
	Meta        *rawMeta `json:"meta"`
	Transaction *rawTx   `json:"transaction"`
}

type rawMeta struct {
	Err               interface{}         `json:"err"`
	Fee               uint64              `json:"fee"`
	LogMessages       []string            `json:"logMessages"`
	PreBalances       []uint64            `json:"preBalances"`
	PostBalances      []uint64            `json:"postBalances"`
	PreTokenBalances  []rawTokenBalance   `json:"preTokenBalances"`
	PostTokenBalances []rawTokenBalance   `json:"postTokenBalances"`
	LoadedAddresses   *rawLoadedAddresses `json:"loadedAddresses"`
}

type rawLoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type rawTokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		Amount   string `json:"amount"`
		Decimals uint8  `json:"decimals"`
	} `json:"uiTokenAmount"`
}

type rawTx struct {
	Signatures []string    `json:"signatures"`
	Message    *rawMessage `json:"message"`
}

type rawMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

type rawBlock struct {
	BlockTime    *int64           `json:"blockTime"`
	Transactions []rawTransaction `json:"transactions"`
}

func (r *rawTransaction) toTransaction(slot int64, blockTime *int64) *Transaction {
	tx := &Transaction{Slot: slot}
	if blockTime != nil {
		tx.BlockTime = *blockTime
	}

	if r.Transaction != nil {
		msg := &TransactionMessage{Signatures: r.Transaction.Signatures}
		if len(r.Transaction.Signatures) > 0 {
			tx.Signature = r.Transaction.Signatures[0]
		}
		if r.Transaction.Message != nil {
			msg.AccountKeys = append(msg.AccountKeys, r.Transaction.Message.AccountKeys...)
		}
		// v0 transactions index lookup-table addresses after the static keys
		if r.Meta != nil && r.Meta.LoadedAddresses != nil {
			msg.AccountKeys = append(msg.AccountKeys, r.Meta.LoadedAddresses.Writable...)
			msg.AccountKeys = append(msg.AccountKeys, r.Meta.LoadedAddresses.Readonly...)
		}
		tx.Message = msg
	}

	if r.Meta != nil {
		tx.Meta = &TransactionMeta{
			Err:               r.Meta.Err,
			Fee:               r.Meta.Fee,
			LogMessages:       r.Meta.LogMessages,
			PreBalances:       r.Meta.PreBalances,
			PostBalances:      r.Meta.PostBalances,
			PreTokenBalances:  convertTokenBalances(r.Meta.PreTokenBalances),
			PostTokenBalances: convertTokenBalances(r.Meta.PostTokenBalances),
		}
	}
	return tx
}

func (b *rawBlock) toBlock(slot int64) *Block {
	block := &Block{Slot: slot, BlockTime: b.BlockTime}
	for i := range b.Transactions {
		block.Transactions = append(block.Transactions, *b.Transactions[i].toTransaction(slot, b.BlockTime))
	}
	return block
}

func convertTokenBalances(raw []rawTokenBalance) []TokenBalance {
	if len(raw) == 0 {
		return nil
	}
	out := make([]TokenBalance, len(raw))
	for i, r := range raw {
		out[i] = TokenBalance{
			AccountIndex: r.AccountIndex,
			Mint:         r.Mint,
			Owner:        r.Owner,
			Amount:       r.UITokenAmount.Amount,
			Decimals:     r.UITokenAmount.Decimals,
		}
	}
	return out
}

// AmountUint64 parses the raw amount; malformed amounts read as zero.
func (b TokenBalance) AmountUint64() uint64 {
	v, err := strconv.ParseUint(b.Amount, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
