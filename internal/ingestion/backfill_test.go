package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/solana"
	"pumpfun-engine/internal/solana/stub"
)

func sigInfo(sig string, slot, offset int64, failed bool) solana.SignatureInfo {
	bt := baseTime + offset
	info := solana.SignatureInfo{Signature: sig, Slot: slot, BlockTime: &bt}
	if failed {
		info.Err = map[string]interface{}{"InstructionError": nil}
	}
	return info
}

func TestBackfiller_PublishesWindowOldestFirst(t *testing.T) {
	rpc := stub.NewRPCClient()
	// Newest first, as the node returns them.
	rpc.AddSignatures(pumpfun.ProgramID, []solana.SignatureInfo{
		sigInfo("too-new", 110, 100, false),
		sigInfo("buy-3", 105, 50, false),
		sigInfo("failed", 104, 40, true),
		sigInfo("buy-2", 103, 30, false),
		sigInfo("create", 102, 20, false),
		sigInfo("too-old", 90, -100, false),
		sigInfo("older", 80, -200, false),
	})
	rpc.AddTransaction(buyTx(t, "buy-3", 105, 50))
	rpc.AddTransaction(buyTx(t, "buy-2", 103, 30))
	rpc.AddTransaction(createTx(t, "create", 102))

	pub := &recordingPublisher{}
	b := NewBackfiller(BackfillOptions{
		Pool:      testPool(t, rpc),
		Decoder:   testDecoder(),
		Publisher: pub,
		PageSize:  2,
		Logger:    logging.Discard(),
	})

	res, err := b.BackfillRange(context.Background(), time.Unix(baseTime, 0), time.Unix(baseTime+60, 0))
	require.NoError(t, err)

	assert.Equal(t, []string{"mint:create", "trade:create", "trade:buy-2", "trade:buy-3"}, pub.published())
	assert.Equal(t, 4, res.SignaturesScanned)
	assert.Equal(t, 1, res.MintsPublished)
	assert.Equal(t, 3, res.TradesPublished)
	assert.Equal(t, 1, res.FailedSkipped)
	assert.Zero(t, res.Errors)
	assert.Equal(t, 3, rpc.Calls("getTransaction"))
	// Paging stops at the first page reaching past the window start.
	assert.Equal(t, 3, rpc.Calls("getSignaturesForAddress"))
}

func TestBackfiller_CountsFetchErrors(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(pumpfun.ProgramID, []solana.SignatureInfo{sigInfo("gone", 100, 10, false)})

	pub := &recordingPublisher{}
	b := NewBackfiller(BackfillOptions{
		Pool:      testPool(t, rpc),
		Decoder:   testDecoder(),
		Publisher: pub,
		Logger:    logging.Discard(),
	})

	res, err := b.BackfillRange(context.Background(), time.Unix(baseTime, 0), time.Unix(baseTime+60, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Empty(t, pub.published())
}

func TestBackfiller_MaxPages(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(pumpfun.ProgramID, []solana.SignatureInfo{
		sigInfo("a", 103, 30, true),
		sigInfo("b", 102, 20, true),
		sigInfo("c", 101, 10, true),
	})

	b := NewBackfiller(BackfillOptions{
		Pool:      testPool(t, rpc),
		Publisher: &recordingPublisher{},
		PageSize:  1,
		MaxPages:  2,
		Logger:    logging.Discard(),
	})

	res, err := b.BackfillRange(context.Background(), time.Unix(baseTime, 0), time.Unix(baseTime+60, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, res.SignaturesScanned)
	assert.Equal(t, 2, rpc.Calls("getSignaturesForAddress"))
}

func TestBackfiller_SignatureFailure(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Err = assert.AnError

	b := NewBackfiller(BackfillOptions{
		Pool:      testPool(t, rpc),
		Publisher: &recordingPublisher{},
		Logger:    logging.Discard(),
	})

	_, err := b.BackfillSince(context.Background(), time.Unix(baseTime, 0))
	assert.Error(t, err)
}
