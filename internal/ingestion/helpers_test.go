package ingestion

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/codec"
	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/pumpfun"
	"pumpfun-engine/internal/rpcpool"
	"pumpfun-engine/internal/solana"
)

const (
	testMint    = "5PRZ3c8ynzY9Z7pbcWk2eWSrWUm1X7DWkFWgUaKSCkyP"
	testTrader  = "ECKUhGoz1bbJUFH3CQ6owx2D1wDfxfQXBHxzEzYJCg99"
	testCreator = "DgX9xEoN7RZGWevFVCy13JuzKsnmAx9B3VLfvoJxwqKn"
	baseTime    = int64(1700000000)
)

var (
	invokeLine  = "Program " + pumpfun.ProgramID + " invoke [1]"
	successLine = "Program " + pumpfun.ProgramID + " success"
)

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	order  []string
	mints  []*domain.MintEvent
	trades []*domain.TradeEvent
	err    error
}

func (p *recordingPublisher) PublishMint(_ context.Context, ev *domain.MintEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.mints = append(p.mints, ev)
	p.order = append(p.order, "mint:"+ev.Signature)
	return nil
}

func (p *recordingPublisher) PublishTrade(_ context.Context, ev *domain.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.trades = append(p.trades, ev)
	p.order = append(p.order, "trade:"+ev.Signature)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// fakeWS hands out caller-owned channels.
type fakeWS struct {
	logs   chan solana.LogNotification
	blocks chan solana.BlockNotification

	mu      sync.Mutex
	filters []solana.LogsFilter
}

func newFakeWS() *fakeWS {
	return &fakeWS{
		logs:   make(chan solana.LogNotification, 16),
		blocks: make(chan solana.BlockNotification, 16),
	}
}

func (w *fakeWS) SubscribeLogs(_ context.Context, f solana.LogsFilter) (<-chan solana.LogNotification, error) {
	w.mu.Lock()
	w.filters = append(w.filters, f)
	w.mu.Unlock()
	return w.logs, nil
}

func (w *fakeWS) SubscribeBlocks(_ context.Context, _ solana.BlockFilter) (<-chan solana.BlockNotification, error) {
	return w.blocks, nil
}

func (w *fakeWS) Close() error { return nil }

func testPool(t *testing.T, client solana.RPCClient) *rpcpool.Pool {
	t.Helper()
	p, err := rpcpool.NewWithEndpoints(rpcpool.Config{
		MaxRetries: 1,
		Timeout:    time.Second,
		RetryDelay: time.Millisecond,
	}, []*rpcpool.Endpoint{rpcpool.NewEndpoint("stub", client)}, rpcpool.WithLogger(logging.Discard()))
	require.NoError(t, err)
	return p
}

func testDecoder() *decoder.Decoder {
	return decoder.New(decoder.Options{Logger: logging.Discard()})
}

func dataLine(payload []byte) string {
	return codec.ProgramDataPrefix + base64.StdEncoding.EncodeToString(payload)
}

func tradeLine(t *testing.T, isBuy bool, ts int64) string {
	t.Helper()
	w := codec.NewWriter().
		Discriminator(codec.TradeEventDiscriminator).
		PubKey(testMint).
		U64(990_099_009).
		U64(34_612_903_225_806).
		Bool(isBuy).
		PubKey(testTrader).
		I64(ts).
		U64(31_000_000_004).
		U64(1_038_387_096_774_194).
		U64(1_000_000_004).
		U64(758_487_096_774_194)
	require.NoError(t, w.Err())
	return dataLine(w.Bytes())
}

func createLine(t *testing.T) string {
	t.Helper()
	w := codec.NewWriter().
		Discriminator(codec.CreateEventDiscriminator).
		String("Example").
		String("EXM").
		String("https://example.invalid/meta.json").
		PubKey(testMint).
		PubKey(testCreator)
	require.NoError(t, w.Err())
	return dataLine(w.Bytes())
}

// buyTx is a confirmed buy by testTrader at baseTime+offset.
func buyTx(t *testing.T, sig string, slot, offset int64) *solana.Transaction {
	t.Helper()
	curveAddr, err := pumpfun.BondingCurveAddress(testMint)
	require.NoError(t, err)
	return &solana.Transaction{
		Slot:      slot,
		Signature: sig,
		BlockTime: baseTime + offset,
		Meta: &solana.TransactionMeta{
			Fee: 5000,
			LogMessages: []string{
				invokeLine,
				pumpfun.InstructionPrefix + pumpfun.InstructionBuy,
				tradeLine(t, true, baseTime+offset),
				successLine,
			},
			PreBalances:  []uint64{10_000_000_000, 0, 1_000_000_000},
			PostBalances: []uint64{8_999_995_000, 0, 2_000_000_000},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 4, Mint: testMint, Owner: testTrader, Amount: "34612903225806", Decimals: 6},
			},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{testTrader, testMint, curveAddr},
			Signatures:  []string{sig},
		},
	}
}

// createTx is a create with the creator's initial buy in the same transaction.
func createTx(t *testing.T, sig string, slot int64) *solana.Transaction {
	t.Helper()
	tx := buyTx(t, sig, slot, 0)
	tx.Message.AccountKeys[0] = testCreator
	tx.Meta.LogMessages = []string{
		invokeLine,
		pumpfun.InstructionPrefix + pumpfun.InstructionCreate,
		createLine(t),
		successLine,
		invokeLine,
		pumpfun.InstructionPrefix + pumpfun.InstructionBuy,
		tradeLine(t, true, baseTime),
		successLine,
	}
	return tx
}

func failedTx(t *testing.T, sig string, slot int64) *solana.Transaction {
	t.Helper()
	tx := buyTx(t, sig, slot, 0)
	tx.Meta.Err = map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6002}}}
	tx.Meta.LogMessages = []string{
		invokeLine,
		pumpfun.InstructionPrefix + pumpfun.InstructionBuy,
		"Program log: AnchorError occurred. Error Code: TooMuchSolRequired. Error Number: 6002. Error Message: slippage: Too much SOL required to buy the given amount of tokens..",
	}
	return tx
}
