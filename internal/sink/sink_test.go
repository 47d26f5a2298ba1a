package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/events"
	"pumpfun-engine/internal/logging"
	"pumpfun-engine/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	mints  []string
	trades []string
	err    error
}

func (p *recordingPublisher) PublishMint(_ context.Context, ev *domain.MintEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mints = append(p.mints, ev.TokenAddress)
	return p.err
}

func (p *recordingPublisher) PublishTrade(_ context.Context, ev *domain.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, ev.Signature)
	return p.err
}

func trade(sig string, at time.Time) *domain.TradeEvent {
	return &domain.TradeEvent{
		TradeType:    domain.TradeTypeBuy,
		TokenAddress: "mint-a",
		Signature:    sig,
		Timestamp:    at,
	}
}

func TestAttach_StoresAndPublisher(t *testing.T) {
	ctx := context.Background()
	bus := events.New(events.Options{Logger: logging.Discard()})
	mints := memory.NewMintEventStore()
	trades := memory.NewTradeEventStore()
	pub := &recordingPublisher{}

	Attach(ctx, bus, logging.Discard(), Stores("memory", mints, trades), Publisher("kafka", pub))

	at := time.Unix(1700000000, 0).UTC()
	require.NoError(t, bus.PublishMint(ctx, &domain.MintEvent{TokenAddress: "mint-a", Signature: "sig-1", CreatedAt: at}))
	require.NoError(t, bus.PublishTrade(ctx, trade("sig-1", at)))
	require.NoError(t, bus.PublishTrade(ctx, trade("sig-2", at.Add(time.Second))))
	// Redelivery is ignored by the store.
	require.NoError(t, bus.PublishTrade(ctx, trade("sig-2", at.Add(time.Second))))
	bus.Close()

	m, err := mints.GetByToken(ctx, "mint-a")
	require.NoError(t, err)
	assert.Equal(t, "sig-1", m.Signature)

	stored, err := trades.GetByToken(ctx, "mint-a")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "sig-1", stored[0].Signature)
	assert.Equal(t, "sig-2", stored[1].Signature)

	assert.Equal(t, []string{"mint-a"}, pub.mints)
	assert.Equal(t, []string{"sig-1", "sig-2", "sig-2"}, pub.trades)
}

func TestAttach_ErrorsDoNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	bus := events.New(events.Options{Logger: logging.Discard()})
	pub := &recordingPublisher{err: errors.New("broker down")}

	Attach(ctx, bus, logging.Discard(), Publisher("kafka", pub))

	at := time.Unix(1700000000, 0).UTC()
	require.NoError(t, bus.PublishTrade(ctx, trade("sig-1", at)))
	require.NoError(t, bus.PublishTrade(ctx, trade("sig-2", at)))
	bus.Close()

	assert.Equal(t, []string{"sig-1", "sig-2"}, pub.trades)
}

func TestStores_NilStoreSkipsKind(t *testing.T) {
	s := Stores("trades-only", nil, memory.NewTradeEventStore())
	assert.Nil(t, s.Mint)
	assert.NotNil(t, s.Trade)
}
