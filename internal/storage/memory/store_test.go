package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/storage"
)

var t0 = time.Unix(1700000000, 0).UTC()

func trade(sig string, idx int, token string, at time.Time) *domain.TradeEvent {
	return &domain.TradeEvent{
		TradeType:        domain.TradeTypeBuy,
		TokenAddress:     token,
		TraderAddress:    "trader",
		SolAmount:        decimal.RequireFromString("1.5"),
		TokenAmount:      decimal.RequireFromString("1000"),
		Signature:        sig,
		InstructionIndex: idx,
		Timestamp:        at,
	}
}

func TestMintEventStore(t *testing.T) {
	ctx := context.Background()
	s := NewMintEventStore()
	name := "Example"
	ev := &domain.MintEvent{
		TokenAddress: "mint-a",
		Signature:    "sig-1",
		Name:         &name,
		InitialBuy:   trade("sig-1", 1, "mint-a", t0),
		CreatedAt:    t0,
	}

	require.NoError(t, s.Insert(ctx, ev))
	assert.ErrorIs(t, s.Insert(ctx, ev), storage.ErrDuplicateKey)
	assert.ErrorIs(t, s.Insert(ctx, &domain.MintEvent{}), storage.ErrInvalidInput)

	got, err := s.GetByToken(ctx, "mint-a")
	require.NoError(t, err)
	assert.Equal(t, "Example", *got.Name)
	assert.Nil(t, got.InitialBuy)
	assert.NotNil(t, ev.InitialBuy, "caller's event is untouched")

	bySig, err := s.GetBySignature(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, "mint-a", bySig.TokenAddress)

	_, err = s.GetByToken(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetBySignature(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeEventStore_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewTradeEventStore()

	require.NoError(t, s.Insert(ctx, trade("sig-2", 0, "mint-a", t0.Add(2*time.Second))))
	require.NoError(t, s.Insert(ctx, trade("sig-1", 3, "mint-a", t0)))
	require.NoError(t, s.Insert(ctx, trade("sig-1", 1, "mint-a", t0)))
	require.NoError(t, s.Insert(ctx, trade("sig-3", 0, "mint-b", t0)))
	assert.ErrorIs(t, s.Insert(ctx, trade("sig-1", 1, "mint-a", t0)), storage.ErrDuplicateKey)

	byToken, err := s.GetByToken(ctx, "mint-a")
	require.NoError(t, err)
	require.Len(t, byToken, 3)
	assert.Equal(t, []int{1, 3, 0}, []int{byToken[0].InstructionIndex, byToken[1].InstructionIndex, byToken[2].InstructionIndex})

	bySig, err := s.GetBySignature(ctx, "sig-1")
	require.NoError(t, err)
	require.Len(t, bySig, 2)
	assert.Equal(t, 1, bySig[0].InstructionIndex)

	ranged, err := s.GetByTimeRange(ctx, "mint-a", t0.Add(time.Second), t0.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "sig-2", ranged[0].Signature)
}

func TestTradeEventStore_InsertBulkIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewTradeEventStore()
	require.NoError(t, s.Insert(ctx, trade("sig-1", 0, "mint-a", t0)))

	err := s.InsertBulk(ctx, []*domain.TradeEvent{
		trade("sig-2", 0, "mint-a", t0),
		trade("sig-1", 0, "mint-a", t0),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = s.InsertBulk(ctx, []*domain.TradeEvent{
		trade("sig-3", 0, "mint-a", t0),
		trade("sig-3", 0, "mint-a", t0),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := s.GetByToken(ctx, "mint-a")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.InsertBulk(ctx, []*domain.TradeEvent{trade("sig-2", 0, "mint-a", t0)}))
	require.NoError(t, s.InsertBulk(ctx, nil))
}
