package postgres

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

func sampleTrade(sig string, idx int, at time.Time) *domain.TradeEvent {
	return &domain.TradeEvent{
		TradeType:              domain.TradeTypeBuy,
		TokenAddress:           "mint-a",
		TraderAddress:          "trader",
		BondingCurveAddress:    "curve",
		SolAmount:              decimal.RequireFromString("0.990099009"),
		TokenAmount:            decimal.RequireFromString("34612903.225806"),
		FeeAmount:              decimal.RequireFromString("0.000005"),
		PriceString:            "0.0000000298",
		TraderPreBalanceSol:    decimal.RequireFromString("10"),
		TraderPostBalanceSol:   decimal.RequireFromString("8.999995"),
		TraderPostTokenBalance: decimal.RequireFromString("34612903.225806"),
		TraderPostPercentToken: decimal.RequireFromString("3.4613"),
		VirtualSolReserves:     decimal.RequireFromString("31.000000004"),
		VirtualTokenReserves:   decimal.RequireFromString("1038387096.774194"),
		RealSolReserves:        decimal.RequireFromString("1.000000004"),
		RealTokenReserves:      decimal.RequireFromString("758487096.774194"),
		MarketCapSol:           decimal.RequireFromString("29.85"),
		Timestamp:              at,
		Signature:              sig,
		InstructionIndex:       idx,
	}
}

func TestMintEventStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := NewMintEventStore(pool)
	ev := &domain.MintEvent{
		TokenAddress:         "mint-a",
		CreatorAddress:       "creator",
		BondingCurveAddress:  "curve",
		TotalSupply:          "1000000000000000",
		Decimals:             6,
		VirtualSolReserves:   decimal.RequireFromString("30.000000004"),
		VirtualTokenReserves: decimal.RequireFromString("1073000000"),
		PriceString:          "0.0000000279",
		MarketCapSol:         decimal.RequireFromString("27.958993"),
		Name:                 ptr("Example"),
		Symbol:               ptr("EXM"),
		Signature:            "sig-1",
		CreatedAt:            t0,
	}

	require.NoError(t, s.Insert(ctx, ev))
	assert.ErrorIs(t, s.Insert(ctx, ev), storage.ErrDuplicateKey)

	got, err := s.GetByToken(ctx, "mint-a")
	require.NoError(t, err)
	assert.Equal(t, ev.TotalSupply, got.TotalSupply)
	assert.True(t, ev.VirtualSolReserves.Equal(got.VirtualSolReserves))
	assert.True(t, ev.MarketCapSol.Equal(got.MarketCapSol))
	assert.Equal(t, "Example", *got.Name)
	assert.Nil(t, got.MetadataURI)
	assert.True(t, t0.Equal(got.CreatedAt))

	bySig, err := s.GetBySignature(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, "mint-a", bySig.TokenAddress)

	_, err = s.GetByToken(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTradeEventStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	s := NewTradeEventStore(pool)

	first := sampleTrade("sig-1", 1, t0)
	require.NoError(t, s.Insert(ctx, first))
	assert.ErrorIs(t, s.Insert(ctx, first), storage.ErrDuplicateKey)

	require.NoError(t, s.InsertBulk(ctx, []*domain.TradeEvent{
		sampleTrade("sig-2", 0, t0.Add(time.Minute)),
		sampleTrade("sig-3", 0, t0.Add(2*time.Minute)),
	}))
	err := s.InsertBulk(ctx, []*domain.TradeEvent{
		sampleTrade("sig-4", 0, t0),
		sampleTrade("sig-1", 1, t0),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := s.GetByToken(ctx, "mint-a")
	require.NoError(t, err)
	require.Len(t, all, 3, "failed batch left nothing behind")
	assert.Equal(t, "sig-1", all[0].Signature)
	assert.True(t, first.TokenAmount.Equal(all[0].TokenAmount))
	assert.True(t, first.RealSolReserves.Equal(all[0].RealSolReserves))
	assert.Equal(t, domain.TradeTypeBuy, all[0].TradeType)

	bySig, err := s.GetBySignature(ctx, "sig-2")
	require.NoError(t, err)
	require.Len(t, bySig, 1)

	ranged, err := s.GetByTimeRange(ctx, "mint-a", t0.Add(time.Minute), t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}
