package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/domain"
)

func TestPublishDecoded_MintThenEveryTrade(t *testing.T) {
	pub := &recordingPublisher{}
	res := &decoder.Decoded{
		Kind: decoder.KindCreate,
		Mint: &domain.MintEvent{
			Signature:  "create",
			InitialBuy: &domain.TradeEvent{Signature: "initial", TradeType: domain.TradeTypeBuy},
		},
		Trades: []*domain.TradeEvent{
			{Signature: "second", TradeType: domain.TradeTypeBuy},
			{Signature: "third", TradeType: domain.TradeTypeSell},
		},
	}

	require.NoError(t, publishDecoded(context.Background(), pub, res))
	assert.Equal(t, []string{"mint:create", "trade:initial", "trade:second", "trade:third"}, pub.published())
}

func TestPublishDecoded_TradesOnly(t *testing.T) {
	pub := &recordingPublisher{}
	res := &decoder.Decoded{
		Kind: decoder.KindBuy,
		Trades: []*domain.TradeEvent{
			{Signature: "a", TradeType: domain.TradeTypeBuy, InstructionIndex: 0},
			{Signature: "a", TradeType: domain.TradeTypeBuy, InstructionIndex: 1},
		},
	}

	require.NoError(t, publishDecoded(context.Background(), pub, res))
	require.Len(t, pub.trades, 2)
	assert.Equal(t, 1, pub.trades[1].InstructionIndex)
	assert.NoError(t, publishDecoded(context.Background(), pub, nil))
}
