// Package ingestion turns node and relay streams into typed events on the
// event bus.
package ingestion

import (
	"context"

	"pumpfun-engine/internal/decoder"
	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/observability"
)

// Publisher receives typed events. *events.Bus implements it.
type Publisher interface {
	PublishMint(ctx context.Context, ev *domain.MintEvent) error
	PublishTrade(ctx context.Context, ev *domain.TradeEvent) error
}

// publishMint publishes a mint and, when present, its initial buy as a
// trade right after it.
func publishMint(ctx context.Context, pub Publisher, ev *domain.MintEvent) error {
	if err := pub.PublishMint(ctx, ev); err != nil {
		return err
	}
	observability.RecordEventPublished("mint", ev.CreatedAt.Unix())
	if ev.InitialBuy != nil {
		return publishTrade(ctx, pub, ev.InitialBuy)
	}
	return nil
}

func publishTrade(ctx context.Context, pub Publisher, ev *domain.TradeEvent) error {
	if err := pub.PublishTrade(ctx, ev); err != nil {
		return err
	}
	observability.RecordEventPublished(string(ev.TradeType), ev.Timestamp.Unix())
	return nil
}

// publishDecoded publishes whatever the decoder produced: the mint first,
// then every trade in instruction order.
func publishDecoded(ctx context.Context, pub Publisher, res *decoder.Decoded) error {
	if res == nil {
		return nil
	}
	if res.Mint != nil {
		if err := publishMint(ctx, pub, res.Mint); err != nil {
			return err
		}
	}
	for _, trade := range res.Trades {
		if err := publishTrade(ctx, pub, trade); err != nil {
			return err
		}
	}
	return nil
}
