// Package sink connects event stores and publishers to the bus.
package sink

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/events"
	"pumpfun-engine/internal/observability"
	"pumpfun-engine/internal/storage"
)

// Sink is one named consumer of decoded events. A nil handler skips that
// event kind.
type Sink struct {
	Name  string
	Mint  func(ctx context.Context, ev *domain.MintEvent) error
	Trade func(ctx context.Context, ev *domain.TradeEvent) error
}

// EventPublisher is satisfied by publish.KafkaPublisher.
type EventPublisher interface {
	PublishMint(ctx context.Context, ev *domain.MintEvent) error
	PublishTrade(ctx context.Context, ev *domain.TradeEvent) error
}

// Stores builds a sink writing into event stores. Either store may be nil.
func Stores(name string, mints storage.MintEventStore, trades storage.TradeEventStore) Sink {
	s := Sink{Name: name}
	if mints != nil {
		s.Mint = mints.Insert
	}
	if trades != nil {
		s.Trade = trades.Insert
	}
	return s
}

// Publisher builds a sink forwarding every event to p.
func Publisher(name string, p EventPublisher) Sink {
	return Sink{Name: name, Mint: p.PublishMint, Trade: p.PublishTrade}
}

// Attach subscribes every sink to bus. Each sink gets its own subscription,
// so a slow store does not hold back a publisher beyond the bus buffer.
// Duplicate-key errors are expected on redelivery and only logged at debug.
func Attach(ctx context.Context, bus *events.Bus, logger *logrus.Entry, sinks ...Sink) {
	for _, s := range sinks {
		s := s
		log := logger.WithField("sink", s.Name)
		if s.Mint != nil {
			bus.OnMint(ctx, func(ctx context.Context, ev *domain.MintEvent) {
				report(log, s.Name, "mint", ev.Signature, s.Mint(ctx, ev))
			})
		}
		if s.Trade != nil {
			bus.OnTrade(ctx, func(ctx context.Context, ev *domain.TradeEvent) {
				report(log, s.Name, "trade", ev.Signature, s.Trade(ctx, ev))
			})
		}
		log.Info("sink attached")
	}
}

func report(log *logrus.Entry, name, kind, signature string, err error) {
	if err == nil {
		return
	}
	fields := logrus.Fields{"kind": kind, "signature": signature}
	if errors.Is(err, storage.ErrDuplicateKey) {
		log.WithFields(fields).Debug("event already stored")
		return
	}
	observability.RecordSinkError(name, kind)
	log.WithFields(fields).WithError(err).Warn("sink failed")
}
