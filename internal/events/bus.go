// Package events fans decoded mint and trade events out to typed subscribers.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/logging"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// ErrClosed is returned when publishing to a closed bus.
var ErrClosed = errors.New("events: bus closed")

// Options configures a Bus.
type Options struct {
	Buffer int
	Logger *logrus.Entry
}

// Bus delivers every published event to each subscriber in publish order.
// Publishing blocks on a full subscriber until the context is done.
type Bus struct {
	buffer int
	logger *logrus.Entry

	mu     sync.RWMutex
	mints  []chan *domain.MintEvent
	trades []chan *domain.TradeEvent
	closed bool

	handlers sync.WaitGroup
}

// New creates a Bus.
func New(opts Options) *Bus {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Bus{
		buffer: opts.Buffer,
		logger: logging.OrDefault(opts.Logger, "events"),
	}
}

// Mints subscribes to mint events. The channel closes when the bus closes.
func (b *Bus) Mints() <-chan *domain.MintEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *domain.MintEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.mints = append(b.mints, ch)
	return ch
}

// Trades subscribes to trade events. The channel closes when the bus closes.
func (b *Bus) Trades() <-chan *domain.TradeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan *domain.TradeEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.trades = append(b.trades, ch)
	return ch
}

// OnMint runs fn for every mint event on its own goroutine, one event at a
// time, until the bus closes or ctx is done.
func (b *Bus) OnMint(ctx context.Context, fn func(context.Context, *domain.MintEvent)) {
	consume(ctx, b, b.Mints(), fn)
}

// OnTrade runs fn for every trade event on its own goroutine, one event at a
// time, until the bus closes or ctx is done.
func (b *Bus) OnTrade(ctx context.Context, fn func(context.Context, *domain.TradeEvent)) {
	consume(ctx, b, b.Trades(), fn)
}

func consume[T any](ctx context.Context, b *Bus, ch <-chan T, fn func(context.Context, T)) {
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fn(ctx, ev)
			}
		}
	}()
}

// PublishMint delivers ev to every mint subscriber.
func (b *Bus) PublishMint(ctx context.Context, ev *domain.MintEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return deliver(ctx, b.mints, ev)
}

// PublishTrade delivers ev to every trade subscriber.
func (b *Bus) PublishTrade(ctx context.Context, ev *domain.TradeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return deliver(ctx, b.trades, ev)
}

func deliver[T any](ctx context.Context, subs []chan T, ev T) error {
	for _, ch := range subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close closes every subscription channel and waits for OnMint/OnTrade
// handlers to drain what was already delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.mints {
		close(ch)
	}
	for _, ch := range b.trades {
		close(ch)
	}
	b.mu.Unlock()

	b.handlers.Wait()
	b.logger.Debug("bus closed")
}
