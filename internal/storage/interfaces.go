package storage

import (
	"context"
	"time"

	"pumpfun-engine/internal/domain"
)

// MintEventStore provides access to mint_events storage.
type MintEventStore interface {
	// Insert adds a new mint. Returns ErrDuplicateKey if token_address exists.
	Insert(ctx context.Context, ev *domain.MintEvent) error

	// GetByToken retrieves the mint of a token. Returns ErrNotFound if not exists.
	GetByToken(ctx context.Context, token string) (*domain.MintEvent, error)

	// GetBySignature retrieves the mint created by a transaction. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.MintEvent, error)
}

// TradeEventStore provides access to trade_events storage.
type TradeEventStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if (signature, instruction_index) exists.
	Insert(ctx context.Context, ev *domain.TradeEvent) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, evs []*domain.TradeEvent) error

	// GetBySignature retrieves the trades of a transaction, ordered by instruction_index ASC.
	GetBySignature(ctx context.Context, signature string) ([]*domain.TradeEvent, error)

	// GetByToken retrieves all trades of a token, ordered by timestamp ASC.
	GetByToken(ctx context.Context, token string) ([]*domain.TradeEvent, error)

	// GetByTimeRange retrieves trades of a token within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, token string, start, end time.Time) ([]*domain.TradeEvent, error)
}
