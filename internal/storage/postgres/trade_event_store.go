package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using PostgreSQL.
type TradeEventStore struct {
	pool *Pool
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(pool *Pool) *TradeEventStore {
	return &TradeEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

const insertTrade = `
	INSERT INTO trade_events (
		signature, instruction_index, trade_type, token_address, trader_address, bonding_curve_address,
		sol_amount, token_amount, fee_amount, price,
		trader_pre_balance_sol, trader_post_balance_sol, trader_post_token_balance, trader_post_percent_token,
		virtual_sol_reserves, virtual_token_reserves, real_sol_reserves, real_token_reserves,
		market_cap_sol, timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
`

const tradeColumns = `
	signature, instruction_index, trade_type, token_address, trader_address, bonding_curve_address,
	sol_amount::text, token_amount::text, fee_amount::text, price,
	trader_pre_balance_sol::text, trader_post_balance_sol::text,
	trader_post_token_balance::text, trader_post_percent_token::text,
	virtual_sol_reserves::text, virtual_token_reserves::text,
	real_sol_reserves::text, real_token_reserves::text,
	market_cap_sol::text, timestamp
`

func tradeArgs(ev *domain.TradeEvent) []any {
	return []any{
		ev.Signature,
		ev.InstructionIndex,
		string(ev.TradeType),
		ev.TokenAddress,
		ev.TraderAddress,
		ev.BondingCurveAddress,
		numeric(ev.SolAmount),
		numeric(ev.TokenAmount),
		numeric(ev.FeeAmount),
		ev.PriceString,
		numeric(ev.TraderPreBalanceSol),
		numeric(ev.TraderPostBalanceSol),
		numeric(ev.TraderPostTokenBalance),
		numeric(ev.TraderPostPercentToken),
		numeric(ev.VirtualSolReserves),
		numeric(ev.VirtualTokenReserves),
		numeric(ev.RealSolReserves),
		numeric(ev.RealTokenReserves),
		numeric(ev.MarketCapSol),
		ev.Timestamp,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if (signature, instruction_index) exists.
func (s *TradeEventStore) Insert(ctx context.Context, ev *domain.TradeEvent) (err error) {
	if ev == nil || ev.Signature == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_trade", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, insertTrade+` ON CONFLICT (signature, instruction_index) DO NOTHING`, tradeArgs(ev)...)
	if err != nil {
		return fmt.Errorf("insert trade event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeEventStore) InsertBulk(ctx context.Context, evs []*domain.TradeEvent) (err error) {
	if len(evs) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_trades", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range evs {
		if ev == nil || ev.Signature == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertTrade, tradeArgs(ev)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBySignature retrieves the trades of a transaction, ordered by instruction_index ASC.
func (s *TradeEventStore) GetBySignature(ctx context.Context, signature string) ([]*domain.TradeEvent, error) {
	return s.query(ctx, "get_trades", `
		SELECT `+tradeColumns+` FROM trade_events
		WHERE signature = $1
		ORDER BY instruction_index ASC
	`, signature)
}

// GetByToken retrieves all trades of a token, ordered by timestamp ASC.
func (s *TradeEventStore) GetByToken(ctx context.Context, token string) ([]*domain.TradeEvent, error) {
	return s.query(ctx, "get_trades", `
		SELECT `+tradeColumns+` FROM trade_events
		WHERE token_address = $1
		ORDER BY timestamp ASC, signature ASC, instruction_index ASC
	`, token)
}

// GetByTimeRange retrieves trades of a token within [start, end] (inclusive).
func (s *TradeEventStore) GetByTimeRange(ctx context.Context, token string, start, end time.Time) ([]*domain.TradeEvent, error) {
	return s.query(ctx, "get_trades", `
		SELECT `+tradeColumns+` FROM trade_events
		WHERE token_address = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC, signature ASC, instruction_index ASC
	`, token, start, end)
}

func (s *TradeEventStore) query(ctx context.Context, operation, sql string, args ...any) (evs []*domain.TradeEvent, err error) {
	defer func(start time.Time) { observe(operation, start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query trade events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ev, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade events: %w", err)
	}
	return evs, nil
}

func scanTrade(row pgx.Row) (*domain.TradeEvent, error) {
	var ev domain.TradeEvent
	var tradeType string
	var amounts [12]string

	err := row.Scan(
		&ev.Signature,
		&ev.InstructionIndex,
		&tradeType,
		&ev.TokenAddress,
		&ev.TraderAddress,
		&ev.BondingCurveAddress,
		&amounts[0],
		&amounts[1],
		&amounts[2],
		&ev.PriceString,
		&amounts[3],
		&amounts[4],
		&amounts[5],
		&amounts[6],
		&amounts[7],
		&amounts[8],
		&amounts[9],
		&amounts[10],
		&amounts[11],
		&ev.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("scan trade event: %w", err)
	}
	ev.TradeType = domain.TradeType(tradeType)
	ev.Timestamp = ev.Timestamp.UTC()

	targets := []struct {
		column string
		dst    *decimal.Decimal
	}{
		{"sol_amount", &ev.SolAmount},
		{"token_amount", &ev.TokenAmount},
		{"fee_amount", &ev.FeeAmount},
		{"trader_pre_balance_sol", &ev.TraderPreBalanceSol},
		{"trader_post_balance_sol", &ev.TraderPostBalanceSol},
		{"trader_post_token_balance", &ev.TraderPostTokenBalance},
		{"trader_post_percent_token", &ev.TraderPostPercentToken},
		{"virtual_sol_reserves", &ev.VirtualSolReserves},
		{"virtual_token_reserves", &ev.VirtualTokenReserves},
		{"real_sol_reserves", &ev.RealSolReserves},
		{"real_token_reserves", &ev.RealTokenReserves},
		{"market_cap_sol", &ev.MarketCapSol},
	}
	for i, t := range targets {
		if *t.dst, err = parseNumeric(t.column, amounts[i]); err != nil {
			return nil, err
		}
	}
	return &ev, nil
}
