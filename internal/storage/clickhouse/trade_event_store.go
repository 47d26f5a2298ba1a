package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/storage"
)

// TradeEventStore implements storage.TradeEventStore using ClickHouse.
// MergeTree does not enforce keys, so duplicates are checked before insert.
type TradeEventStore struct {
	conn *Conn
}

// NewTradeEventStore creates a new TradeEventStore.
func NewTradeEventStore(conn *Conn) *TradeEventStore {
	return &TradeEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)

const tradeColumns = `
	signature, instruction_index, trade_type, token_address, trader_address, bonding_curve_address,
	sol_amount, token_amount, fee_amount, price,
	trader_pre_balance_sol, trader_post_balance_sol, trader_post_token_balance, trader_post_percent_token,
	virtual_sol_reserves, virtual_token_reserves, real_sol_reserves, real_token_reserves,
	market_cap_sol, timestamp
`

type tradeKey struct {
	signature string
	index     int
}

// Insert adds a new trade. Returns ErrDuplicateKey if (signature, instruction_index) exists.
func (s *TradeEventStore) Insert(ctx context.Context, ev *domain.TradeEvent) error {
	return s.InsertBulk(ctx, []*domain.TradeEvent{ev})
}

// InsertBulk adds multiple trades in one batch. Fails entire batch on any duplicate.
func (s *TradeEventStore) InsertBulk(ctx context.Context, evs []*domain.TradeEvent) (err error) {
	if len(evs) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_trades", start, err) }(time.Now())

	// Check for intra-batch duplicates
	seen := make(map[tradeKey]struct{}, len(evs))
	for _, ev := range evs {
		if ev == nil || ev.Signature == "" {
			return storage.ErrInvalidInput
		}
		k := tradeKey{ev.Signature, ev.InstructionIndex}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing rows
	for _, ev := range evs {
		exists, err := s.exists(ctx, ev.Signature, ev.InstructionIndex)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO trade_events (`+tradeColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range evs {
		err = batch.Append(
			ev.Signature, uint32(ev.InstructionIndex), string(ev.TradeType),
			ev.TokenAddress, ev.TraderAddress, ev.BondingCurveAddress,
			ev.SolAmount, ev.TokenAmount, ev.FeeAmount, ev.PriceString,
			ev.TraderPreBalanceSol, ev.TraderPostBalanceSol, ev.TraderPostTokenBalance, ev.TraderPostPercentToken,
			ev.VirtualSolReserves, ev.VirtualTokenReserves, ev.RealSolReserves, ev.RealTokenReserves,
			ev.MarketCapSol, ev.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySignature retrieves the trades of a transaction, ordered by instruction_index ASC.
func (s *TradeEventStore) GetBySignature(ctx context.Context, signature string) ([]*domain.TradeEvent, error) {
	return s.query(ctx, `
		SELECT `+tradeColumns+` FROM trade_events FINAL
		WHERE signature = ?
		ORDER BY instruction_index ASC
	`, signature)
}

// GetByToken retrieves all trades of a token, ordered by timestamp ASC.
func (s *TradeEventStore) GetByToken(ctx context.Context, token string) ([]*domain.TradeEvent, error) {
	return s.query(ctx, `
		SELECT `+tradeColumns+` FROM trade_events FINAL
		WHERE token_address = ?
		ORDER BY timestamp ASC, signature ASC, instruction_index ASC
	`, token)
}

// GetByTimeRange retrieves trades of a token within [start, end] (inclusive).
func (s *TradeEventStore) GetByTimeRange(ctx context.Context, token string, start, end time.Time) ([]*domain.TradeEvent, error) {
	return s.query(ctx, `
		SELECT `+tradeColumns+` FROM trade_events FINAL
		WHERE token_address = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, signature ASC, instruction_index ASC
	`, token, start, end)
}

// exists checks if a trade with the given key exists.
func (s *TradeEventStore) exists(ctx context.Context, signature string, index int) (bool, error) {
	query := `
		SELECT count(*) FROM trade_events
		WHERE signature = ? AND instruction_index = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, signature, uint32(index)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *TradeEventStore) query(ctx context.Context, sql string, args ...any) (evs []*domain.TradeEvent, err error) {
	defer func(start time.Time) { observe("get_trades", start, err) }(time.Now())

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query trade events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev domain.TradeEvent
		var index uint32
		var tradeType string
		amounts := make([]decimal.Decimal, 12)

		err := rows.Scan(
			&ev.Signature, &index, &tradeType,
			&ev.TokenAddress, &ev.TraderAddress, &ev.BondingCurveAddress,
			&amounts[0], &amounts[1], &amounts[2], &ev.PriceString,
			&amounts[3], &amounts[4], &amounts[5], &amounts[6],
			&amounts[7], &amounts[8], &amounts[9], &amounts[10],
			&amounts[11], &ev.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade event row: %w", err)
		}

		ev.InstructionIndex = int(index)
		ev.TradeType = domain.TradeType(tradeType)
		ev.SolAmount, ev.TokenAmount, ev.FeeAmount = amounts[0], amounts[1], amounts[2]
		ev.TraderPreBalanceSol, ev.TraderPostBalanceSol = amounts[3], amounts[4]
		ev.TraderPostTokenBalance, ev.TraderPostPercentToken = amounts[5], amounts[6]
		ev.VirtualSolReserves, ev.VirtualTokenReserves = amounts[7], amounts[8]
		ev.RealSolReserves, ev.RealTokenReserves = amounts[9], amounts[10]
		ev.MarketCapSol = amounts[11]
		ev.Timestamp = ev.Timestamp.UTC()
		evs = append(evs, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade event rows: %w", err)
	}
	return evs, nil
}
