package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/storage"
)

// MintEventStore implements storage.MintEventStore using PostgreSQL.
type MintEventStore struct {
	pool *Pool
}

// NewMintEventStore creates a new MintEventStore.
func NewMintEventStore(pool *Pool) *MintEventStore {
	return &MintEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MintEventStore = (*MintEventStore)(nil)

const mintColumns = `
	token_address, signature, instruction_index, creator_address, bonding_curve_address,
	total_supply::text, decimals, virtual_sol_reserves::text, virtual_token_reserves::text,
	price, market_cap_sol::text, name, symbol, metadata_uri, created_at
`

// Insert adds a new mint. Returns ErrDuplicateKey if token_address exists.
// The initial buy is not stored here; it is a trade of its own.
func (s *MintEventStore) Insert(ctx context.Context, ev *domain.MintEvent) (err error) {
	if ev == nil || ev.TokenAddress == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_mint", start, err) }(time.Now())

	query := `
		INSERT INTO mint_events (
			token_address, signature, instruction_index, creator_address, bonding_curve_address,
			total_supply, decimals, virtual_sol_reserves, virtual_token_reserves,
			price, market_cap_sol, name, symbol, metadata_uri, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (token_address) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		ev.TokenAddress,
		ev.Signature,
		ev.InstructionIndex,
		ev.CreatorAddress,
		ev.BondingCurveAddress,
		ev.TotalSupply,
		int16(ev.Decimals),
		numeric(ev.VirtualSolReserves),
		numeric(ev.VirtualTokenReserves),
		ev.PriceString,
		numeric(ev.MarketCapSol),
		ev.Name,
		ev.Symbol,
		ev.MetadataURI,
		ev.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mint event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// GetByToken retrieves the mint of a token. Returns ErrNotFound if not exists.
func (s *MintEventStore) GetByToken(ctx context.Context, token string) (ev *domain.MintEvent, err error) {
	defer func(start time.Time) { observe("get_mint", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+mintColumns+` FROM mint_events WHERE token_address = $1`, token)
	return scanMint(row)
}

// GetBySignature retrieves the mint created by a transaction. Returns ErrNotFound if not exists.
func (s *MintEventStore) GetBySignature(ctx context.Context, signature string) (ev *domain.MintEvent, err error) {
	defer func(start time.Time) { observe("get_mint", start, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+mintColumns+` FROM mint_events WHERE signature = $1`, signature)
	return scanMint(row)
}

func scanMint(row pgx.Row) (*domain.MintEvent, error) {
	var ev domain.MintEvent
	var decimals int16
	var vsol, vtoken, mcap string

	err := row.Scan(
		&ev.TokenAddress,
		&ev.Signature,
		&ev.InstructionIndex,
		&ev.CreatorAddress,
		&ev.BondingCurveAddress,
		&ev.TotalSupply,
		&decimals,
		&vsol,
		&vtoken,
		&ev.PriceString,
		&mcap,
		&ev.Name,
		&ev.Symbol,
		&ev.MetadataURI,
		&ev.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan mint event: %w", err)
	}
	ev.Decimals = uint8(decimals)

	if ev.VirtualSolReserves, err = parseNumeric("virtual_sol_reserves", vsol); err != nil {
		return nil, err
	}
	if ev.VirtualTokenReserves, err = parseNumeric("virtual_token_reserves", vtoken); err != nil {
		return nil, err
	}
	if ev.MarketCapSol, err = parseNumeric("market_cap_sol", mcap); err != nil {
		return nil, err
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return &ev, nil
}
