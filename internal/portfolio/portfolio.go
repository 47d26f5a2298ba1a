// Package portfolio tracks token holdings and gates spending.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"pumpfun-engine/internal/logging"
)

var (
	// ErrSpendLimit is returned when a buy would exceed a spend limit.
	ErrSpendLimit = errors.New("portfolio: spend limit exceeded")
	// ErrMaxPositions is returned when a buy would open one position too many.
	ErrMaxPositions = errors.New("portfolio: too many open positions")
)

// Limits bound what the gate lets through. Zero disables a limit.
type Limits struct {
	MaxBuyLamports   uint64 `yaml:"max_buy_lamports"`   // per buy
	MaxTotalLamports uint64 `yaml:"max_total_lamports"` // net spend across open positions
	MaxPositions     int    `yaml:"max_positions"`
}

// Position is the holding in one token.
type Position struct {
	Token         string
	Tokens        uint64 // base units
	SpentLamports uint64
	RecvLamports  uint64
}

// Memory is an in-process portfolio. Safe for concurrent use.
type Memory struct {
	limits Limits
	logger *logrus.Entry

	mu        sync.Mutex
	positions map[string]*Position
}

// NewMemory creates an empty portfolio.
func NewMemory(limits Limits, logger *logrus.Entry) *Memory {
	return &Memory{
		limits:    limits,
		logger:    logging.OrDefault(logger, "portfolio"),
		positions: make(map[string]*Position),
	}
}

// CanBuy reports whether spending lamports on token is allowed.
func (m *Memory) CanBuy(_ context.Context, token string, lamports uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.limits.MaxBuyLamports > 0 && lamports > m.limits.MaxBuyLamports {
		return fmt.Errorf("%w: %d lamports per buy, limit %d", ErrSpendLimit, lamports, m.limits.MaxBuyLamports)
	}
	if m.limits.MaxTotalLamports > 0 {
		if total := m.netSpendLocked(); total+lamports > m.limits.MaxTotalLamports {
			return fmt.Errorf("%w: %d lamports committed, limit %d", ErrSpendLimit, total, m.limits.MaxTotalLamports)
		}
	}
	if m.limits.MaxPositions > 0 {
		if p, ok := m.positions[token]; (!ok || p.Tokens == 0) && m.openLocked() >= m.limits.MaxPositions {
			return ErrMaxPositions
		}
	}
	return nil
}

// RecordBuy adds bought tokens to the holding.
func (m *Memory) RecordBuy(_ context.Context, token string, tokens, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.positionLocked(token)
	p.Tokens += tokens
	p.SpentLamports += lamports

	m.logger.WithFields(logrus.Fields{
		"token":    token,
		"tokens":   tokens,
		"lamports": lamports,
		"holding":  p.Tokens,
	}).Info("buy recorded")
}

// RecordSell removes sold tokens from the holding.
func (m *Memory) RecordSell(_ context.Context, token string, tokens, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.positionLocked(token)
	if tokens > p.Tokens {
		tokens = p.Tokens
	}
	p.Tokens -= tokens
	p.RecvLamports += lamports

	m.logger.WithFields(logrus.Fields{
		"token":    token,
		"tokens":   tokens,
		"lamports": lamports,
		"holding":  p.Tokens,
	}).Info("sell recorded")
}

// Holding returns the tracked token balance.
func (m *Memory) Holding(_ context.Context, token string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[token]; ok {
		return p.Tokens
	}
	return 0
}

// SyncHolding replaces the tracked balance with an observed one.
func (m *Memory) SyncHolding(_ context.Context, token string, tokens uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.positionLocked(token)
	if p.Tokens != tokens {
		m.logger.WithFields(logrus.Fields{
			"token":    token,
			"tracked":  p.Tokens,
			"observed": tokens,
		}).Warn("holding re-synced")
	}
	p.Tokens = tokens
}

// Position returns a copy of the position in token.
func (m *Memory) Position(token string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[token]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

func (m *Memory) positionLocked(token string) *Position {
	p, ok := m.positions[token]
	if !ok {
		p = &Position{Token: token}
		m.positions[token] = p
	}
	return p
}

func (m *Memory) openLocked() int {
	n := 0
	for _, p := range m.positions {
		if p.Tokens > 0 {
			n++
		}
	}
	return n
}

func (m *Memory) netSpendLocked() uint64 {
	var total uint64
	for _, p := range m.positions {
		if p.Tokens > 0 && p.SpentLamports > p.RecvLamports {
			total += p.SpentLamports - p.RecvLamports
		}
	}
	return total
}
