package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/storage"
)

// tradeKey is the composite key for trade deduplication.
type tradeKey struct {
	Signature        string
	InstructionIndex int
}

func keyOf(ev *domain.TradeEvent) tradeKey {
	return tradeKey{Signature: ev.Signature, InstructionIndex: ev.InstructionIndex}
}

// TradeEventStore is an in-memory implementation of storage.TradeEventStore.
type TradeEventStore struct {
	mu   sync.RWMutex
	data []*domain.TradeEvent
	keys map[tradeKey]bool
}

// NewTradeEventStore creates a new in-memory trade event store.
func NewTradeEventStore() *TradeEventStore {
	return &TradeEventStore{
		data: make([]*domain.TradeEvent, 0),
		keys: make(map[tradeKey]bool),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if (signature, instruction_index) exists.
func (s *TradeEventStore) Insert(_ context.Context, ev *domain.TradeEvent) error {
	if ev == nil || ev.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[keyOf(ev)] {
		return storage.ErrDuplicateKey
	}
	cp := *ev
	s.data = append(s.data, &cp)
	s.keys[keyOf(ev)] = true
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeEventStore) InsertBulk(_ context.Context, evs []*domain.TradeEvent) error {
	if len(evs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[tradeKey]bool, len(evs))
	for _, ev := range evs {
		if ev == nil || ev.Signature == "" {
			return storage.ErrInvalidInput
		}
		k := keyOf(ev)
		if s.keys[k] || batch[k] {
			return storage.ErrDuplicateKey
		}
		batch[k] = true
	}

	for _, ev := range evs {
		cp := *ev
		s.data = append(s.data, &cp)
		s.keys[keyOf(ev)] = true
	}
	return nil
}

// GetBySignature retrieves the trades of a transaction, ordered by instruction_index ASC.
func (s *TradeEventStore) GetBySignature(_ context.Context, signature string) ([]*domain.TradeEvent, error) {
	result := s.filter(func(ev *domain.TradeEvent) bool { return ev.Signature == signature })
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstructionIndex < result[j].InstructionIndex
	})
	return result, nil
}

// GetByToken retrieves all trades of a token, ordered by timestamp ASC.
func (s *TradeEventStore) GetByToken(_ context.Context, token string) ([]*domain.TradeEvent, error) {
	result := s.filter(func(ev *domain.TradeEvent) bool { return ev.TokenAddress == token })
	sortTrades(result)
	return result, nil
}

// GetByTimeRange retrieves trades of a token within [start, end] (inclusive).
func (s *TradeEventStore) GetByTimeRange(_ context.Context, token string, start, end time.Time) ([]*domain.TradeEvent, error) {
	result := s.filter(func(ev *domain.TradeEvent) bool {
		return ev.TokenAddress == token && !ev.Timestamp.Before(start) && !ev.Timestamp.After(end)
	})
	sortTrades(result)
	return result, nil
}

func (s *TradeEventStore) filter(keep func(*domain.TradeEvent) bool) []*domain.TradeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeEvent
	for _, ev := range s.data {
		if keep(ev) {
			cp := *ev
			result = append(result, &cp)
		}
	}
	return result
}

// sortTrades sorts by (timestamp, signature, instruction_index).
func sortTrades(evs []*domain.TradeEvent) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].Timestamp.Equal(evs[j].Timestamp) {
			return evs[i].Timestamp.Before(evs[j].Timestamp)
		}
		if evs[i].Signature != evs[j].Signature {
			return evs[i].Signature < evs[j].Signature
		}
		return evs[i].InstructionIndex < evs[j].InstructionIndex
	})
}

// Verify interface compliance at compile time.
var _ storage.TradeEventStore = (*TradeEventStore)(nil)
