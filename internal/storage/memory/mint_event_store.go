// Package memory provides in-memory stores for tests and single-process runs.
package memory

import (
	"context"
	"sync"

	"pumpfun-engine/internal/domain"
	"pumpfun-engine/internal/storage"
)

// MintEventStore is an in-memory implementation of storage.MintEventStore.
type MintEventStore struct {
	mu          sync.RWMutex
	byToken     map[string]*domain.MintEvent
	bySignature map[string]string
}

// NewMintEventStore creates a new in-memory mint event store.
func NewMintEventStore() *MintEventStore {
	return &MintEventStore{
		byToken:     make(map[string]*domain.MintEvent),
		bySignature: make(map[string]string),
	}
}

// Insert adds a new mint. Returns ErrDuplicateKey if token_address exists.
func (s *MintEventStore) Insert(_ context.Context, ev *domain.MintEvent) error {
	if ev == nil || ev.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[ev.TokenAddress]; exists {
		return storage.ErrDuplicateKey
	}

	// The initial buy lives in the trade store.
	cp := *ev
	cp.InitialBuy = nil
	s.byToken[ev.TokenAddress] = &cp
	s.bySignature[ev.Signature] = ev.TokenAddress
	return nil
}

// GetByToken retrieves the mint of a token.
func (s *MintEventStore) GetByToken(_ context.Context, token string) (*domain.MintEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.byToken[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

// GetBySignature retrieves the mint created by a transaction.
func (s *MintEventStore) GetBySignature(ctx context.Context, signature string) (*domain.MintEvent, error) {
	s.mu.RLock()
	token, ok := s.bySignature[signature]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetByToken(ctx, token)
}

// Verify interface compliance at compile time.
var _ storage.MintEventStore = (*MintEventStore)(nil)
