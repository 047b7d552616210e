package memory

import (
	"context"
	"sort"
	"sync"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/storage"
)

// IntentStore is an in-memory implementation of storage.IntentStore.
type IntentStore struct {
	mu       sync.RWMutex
	data     map[string]*domain.OrderIntent // keyed by intent_id
	bySource map[string]string              // source_trade_id -> intent_id
}

// NewIntentStore creates a new in-memory intent store.
func NewIntentStore() *IntentStore {
	return &IntentStore{
		data:     make(map[string]*domain.OrderIntent),
		bySource: make(map[string]string),
	}
}

// Insert adds a new intent. Returns ErrDuplicateKey if intent_id or
// source_trade_id exists.
func (s *IntentStore) Insert(_ context.Context, i *domain.OrderIntent) error {
	if i == nil || i.IntentID == "" || i.SourceTradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[i.IntentID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.bySource[i.SourceTradeID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *i
	s.data[i.IntentID] = &cp
	s.bySource[i.SourceTradeID] = i.IntentID
	return nil
}

// GetByID retrieves an intent by its id. Returns ErrNotFound if absent.
func (s *IntentStore) GetByID(_ context.Context, intentID string) (*domain.OrderIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, exists := s.data[intentID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

// GetBySourceTradeID retrieves the intent emitted for a venue trade.
func (s *IntentStore) GetBySourceTradeID(_ context.Context, sourceTradeID string) (*domain.OrderIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.bySource[sourceTradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *s.data[id]
	return &cp, nil
}

// ListSince retrieves intents with CreatedAt >= since, ordered by
// CreatedAt ASC, IntentID ASC.
func (s *IntentStore) ListSince(_ context.Context, since int64) ([]*domain.OrderIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.OrderIntent
	for _, i := range s.data {
		if i.CreatedAt >= since {
			cp := *i
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].IntentID < out[j].IntentID
	})
	return out, nil
}
