package memory

import (
	"context"
	"sort"
	"sync"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/storage"
)

// WhaleOutcomeStore is an in-memory implementation of storage.WhaleOutcomeStore.
type WhaleOutcomeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WhaleOutcome // keyed by outcome_id
}

// NewWhaleOutcomeStore creates a new in-memory whale outcome store.
func NewWhaleOutcomeStore() *WhaleOutcomeStore {
	return &WhaleOutcomeStore{
		data: make(map[string]*domain.WhaleOutcome),
	}
}

// Insert adds a new outcome. Returns ErrDuplicateKey if outcome_id exists.
func (s *WhaleOutcomeStore) Insert(_ context.Context, o *domain.WhaleOutcome) error {
	if o == nil || o.OutcomeID == "" || o.Whale == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OutcomeID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *o
	s.data[o.OutcomeID] = &cp
	return nil
}

// RecentByWhale retrieves outcomes for a whale with ClosedAt >= since,
// ordered by ClosedAt ASC, OutcomeID ASC.
func (s *WhaleOutcomeStore) RecentByWhale(_ context.Context, whale string, since int64) ([]*domain.WhaleOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.WhaleOutcome
	for _, o := range s.data {
		if o.Whale == whale && o.ClosedAt >= since {
			cp := *o
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ClosedAt != out[j].ClosedAt {
			return out[i].ClosedAt < out[j].ClosedAt
		}
		return out[i].OutcomeID < out[j].OutcomeID
	})
	return out, nil
}

// Whales returns the distinct whale addresses present in the store.
func (s *WhaleOutcomeStore) Whales(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for _, o := range s.data {
		set[o.Whale] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}

// PruneBefore deletes outcomes with ClosedAt < cutoff.
func (s *WhaleOutcomeStore) PruneBefore(_ context.Context, cutoff int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, o := range s.data {
		if o.ClosedAt < cutoff {
			delete(s.data, id)
			removed++
		}
	}
	return removed, nil
}
