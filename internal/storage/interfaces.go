package storage

import (
	"context"

	"whale-mirror/internal/domain"
)

// WhaleOutcomeStore provides access to realized whale round trips.
// The scorer reads recent outcomes per whale; records older than the
// configured lookback are pruned, so the store never grows into an archive.
type WhaleOutcomeStore interface {
	// Insert adds a new outcome. Returns ErrDuplicateKey if outcome_id exists.
	Insert(ctx context.Context, o *domain.WhaleOutcome) error

	// RecentByWhale retrieves outcomes for a whale with ClosedAt >= since,
	// ordered by ClosedAt ASC, OutcomeID ASC.
	RecentByWhale(ctx context.Context, whale string, since int64) ([]*domain.WhaleOutcome, error)

	// Whales returns the distinct whale addresses present in the store.
	Whales(ctx context.Context) ([]string, error)

	// PruneBefore deletes outcomes with ClosedAt < cutoff. Returns the
	// number of records removed.
	PruneBefore(ctx context.Context, cutoff int64) (int, error)
}

// IntentStore records emitted order intents for the execution collaborator.
// Keyed by intent id, which is deterministic per source trade, so re-emission
// after a restart maps onto the same record.
type IntentStore interface {
	// Insert adds a new intent. Returns ErrDuplicateKey if intent_id exists.
	Insert(ctx context.Context, i *domain.OrderIntent) error

	// GetByID retrieves an intent by its id. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, intentID string) (*domain.OrderIntent, error)

	// GetBySourceTradeID retrieves the intent emitted for a venue trade.
	// Returns ErrNotFound if the trade never produced an intent.
	GetBySourceTradeID(ctx context.Context, sourceTradeID string) (*domain.OrderIntent, error)

	// ListSince retrieves intents with CreatedAt >= since, ordered by
	// CreatedAt ASC, IntentID ASC.
	ListSince(ctx context.Context, since int64) ([]*domain.OrderIntent, error)
}
