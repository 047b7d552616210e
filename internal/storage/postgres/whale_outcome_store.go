package postgres

import (
	"context"
	"fmt"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/storage"
)

// WhaleOutcomeStore is a Postgres implementation of storage.WhaleOutcomeStore.
type WhaleOutcomeStore struct {
	pool *Pool
}

// NewWhaleOutcomeStore creates a new Postgres whale outcome store.
func NewWhaleOutcomeStore(pool *Pool) *WhaleOutcomeStore {
	return &WhaleOutcomeStore{pool: pool}
}

// Insert adds a new outcome. Returns ErrDuplicateKey if outcome_id exists.
func (s *WhaleOutcomeStore) Insert(ctx context.Context, o *domain.WhaleOutcome) error {
	if o == nil || o.OutcomeID == "" || o.Whale == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO whale_outcomes (
			outcome_id, whale, market_id,
			entry_price, exit_price, size, notional, trade_return,
			closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.OutcomeID, o.Whale, o.MarketID,
		o.EntryPrice, o.ExitPrice, o.Size, o.Notional, o.Return,
		o.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert whale outcome: %w", err)
	}
	return nil
}

// RecentByWhale retrieves outcomes for a whale with closed_at >= since,
// ordered by closed_at ASC, outcome_id ASC.
func (s *WhaleOutcomeStore) RecentByWhale(ctx context.Context, whale string, since int64) ([]*domain.WhaleOutcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT outcome_id, whale, market_id,
		       entry_price, exit_price, size, notional, trade_return,
		       closed_at
		FROM whale_outcomes
		WHERE whale = $1 AND closed_at >= $2
		ORDER BY closed_at ASC, outcome_id ASC`,
		whale, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query whale outcomes: %w", err)
	}
	defer rows.Close()

	var out []*domain.WhaleOutcome
	for rows.Next() {
		var o domain.WhaleOutcome
		if err := rows.Scan(
			&o.OutcomeID, &o.Whale, &o.MarketID,
			&o.EntryPrice, &o.ExitPrice, &o.Size, &o.Notional, &o.Return,
			&o.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("scan whale outcome: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// Whales returns the distinct whale addresses present in the store.
func (s *WhaleOutcomeStore) Whales(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT whale FROM whale_outcomes ORDER BY whale ASC`)
	if err != nil {
		return nil, fmt.Errorf("query whales: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan whale: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// PruneBefore deletes outcomes with closed_at < cutoff.
func (s *WhaleOutcomeStore) PruneBefore(ctx context.Context, cutoff int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM whale_outcomes WHERE closed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune whale outcomes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
