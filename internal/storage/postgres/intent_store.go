package postgres

import (
	"context"
	"fmt"

	"whale-mirror/internal/domain"
	"whale-mirror/internal/storage"
)

// IntentStore is a Postgres implementation of storage.IntentStore.
type IntentStore struct {
	pool *Pool
}

// NewIntentStore creates a new Postgres intent store.
func NewIntentStore(pool *Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

const intentColumns = `
	intent_id, source_trade_id, whale, market_id, side, size, price,
	whale_quality_score, sizing_rationale, risk_budget_used, created_at`

// Insert adds a new intent. Returns ErrDuplicateKey if intent_id or
// source_trade_id exists.
func (s *IntentStore) Insert(ctx context.Context, i *domain.OrderIntent) error {
	if i == nil || i.IntentID == "" || i.SourceTradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_intents (`+intentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		i.IntentID, i.SourceTradeID, i.Whale, i.MarketID, string(i.Side), i.Size, i.Price,
		i.WhaleQualityScore, i.SizingRationale, i.RiskBudgetUsed, i.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order intent: %w", err)
	}
	return nil
}

// GetByID retrieves an intent by its id. Returns ErrNotFound if absent.
func (s *IntentStore) GetByID(ctx context.Context, intentID string) (*domain.OrderIntent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM order_intents WHERE intent_id = $1`, intentID)
	return scanIntent(row)
}

// GetBySourceTradeID retrieves the intent emitted for a venue trade.
func (s *IntentStore) GetBySourceTradeID(ctx context.Context, sourceTradeID string) (*domain.OrderIntent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+intentColumns+`
		FROM order_intents WHERE source_trade_id = $1`, sourceTradeID)
	return scanIntent(row)
}

// ListSince retrieves intents with created_at >= since, ordered by
// created_at ASC, intent_id ASC.
func (s *IntentStore) ListSince(ctx context.Context, since int64) ([]*domain.OrderIntent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+intentColumns+`
		FROM order_intents
		WHERE created_at >= $1
		ORDER BY created_at ASC, intent_id ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("query order intents: %w", err)
	}
	defer rows.Close()

	var out []*domain.OrderIntent
	for rows.Next() {
		i, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*domain.OrderIntent, error) {
	var i domain.OrderIntent
	var side string
	err := row.Scan(
		&i.IntentID, &i.SourceTradeID, &i.Whale, &i.MarketID, &side, &i.Size, &i.Price,
		&i.WhaleQualityScore, &i.SizingRationale, &i.RiskBudgetUsed, &i.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan order intent: %w", err)
	}
	i.Side = domain.Side(side)
	return &i, nil
}
