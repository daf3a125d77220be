package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/domain/idempotency"
	"github.com/communitymarket/ucm-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyRepository implements the idempotency.Repository interface for
// PostgreSQL. The unique constraint on the key column is what makes a
// concurrent replay lose.
type IdempotencyRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewIdempotencyRepository creates a new PostgreSQL idempotency repository
func NewIdempotencyRepository(logger *slog.Logger, db *persistence.PostgresDB) idempotency.Repository {
	return &IdempotencyRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so the key reservation
// commits or rolls back together with the operation it guards
func (r *IdempotencyRepository) WithTx(tx pgx.Tx) idempotency.Repository {
	return &IdempotencyRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Get returns the record for a key, or nil when the key is unused
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	query := `
		SELECT key, request_hash, response_body, created_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var record idempotency.Record
	err := r.querier.QueryRow(ctx, query, key).Scan(
		&record.Key,
		&record.RequestHash,
		&record.ResponseBody,
		&record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get idempotency record", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	return &record, nil
}

// Reserve claims a key for the current operation.
// Returns ErrConflict when another transaction already holds it.
func (r *IdempotencyRepository) Reserve(ctx context.Context, key, requestHash string) error {
	query := `
		INSERT INTO idempotency_keys (key, request_hash)
		VALUES ($1, $2)
	`

	_, err := r.querier.Exec(ctx, query, key, requestHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return idempotency.ErrConflict
		}
		r.logger.Error("Failed to reserve idempotency key", "key", key, "error", err)
		return fmt.Errorf("failed to reserve idempotency key: %w", err)
	}

	return nil
}

// StoreResponse records the operation outcome for replays
func (r *IdempotencyRepository) StoreResponse(ctx context.Context, key string, responseBody []byte) error {
	query := `
		UPDATE idempotency_keys
		SET response_body = $1
		WHERE key = $2
	`

	result, err := r.querier.Exec(ctx, query, responseBody, key)
	if err != nil {
		r.logger.Error("Failed to store idempotency response", "key", key, "error", err)
		return fmt.Errorf("failed to store idempotency response: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("idempotency key not found: %s", key)
	}

	return nil
}
