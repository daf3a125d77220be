package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL.
// Writes are append-only; no update or delete statements exist here.
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the recorder with a transaction so entries commit atomically
// with the balance mutation they document
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Recorder {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends a ledger entry and assigns its id
func (r *LedgerRepository) Create(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (account_id, amount, reason, related_entity_type, related_entity_id, meta, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		entry.AccountID,
		entry.Amount,
		entry.Reason,
		entry.RelatedEntityType,
		entry.RelatedEntityID,
		entry.Meta,
		entry.CorrelationID,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		r.logger.Error("Failed to create ledger entry",
			"account_id", entry.AccountID.String(),
			"reason", string(entry.Reason),
			"error", err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

// GetByAccountID retrieves paginated ledger entries for an account, newest
// first. Entries written in one atomic unit share a created_at and adjacent
// ids, so they appear contiguously.
func (r *LedgerRepository) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT id, account_id, amount, reason, related_entity_type, related_entity_id, meta, correlation_id, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to get ledger entries", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		var entry ledger.Entry
		err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.Amount,
			&entry.Reason,
			&entry.RelatedEntityType,
			&entry.RelatedEntityID,
			&entry.Meta,
			&entry.CorrelationID,
			&entry.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan ledger entry", "error", err)
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger entries", "error", err)
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}

	return entries, nil
}

// CountByAccountID counts the total number of ledger entries for an account
func (r *LedgerRepository) CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, accountID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger entries", "account_id", accountID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	return count, nil
}

// SumByAccountID returns the signed sum of all entries for an account.
// The result must always equal the stored balance; audits rely on this.
func (r *LedgerRepository) SumByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`

	var sum int64
	if err := r.querier.QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		r.logger.Error("Failed to sum ledger entries", "account_id", accountID.String(), "error", err)
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	return sum, nil
}

// AggregateByReason groups entry counts and signed sums by reason, optionally
// restricted to one account and/or a time window
func (r *LedgerRepository) AggregateByReason(ctx context.Context, filter ledger.AggregateFilter) ([]ledger.ReasonAggregate, error) {
	query := `
		SELECT reason, COUNT(*), COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE ($1::uuid IS NULL OR account_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		GROUP BY reason
		ORDER BY reason
	`

	var from, to interface{}
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := r.querier.Query(ctx, query, filter.AccountID, from, to)
	if err != nil {
		r.logger.Error("Failed to aggregate ledger entries", "error", err)
		return nil, fmt.Errorf("failed to aggregate ledger entries: %w", err)
	}
	defer rows.Close()

	var aggregates []ledger.ReasonAggregate
	for rows.Next() {
		var agg ledger.ReasonAggregate
		if err := rows.Scan(&agg.Reason, &agg.Count, &agg.Total); err != nil {
			r.logger.Error("Failed to scan ledger aggregate", "error", err)
			return nil, fmt.Errorf("failed to scan ledger aggregate: %w", err)
		}
		aggregates = append(aggregates, agg)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger aggregates", "error", err)
		return nil, fmt.Errorf("error iterating over ledger aggregates: %w", err)
	}

	return aggregates, nil
}
