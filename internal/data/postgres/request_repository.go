package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/domain/request"
	"github.com/communitymarket/ucm-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, client_id, executor_id, title, description, city, budget_from, budget_to,
		agreed_price, status, is_public, promoted, promoted_until, is_paid, paid_at,
		views_count, version, created_at, updated_at`

// RequestRepository implements the request.Repository interface for PostgreSQL
type RequestRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewRequestRepository creates a new PostgreSQL request repository
func NewRequestRepository(logger *slog.Logger, db *persistence.PostgresDB) request.Repository {
	return &RequestRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so status writes commit
// atomically with the money movement that accompanies them
func (r *RequestRepository) WithTx(tx pgx.Tx) request.Repository {
	return &RequestRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new request
func (r *RequestRepository) Create(ctx context.Context, req *request.Request) error {
	query := `
		INSERT INTO requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.querier.Exec(ctx, query,
		req.ID,
		req.ClientID,
		req.ExecutorID,
		req.Title,
		req.Description,
		req.City,
		req.BudgetFrom,
		req.BudgetTo,
		req.AgreedPrice,
		req.Status,
		req.IsPublic,
		req.Promoted,
		req.PromotedUntil,
		req.IsPaid,
		req.PaidAt,
		req.ViewsCount,
		req.Version,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", "id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

func scanRequest(row pgx.Row) (*request.Request, error) {
	var req request.Request
	err := row.Scan(
		&req.ID,
		&req.ClientID,
		&req.ExecutorID,
		&req.Title,
		&req.Description,
		&req.City,
		&req.BudgetFrom,
		&req.BudgetTo,
		&req.AgreedPrice,
		&req.Status,
		&req.IsPublic,
		&req.Promoted,
		&req.PromotedUntil,
		&req.IsPaid,
		&req.PaidAt,
		&req.ViewsCount,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByID retrieves a request by its ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*request.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, request.ErrRequestNotFound{RequestID: id}
		}
		r.logger.Error("Failed to get request", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return req, nil
}

// Update persists a request using optimistic locking on the version column.
// Returns ErrConcurrentModification when the row changed since the caller's
// read, so exactly one of two racing transitions wins.
func (r *RequestRepository) Update(ctx context.Context, req *request.Request) error {
	query := `
		UPDATE requests
		SET executor_id = $1, agreed_price = $2, status = $3, is_public = $4,
			promoted = $5, promoted_until = $6, is_paid = $7, paid_at = $8,
			views_count = $9, version = $10, updated_at = $11
		WHERE id = $12 AND version = $13
	`

	result, err := r.querier.Exec(ctx, query,
		req.ExecutorID,
		req.AgreedPrice,
		req.Status,
		req.IsPublic,
		req.Promoted,
		req.PromotedUntil,
		req.IsPaid,
		req.PaidAt,
		req.ViewsCount,
		req.Version,
		req.UpdatedAt,
		req.ID,
		req.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update request", "id", req.ID.String(), "error", err)
		return fmt.Errorf("failed to update request: %w", err)
	}

	if result.RowsAffected() == 0 {
		return request.ErrConcurrentModification{RequestID: req.ID}
	}

	return nil
}

// Delete removes a request. Lifecycle rules (pre-acceptance only) are
// enforced by the caller.
func (r *RequestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete request", "id", id.String(), "error", err)
		return fmt.Errorf("failed to delete request: %w", err)
	}

	if result.RowsAffected() == 0 {
		return request.ErrRequestNotFound{RequestID: id}
	}

	return nil
}

func (r *RequestRepository) list(ctx context.Context, query string, args ...interface{}) ([]*request.Request, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", "error", err)
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*request.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			r.logger.Error("Failed to scan request", "error", err)
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over requests", "error", err)
		return nil, fmt.Errorf("error iterating over requests: %w", err)
	}

	return requests, nil
}

// ListByClient returns the client's requests, newest first
func (r *RequestRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*request.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests WHERE client_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, clientID, limit, offset)
}

// ListByExecutor returns the executor's assigned requests, newest first
func (r *RequestRepository) ListByExecutor(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*request.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests WHERE executor_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, executorID, limit, offset)
}

// ListPublic returns open, unassigned requests. Requests inside an active
// promotion window sort first; the window comparison happens at read time so
// an expired promotion loses its boost without any background job.
func (r *RequestRepository) ListPublic(ctx context.Context, limit, offset int) ([]*request.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE is_public AND executor_id IS NULL AND status IN ('new', 'viewed')
		ORDER BY (promoted AND promoted_until > NOW()) DESC, created_at DESC
		LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}
