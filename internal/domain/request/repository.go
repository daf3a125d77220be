package request

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines request persistence operations
type Repository interface {
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)

	// Update persists the request using optimistic locking on Version.
	// Returns ErrConcurrentModification when the row changed since the read,
	// so a transition racing another transition gets exactly one winner.
	Update(ctx context.Context, req *Request) error

	// Delete removes a request. Callers must check Deletable first.
	Delete(ctx context.Context, id uuid.UUID) error

	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*Request, error)
	ListByExecutor(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*Request, error)

	// ListPublic returns open, unassigned requests, promoted-first then newest
	ListPublic(ctx context.Context, limit, offset int) ([]*Request, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrConcurrentModification indicates the request changed between read and write
type ErrConcurrentModification struct {
	RequestID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for request: " + e.RequestID.String()
}

// Is matches any ErrConcurrentModification when the target carries a nil id
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	if t.RequestID == uuid.Nil {
		return true
	}
	return e.RequestID == t.RequestID
}
