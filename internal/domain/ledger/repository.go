package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Recorder appends entries to the ledger. Only the transfer engine holds a
// Recorder; business logic receives a Reader, so there is no code path that
// can write a ledger row outside of a transfer engine atomic unit.
type Recorder interface {
	// Create appends an entry and assigns its id.
	// Must be called through WithTx inside the engine's transaction.
	Create(ctx context.Context, entry *Entry) error
	WithTx(tx pgx.Tx) Recorder
}

// Reader exposes the ledger's query side: paginated history (newest first),
// counts, per-account sums, and reason-grouped aggregates for statistics.
type Reader interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error)

	// SumByAccountID returns the signed sum of all entries for an account.
	// Used by audits: the sum must always equal the stored balance.
	SumByAccountID(ctx context.Context, accountID uuid.UUID) (int64, error)

	AggregateByReason(ctx context.Context, filter AggregateFilter) ([]ReasonAggregate, error)
}

// Repository is implemented by the data layer and satisfies both sides
type Repository interface {
	Recorder
	Reader
}

// AggregateFilter restricts statistics to an account and/or time window.
// Zero values mean unrestricted.
type AggregateFilter struct {
	AccountID *uuid.UUID
	From      time.Time
	To        time.Time
}

// ReasonAggregate is one statistics row: entry count and signed sum per reason
type ReasonAggregate struct {
	Reason Reason `json:"reason"`
	Count  int64  `json:"count"`
	Total  int64  `json:"total"`
}
