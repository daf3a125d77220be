package service

import (
	"context"

	"github.com/communitymarket/ucm-ledger/internal/domain/account"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/domain/request"
	"github.com/communitymarket/ucm-ledger/internal/lifecycle"
	"github.com/communitymarket/ucm-ledger/internal/pricing"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/google/uuid"
)

// AccountService defines the interface for account operations
type AccountService interface {
	// Open creates the value account for a platform user and credits the
	// opening bonuses. Returns ErrDuplicateAccount if the user already has one.
	Open(ctx context.Context, userID uuid.UUID, referrerID *uuid.UUID, correlationID string) (*account.Account, error)

	// Get retrieves an account by its ID
	// Returns ErrAccountNotFound if the account doesn't exist
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)

	// History returns a page of the account's ledger entries plus the total
	// entry count for pagination
	History(ctx context.Context, id uuid.UUID, limit, offset int) ([]*ledger.Entry, int64, error)

	// Audit verifies that the stored balance equals the signed ledger sum
	Audit(ctx context.Context, id uuid.UUID) (*AuditResult, error)

	// Statistics returns reason-grouped entry counts and signed totals
	Statistics(ctx context.Context, filter ledger.AggregateFilter) ([]ledger.ReasonAggregate, error)
}

// BillingService defines the interface for fee quotes and paid-action charges
type BillingService interface {
	// Quote resolves the cost of an action without charging anything
	Quote(action pricing.Action, promoted bool) (pricing.Quote, error)

	// Schedule returns the full fee table currently in force
	Schedule() pricing.Schedule

	// ChargeAction resolves the action's fee and debits it atomically with
	// its ledger entry
	ChargeAction(ctx context.Context, params ChargeParams) (*ChargeResult, error)
}

// TransferService is the slice of the transfer engine the API exposes for
// peer-to-peer transfers
type TransferService interface {
	Transfer(ctx context.Context, params transfer.TransferParams) (*transfer.TransferResult, error)

	// Grant credits an account from outside circulation and returns the
	// new balance
	Grant(ctx context.Context, params transfer.GrantParams) (int64, error)
}

// LifecycleService defines the interface for the service request lifecycle
type LifecycleService interface {
	Create(ctx context.Context, params lifecycle.CreateParams) (*lifecycle.CreateResult, error)
	Get(ctx context.Context, id, viewerID uuid.UUID) (*request.Request, error)
	Transition(ctx context.Context, params lifecycle.TransitionParams) (*request.Request, error)
	Pay(ctx context.Context, params lifecycle.PayParams) (*lifecycle.PayResult, error)
	Delete(ctx context.Context, id, callerID uuid.UUID) error
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*request.Request, error)
	ListByExecutor(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*request.Request, error)
	ListPublic(ctx context.Context, limit, offset int) ([]*request.Request, error)
}
