// Package idempotency protects money-moving operations against client
// retries after a timeout. A caller-supplied key is reserved inside the same
// database transaction as the operation it guards, so a replay either finds
// the stored outcome or conflicts; it can never re-apply the movement.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Common errors
var (
	// ErrConflict indicates a concurrent in-flight operation holds the key
	ErrConflict = errors.New("idempotency key is held by an operation in progress")

	// ErrMismatch indicates key reuse with a different payload
	ErrMismatch = errors.New("idempotency key reused with mismatched payload")
)

// Record is one reserved key with the outcome of the operation it guarded
type Record struct {
	Key          string    `json:"key"`
	RequestHash  string    `json:"request_hash"`
	ResponseBody []byte    `json:"response_body,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository persists idempotency records. Reserve and StoreResponse must be
// called through WithTx inside the guarded operation's transaction.
type Repository interface {
	// Get returns the record for a key, or nil when the key is unused
	Get(ctx context.Context, key string) (*Record, error)

	// Reserve claims a key for the current operation.
	// Returns ErrConflict when the key is already held.
	Reserve(ctx context.Context, key, requestHash string) error

	// StoreResponse records the operation outcome for replays
	StoreResponse(ctx context.Context, key string, responseBody []byte) error

	WithTx(tx pgx.Tx) Repository
}
