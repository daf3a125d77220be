// Package account defines the spendable UCM balance held for each marketplace
// member. Balances are mutated exclusively by the transfer engine; nothing else
// in the codebase performs a read-modify-write on them.
package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	// ErrInvalidAmount rejects operation amounts that are zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// ErrInsufficientFunds indicates a debit that would drive a balance negative.
// It names the offending account so batch callers can report which leg failed.
type ErrInsufficientFunds struct {
	AccountID uuid.UUID
}

func (e ErrInsufficientFunds) Error() string {
	return "insufficient funds on account: " + e.AccountID.String()
}

// Is matches any ErrInsufficientFunds when the target carries a nil account id
func (e ErrInsufficientFunds) Is(target error) bool {
	t, ok := target.(ErrInsufficientFunds)
	if !ok {
		return false
	}
	if t.AccountID == uuid.Nil {
		return true
	}
	return e.AccountID == t.AccountID
}

// Account holds one member's UCM balance.
// The ID is the platform user id; accounts are created alongside users and
// never deleted while ledger entries reference them.
type Account struct {
	ID        uuid.UUID `json:"id"` // platform user id
	Balance   int64     `json:"balance"`
	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates an account with a zero balance. Opening bonuses are
// credited through the transfer engine so they appear in the ledger.
func NewAccount(userID uuid.UUID) *Account {
	now := time.Now()
	return &Account{
		ID:        userID,
		Balance:   0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyDelta adds a signed delta to the balance. A delta that would drive the
// balance negative is rejected with ErrInsufficientFunds and leaves the
// account untouched.
func (a *Account) ApplyDelta(delta int64) error {
	if delta == 0 {
		return ErrInvalidAmount
	}
	if a.Balance+delta < 0 {
		return ErrInsufficientFunds{AccountID: a.ID}
	}

	a.Balance += delta
	a.UpdatedAt = time.Now()
	a.Version++
	return nil
}

// CanDebit checks if the account has sufficient funds for a debit of amount
func (a *Account) CanDebit(amount int64) bool {
	return a.Balance >= amount
}
