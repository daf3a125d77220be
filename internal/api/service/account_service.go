// Package service implements the API-facing application services for
// accounts and paid-action billing. The request lifecycle has its own
// package; everything here is thin orchestration over the transfer engine
// and the repositories.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/config"
	"github.com/communitymarket/ucm-ledger/internal/domain/account"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/google/uuid"
)

// ErrInvalidUserID rejects account opening without a user id
var ErrInvalidUserID = errors.New("user id is required")

// Granter is the slice of the transfer engine used to issue platform credits
type Granter interface {
	Grant(ctx context.Context, params transfer.GrantParams) (int64, error)
}

// accountService implements AccountService over the repositories and engine
type accountService struct {
	accountRepo   account.Repository
	ledgerReader  ledger.Reader
	granter       Granter
	signupBonus   int64
	referralBonus int64
	logger        *slog.Logger
}

// NewAccountService creates an account service. Bonus amounts come from the
// fee schedule configuration.
func NewAccountService(
	accountRepo account.Repository,
	ledgerReader ledger.Reader,
	granter Granter,
	cfg *config.PricingConfig,
	logger *slog.Logger,
) AccountService {
	return &accountService{
		accountRepo:   accountRepo,
		ledgerReader:  ledgerReader,
		granter:       granter,
		signupBonus:   cfg.SignupBonus,
		referralBonus: cfg.ReferralBonus,
		logger:        logger,
	}
}

// Open creates the value account for a platform user, credits the signup
// bonus through the engine so it appears in the ledger, and pays the
// referrer's bonus when a referrer is named. A failed referral credit is
// logged and swallowed; it never fails the opening.
func (s *accountService) Open(ctx context.Context, userID uuid.UUID, referrerID *uuid.UUID, correlationID string) (*account.Account, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	acc := account.NewAccount(userID)
	if err := s.accountRepo.Create(ctx, acc); err != nil {
		return nil, err
	}

	if s.signupBonus > 0 {
		balance, err := s.granter.Grant(ctx, transfer.GrantParams{
			AccountID:     userID,
			Amount:        s.signupBonus,
			Reason:        ledger.ReasonSignupBonus,
			CorrelationID: correlationID,
		})
		if err != nil {
			return nil, err
		}
		acc.Balance = balance
	}

	if referrerID != nil && *referrerID != userID && s.referralBonus > 0 {
		_, err := s.granter.Grant(ctx, transfer.GrantParams{
			AccountID:     *referrerID,
			Amount:        s.referralBonus,
			Reason:        ledger.ReasonReferralBonus,
			Meta:          map[string]string{"referred_user": userID.String()},
			CorrelationID: correlationID,
		})
		if err != nil {
			s.logger.Warn("Referral bonus not credited",
				"referrer_id", referrerID.String(),
				"referred_user", userID.String(),
				"error", err.Error(),
			)
		}
	}

	s.logger.Info("Account opened", "account_id", userID.String(), "signup_bonus", s.signupBonus)
	return acc, nil
}

// Get returns an account by id
func (s *accountService) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

// History returns a page of the account's ledger, newest first, with the
// total entry count for pagination.
func (s *accountService) History(ctx context.Context, id uuid.UUID, limit, offset int) ([]*ledger.Entry, int64, error) {
	if _, err := s.accountRepo.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	entries, err := s.ledgerReader.GetByAccountID(ctx, id, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.ledgerReader.CountByAccountID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// AuditResult compares a stored balance with the signed sum of its ledger
type AuditResult struct {
	AccountID  uuid.UUID `json:"account_id"`
	Balance    int64     `json:"balance"`
	LedgerSum  int64     `json:"ledger_sum"`
	Consistent bool      `json:"consistent"`
}

// Audit verifies the ledger invariant for one account: the stored balance
// must equal the signed sum of all its entries.
func (s *accountService) Audit(ctx context.Context, id uuid.UUID) (*AuditResult, error) {
	acc, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledgerReader.SumByAccountID(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &AuditResult{
		AccountID:  id,
		Balance:    acc.Balance,
		LedgerSum:  sum,
		Consistent: acc.Balance == sum,
	}
	if !result.Consistent {
		s.logger.Error("Ledger inconsistency detected",
			"account_id", id.String(),
			"balance", acc.Balance,
			"ledger_sum", sum,
		)
	}
	return result, nil
}

// Statistics returns reason-grouped entry counts and signed totals,
// optionally filtered by account and time window.
func (s *accountService) Statistics(ctx context.Context, filter ledger.AggregateFilter) ([]ledger.ReasonAggregate, error) {
	return s.ledgerReader.AggregateByReason(ctx, filter)
}
