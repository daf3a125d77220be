package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/pricing"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/google/uuid"
)

// ErrRequestFeeViaCreate redirects service_request charges to the request
// creation operation, where the fee is atomic with the insert.
var ErrRequestFeeViaCreate = errors.New("service_request fees are charged on request creation")

// FeeCollector is the slice of the transfer engine used to charge fees
type FeeCollector interface {
	CollectFee(ctx context.Context, params transfer.FeeParams) (int64, error)
}

// billingService implements BillingService over the pricing resolver and the
// fee-collecting slice of the engine
type billingService struct {
	pricing   *pricing.Resolver
	collector FeeCollector
	logger    *slog.Logger
}

// NewBillingService creates a billing service
func NewBillingService(pricingResolver *pricing.Resolver, collector FeeCollector, logger *slog.Logger) BillingService {
	return &billingService{
		pricing:   pricingResolver,
		collector: collector,
		logger:    logger,
	}
}

// Quote resolves the cost of an action without charging anything
func (s *billingService) Quote(action pricing.Action, promoted bool) (pricing.Quote, error) {
	return s.pricing.Resolve(action, pricing.Options{Promoted: promoted})
}

// Schedule returns the full fee table currently in force
func (s *billingService) Schedule() pricing.Schedule {
	return s.pricing.Schedule()
}

// ChargeParams describes a paid-action charge
type ChargeParams struct {
	AccountID     uuid.UUID
	Action        pricing.Action
	CorrelationID string
}

// ChargeResult is a collected fee and the payer's new balance
type ChargeResult struct {
	Quote   pricing.Quote `json:"quote"`
	Balance int64         `json:"balance"`
}

// ChargeAction resolves the action's fee and debits it. The charge and its
// ledger entry commit together; an account that cannot cover the fee gets
// ErrInsufficientFunds and the action must not proceed.
func (s *billingService) ChargeAction(ctx context.Context, params ChargeParams) (*ChargeResult, error) {
	if params.Action == pricing.ActionServiceRequest {
		return nil, ErrRequestFeeViaCreate
	}

	quote, err := s.pricing.Resolve(params.Action, pricing.Options{})
	if err != nil {
		return nil, err
	}
	reason, err := pricing.FeeReason(params.Action)
	if err != nil {
		return nil, err
	}

	balance, err := s.collector.CollectFee(ctx, transfer.FeeParams{
		AccountID:     params.AccountID,
		Amount:        quote.Total,
		Reason:        reason,
		Meta:          map[string]string{"pricing_version": quote.Version},
		CorrelationID: params.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Paid action charged",
		"account_id", params.AccountID.String(),
		"action", string(params.Action),
		"fee", quote.Total,
	)
	return &ChargeResult{Quote: quote, Balance: balance}, nil
}
