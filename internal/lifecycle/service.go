// Package lifecycle orchestrates the service request flow from creation to
// settlement. It owns every composite operation that must be atomic: charging
// the creation fee together with the insert, and moving the settlement
// together with the terminal status write.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/communitymarket/ucm-ledger/internal/domain/idempotency"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/domain/notification"
	"github.com/communitymarket/ucm-ledger/internal/domain/outbox"
	"github.com/communitymarket/ucm-ledger/internal/domain/request"
	"github.com/communitymarket/ucm-ledger/internal/pricing"
	"github.com/communitymarket/ucm-ledger/internal/platform/persistence"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrPayViaSettlement redirects callers who submit pay as a plain transition;
// payment carries money and goes through the Pay operation.
var ErrPayViaSettlement = errors.New("payment is performed through the settlement operation")

// MovementApplier is the slice of the transfer engine the lifecycle uses
type MovementApplier interface {
	ApplyInTx(ctx context.Context, tx pgx.Tx, movements []transfer.Movement) (map[uuid.UUID]int64, error)
}

// Service coordinates request lifecycle operations
type Service struct {
	txRunner    persistence.TxRunner
	requestRepo request.Repository
	outboxRepo  outbox.Repository
	idemRepo    idempotency.Repository
	engine      MovementApplier
	pricing     *pricing.Resolver
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a lifecycle service
func NewService(
	txRunner persistence.TxRunner,
	requestRepo request.Repository,
	outboxRepo outbox.Repository,
	idemRepo idempotency.Repository,
	engine MovementApplier,
	pricingResolver *pricing.Resolver,
	logger *slog.Logger,
) *Service {
	return &Service{
		txRunner:    txRunner,
		requestRepo: requestRepo,
		outboxRepo:  outboxRepo,
		idemRepo:    idemRepo,
		engine:      engine,
		pricing:     pricingResolver,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateParams describes a new service request
type CreateParams struct {
	ClientID      uuid.UUID
	Title         string
	Description   string
	City          string
	BudgetFrom    *int64
	BudgetTo      *int64
	ExecutorID    *uuid.UUID // pre-assign to a specific provider
	Promote       bool
	CorrelationID string
}

// CreateResult is a created request with the fee actually charged
type CreateResult struct {
	Request       *request.Request
	Quote         pricing.Quote
	ClientBalance int64
}

// Create validates the request, resolves the creation fee from the current
// schedule, and charges it in the same transaction as the insert. A client
// who cannot cover the fee gets ErrInsufficientFunds and no request row.
func (s *Service) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	req, err := request.NewRequest(params.ClientID, params.Title, params.Description,
		params.City, params.BudgetFrom, params.BudgetTo)
	if err != nil {
		return nil, err
	}
	if params.ExecutorID != nil {
		if *params.ExecutorID == params.ClientID {
			return nil, request.ErrValidation{Field: "executor_id"}
		}
		req.AssignExecutor(*params.ExecutorID)
	}

	quote, err := s.pricing.Resolve(pricing.ActionServiceRequest, pricing.Options{Promoted: params.Promote})
	if err != nil {
		return nil, err
	}
	if params.Promote {
		req.GrantPromotion(s.now().Add(s.pricing.PromotionDuration()))
	}

	related := &ledger.Related{Type: ledger.RelatedTypeRequest, ID: req.ID}
	movements := []transfer.Movement{{
		AccountID:     params.ClientID,
		Delta:         -quote.Base,
		Reason:        ledger.ReasonServiceRequestFee,
		Related:       related,
		CorrelationID: params.CorrelationID,
	}}
	if params.Promote {
		movements = append(movements, transfer.Movement{
			AccountID:     params.ClientID,
			Delta:         -quote.Promotion,
			Reason:        ledger.ReasonServiceRequestPromoFee,
			Related:       related,
			CorrelationID: params.CorrelationID,
		})
	}

	result := &CreateResult{Request: req, Quote: quote}
	err = s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		balances, err := s.engine.ApplyInTx(ctx, tx, movements)
		if err != nil {
			return err
		}
		result.ClientBalance = balances[params.ClientID]
		return s.requestRepo.WithTx(tx).Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Request created",
		"request_id", req.ID.String(),
		"client_id", params.ClientID.String(),
		"fee", quote.Total,
		"promoted", params.Promote,
	)
	return result, nil
}

// Get returns a request and, when the viewer is not the client, counts the
// view and advances new to viewed. A lost optimistic race on the view counter
// is ignored; the caller still gets the request.
func (s *Service) Get(ctx context.Context, id, viewerID uuid.UUID) (*request.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if viewerID != uuid.Nil && viewerID != req.ClientID && !req.Terminal() {
		req.MarkViewed(viewerID)
		if err := s.requestRepo.Update(ctx, req); err != nil {
			if !errors.Is(err, request.ErrConcurrentModification{}) {
				return nil, err
			}
			s.logger.Debug("View count lost optimistic race", "request_id", id.String())
		}
	}
	return req, nil
}

// TransitionParams describes a state-machine action on a request
type TransitionParams struct {
	RequestID     uuid.UUID
	CallerID      uuid.UUID
	Action        request.Action
	AgreedPrice   *int64 // for accept (optional) and set_price (required)
	CorrelationID string
}

// Transition applies one lifecycle action. Role and state checks live on the
// domain object; this method supplies atomicity and stages the notification
// events for accept and complete in the same transaction as the status write.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (*request.Request, error) {
	if params.Action == request.ActionPay {
		return nil, ErrPayViaSettlement
	}

	req, err := s.requestRepo.GetByID(ctx, params.RequestID)
	if err != nil {
		return nil, err
	}

	var event *notification.Event
	switch params.Action {
	case request.ActionAccept:
		if err := req.Accept(params.CallerID, params.AgreedPrice); err != nil {
			return nil, err
		}
		event = notification.NewEvent(notification.KindRequestAccepted,
			req.ID, req.ClientID, req.ExecutorID, nil)
	case request.ActionSetPrice:
		if params.AgreedPrice == nil {
			return nil, request.ErrValidation{Field: "agreed_price"}
		}
		if err := req.SetPrice(params.CallerID, *params.AgreedPrice); err != nil {
			return nil, err
		}
	case request.ActionStart:
		if err := req.Start(params.CallerID); err != nil {
			return nil, err
		}
	case request.ActionComplete:
		if err := req.Complete(params.CallerID); err != nil {
			return nil, err
		}
		event = notification.NewEvent(notification.KindRequestCompleted,
			req.ID, req.ClientID, req.ExecutorID, nil)
	case request.ActionReject:
		if err := req.Reject(params.CallerID); err != nil {
			return nil, err
		}
	case request.ActionCancel:
		if err := req.Cancel(params.CallerID); err != nil {
			return nil, err
		}
	default:
		return nil, request.ErrInvalidTransition{Status: req.Status, Action: params.Action}
	}

	err = s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.requestRepo.WithTx(tx).Update(ctx, req); err != nil {
			return err
		}
		return s.stageEvent(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Request transitioned",
		"request_id", req.ID.String(),
		"action", string(params.Action),
		"status", string(req.Status),
		"caller_id", params.CallerID.String(),
	)
	return req, nil
}

// Delete removes a request that no executor has engaged with yet.
// Client-only, and only from status new or viewed. The creation fee is not
// refunded.
func (s *Service) Delete(ctx context.Context, id, callerID uuid.UUID) error {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if callerID != req.ClientID {
		return request.ErrForbidden{Action: "delete"}
	}
	if !req.Deletable() {
		return request.ErrNotDeletable
	}
	if err := s.requestRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Request deleted", "request_id", id.String(), "client_id", callerID.String())
	return nil
}

// ListByClient returns the caller's own requests, newest first
func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*request.Request, error) {
	return s.requestRepo.ListByClient(ctx, clientID, limit, offset)
}

// ListByExecutor returns requests assigned to the caller, newest first
func (s *Service) ListByExecutor(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*request.Request, error) {
	return s.requestRepo.ListByExecutor(ctx, executorID, limit, offset)
}

// ListPublic returns the open board. Requests whose promotion window covers
// the query moment sort first; expiry needs no sweeper because the window is
// compared at read time.
func (s *Service) ListPublic(ctx context.Context, limit, offset int) ([]*request.Request, error) {
	return s.requestRepo.ListPublic(ctx, limit, offset)
}

// stageEvent writes a notification event to the outbox inside the caller's
// transaction. Nil events are a no-op.
func (s *Service) stageEvent(ctx context.Context, tx pgx.Tx, event *notification.Event) error {
	if event == nil {
		return nil
	}
	msg, err := outbox.NewMessage(event)
	if err != nil {
		return err
	}
	return s.outboxRepo.WithTx(tx).Create(ctx, msg)
}
