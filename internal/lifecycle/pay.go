package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/communitymarket/ucm-ledger/internal/domain/idempotency"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/domain/notification"
	"github.com/communitymarket/ucm-ledger/internal/domain/request"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PayParams describes the settlement of a completed request
type PayParams struct {
	RequestID      uuid.UUID
	CallerID       uuid.UUID
	IdempotencyKey string
	CorrelationID  string
}

// PayResult reports a settled payment
type PayResult struct {
	Request         *request.Request `json:"-"`
	Amount          int64            `json:"amount"`
	ClientBalance   int64            `json:"client_balance"`
	ExecutorBalance int64            `json:"executor_balance"`

	// Replayed marks a result served from an idempotency record
	Replayed bool `json:"-"`
}

// Pay settles a completed request at its agreed price: the client is debited,
// the executor credited, and the request marked paid, all in one transaction.
// A retry carrying the same idempotency key returns the stored outcome
// instead of paying twice.
func (s *Service) Pay(ctx context.Context, params PayParams) (*PayResult, error) {
	req, err := s.requestRepo.GetByID(ctx, params.RequestID)
	if err != nil {
		return nil, err
	}

	requestHash := hashPay(params)
	result := &PayResult{Request: req}

	err = s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var idemRepo idempotency.Repository
		if params.IdempotencyKey != "" {
			idemRepo = s.idemRepo.WithTx(tx)

			record, err := idemRepo.Get(ctx, params.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("failed to check idempotency key: %w", err)
			}
			if record != nil {
				if record.RequestHash != requestHash {
					return idempotency.ErrMismatch
				}
				if len(record.ResponseBody) == 0 {
					return idempotency.ErrConflict
				}
				if err := json.Unmarshal(record.ResponseBody, result); err != nil {
					return fmt.Errorf("failed to decode stored payment result: %w", err)
				}
				result.Replayed = true
				return nil
			}
		}

		amount, executorID, err := req.PreparePay(params.CallerID)
		if err != nil {
			return err
		}

		if idemRepo != nil {
			if err := idemRepo.Reserve(ctx, params.IdempotencyKey, requestHash); err != nil {
				return err
			}
		}

		related := &ledger.Related{Type: ledger.RelatedTypeRequest, ID: req.ID}
		balances, err := s.engine.ApplyInTx(ctx, tx, []transfer.Movement{
			{
				AccountID:     req.ClientID,
				Delta:         -amount,
				Reason:        ledger.ReasonServicePayment,
				Related:       related,
				CorrelationID: params.CorrelationID,
			},
			{
				AccountID:     executorID,
				Delta:         amount,
				Reason:        ledger.ReasonServiceEarning,
				Related:       related,
				CorrelationID: params.CorrelationID,
			},
		})
		if err != nil {
			return err
		}

		req.MarkPaid(s.now())
		if err := s.requestRepo.WithTx(tx).Update(ctx, req); err != nil {
			return err
		}

		paidAmount := amount
		event := notification.NewEvent(notification.KindRequestPaid,
			req.ID, req.ClientID, req.ExecutorID, &paidAmount)
		if err := s.stageEvent(ctx, tx, event); err != nil {
			return err
		}

		result.Amount = amount
		result.ClientBalance = balances[req.ClientID]
		result.ExecutorBalance = balances[executorID]

		if idemRepo != nil {
			body, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to encode payment result: %w", err)
			}
			if err := idemRepo.StoreResponse(ctx, params.IdempotencyKey, body); err != nil {
				return fmt.Errorf("failed to store idempotency response: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.logger.Info("Request paid",
			"request_id", req.ID.String(),
			"client_id", req.ClientID.String(),
			"amount", result.Amount,
		)
	}
	return result, nil
}

func hashPay(params PayParams) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("pay|%s|%s", params.RequestID, params.CallerID)))
	return hex.EncodeToString(sum[:])
}
