package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/communitymarket/ucm-ledger/internal/domain/account"
	"github.com/communitymarket/ucm-ledger/internal/domain/idempotency"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransferParams describes a direct peer-to-peer transfer
type TransferParams struct {
	SenderID       uuid.UUID
	RecipientID    uuid.UUID
	Amount         int64
	Note           string
	IdempotencyKey string
	CorrelationID  string
}

// TransferResult reports the outcome of a completed transfer
type TransferResult struct {
	TransferID       uuid.UUID `json:"transfer_id"`
	SenderID         uuid.UUID `json:"sender_id"`
	RecipientID      uuid.UUID `json:"recipient_id"`
	Amount           int64     `json:"amount"`
	SenderBalance    int64     `json:"sender_balance"`
	RecipientBalance int64     `json:"recipient_balance"`

	// Replayed marks a result served from an idempotency record rather
	// than a fresh movement
	Replayed bool `json:"-"`
}

// Transfer moves amount from sender to recipient as two inverse ledger legs
// sharing one related transfer id. A non-empty IdempotencyKey makes retries
// safe: the key is reserved in the same transaction as the movement, and a
// replay returns the stored result without moving funds again.
func (e *Engine) Transfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	if params.Amount <= 0 {
		return nil, account.ErrInvalidAmount
	}
	if params.SenderID == params.RecipientID {
		return nil, ErrSelfTransfer
	}

	requestHash := hashTransfer(params)
	result := &TransferResult{
		TransferID:  uuid.New(),
		SenderID:    params.SenderID,
		RecipientID: params.RecipientID,
		Amount:      params.Amount,
	}

	err := e.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var idemRepo idempotency.Repository
		if params.IdempotencyKey != "" {
			idemRepo = e.idemRepo.WithTx(tx)

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
					return fmt.Errorf("failed to decode stored transfer result: %w", err)
				}
				result.Replayed = true
				return nil
			}
			if err := idemRepo.Reserve(ctx, params.IdempotencyKey, requestHash); err != nil {
				return err
			}
		}

		var meta map[string]string
		if params.Note != "" {
			meta = map[string]string{"note": params.Note}
		}
		related := &ledger.Related{Type: ledger.RelatedTypeTransfer, ID: result.TransferID}

		balances, err := e.ApplyInTx(ctx, tx, []Movement{
			{
				AccountID:     params.SenderID,
				Delta:         -params.Amount,
				Reason:        ledger.ReasonTransferSent,
				Related:       related,
				Meta:          meta,
				CorrelationID: params.CorrelationID,
			},
			{
				AccountID:     params.RecipientID,
				Delta:         params.Amount,
				Reason:        ledger.ReasonTransferReceived,
				Related:       related,
				Meta:          meta,
				CorrelationID: params.CorrelationID,
			},
		})
		if err != nil {
			return err
		}
		result.SenderBalance = balances[params.SenderID]
		result.RecipientBalance = balances[params.RecipientID]

		if idemRepo != nil {
			body, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to encode transfer result: %w", err)
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

	e.logger.Info("Transfer applied",
		"transfer_id", result.TransferID.String(),
		"sender_id", params.SenderID.String(),
		"recipient_id", params.RecipientID.String(),
		"amount", params.Amount,
		"replayed", result.Replayed,
	)
	return result, nil
}

// FeeParams describes a platform fee charge against a single account
type FeeParams struct {
	AccountID     uuid.UUID
	Amount        int64
	Reason        ledger.Reason
	Related       *ledger.Related
	Meta          map[string]string
	CorrelationID string
}

// CollectFeeInTx debits a platform fee inside the caller's transaction and
// returns the payer's new balance. Fees leave circulation: there is no
// receiving account leg.
func (e *Engine) CollectFeeInTx(ctx context.Context, tx pgx.Tx, params FeeParams) (int64, error) {
	if params.Amount <= 0 {
		return 0, account.ErrInvalidAmount
	}
	balances, err := e.ApplyInTx(ctx, tx, []Movement{{
		AccountID:     params.AccountID,
		Delta:         -params.Amount,
		Reason:        params.Reason,
		Related:       params.Related,
		Meta:          params.Meta,
		CorrelationID: params.CorrelationID,
	}})
	if err != nil {
		return 0, err
	}
	return balances[params.AccountID], nil
}

// CollectFee runs CollectFeeInTx in its own transaction
func (e *Engine) CollectFee(ctx context.Context, params FeeParams) (int64, error) {
	var balance int64
	err := e.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var feeErr error
		balance, feeErr = e.CollectFeeInTx(ctx, tx, params)
		return feeErr
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

var grantReasons = map[ledger.Reason]bool{
	ledger.ReasonAdminGrant:    true,
	ledger.ReasonSignupBonus:   true,
	ledger.ReasonReferralBonus: true,
}

// GrantParams describes a platform-issued credit
type GrantParams struct {
	AccountID     uuid.UUID
	Amount        int64
	Reason        ledger.Reason
	Meta          map[string]string
	CorrelationID string
}

// Grant credits an account from outside circulation, e.g. the signup bonus
// or an administrative top-up, and returns the new balance.
func (e *Engine) Grant(ctx context.Context, params GrantParams) (int64, error) {
	if params.Amount <= 0 {
		return 0, account.ErrInvalidAmount
	}
	if !grantReasons[params.Reason] {
		return 0, fmt.Errorf("reason %q is not grantable", params.Reason)
	}
	balances, err := e.Apply(ctx, []Movement{{
		AccountID:     params.AccountID,
		Delta:         params.Amount,
		Reason:        params.Reason,
		Meta:          params.Meta,
		CorrelationID: params.CorrelationID,
	}})
	if err != nil {
		return 0, err
	}
	e.logger.Info("Grant applied",
		"account_id", params.AccountID.String(),
		"amount", params.Amount,
		"reason", string(params.Reason),
	)
	return balances[params.AccountID], nil
}

func hashTransfer(params TransferParams) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s",
		params.SenderID, params.RecipientID, params.Amount, params.Note)))
	return hex.EncodeToString(sum[:])
}
