package handler

import (
	"errors"
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/api/service"
	"github.com/communitymarket/ucm-ledger/internal/domain/account"
	"github.com/communitymarket/ucm-ledger/internal/domain/idempotency"
	"github.com/communitymarket/ucm-ledger/internal/domain/request"
	"github.com/communitymarket/ucm-ledger/internal/lifecycle"
	"github.com/communitymarket/ucm-ledger/internal/pricing"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/gin-gonic/gin"
)

// respondDomainError maps the domain error taxonomy onto HTTP. Anything it
// does not recognize is treated as a storage failure: logged in full, and
// answered with an opaque 500 so internals never leak to clients.
func respondDomainError(c *gin.Context, logger *slog.Logger, err error) {
	var transition request.ErrInvalidTransition
	var forbidden request.ErrForbidden
	var validation request.ErrValidation
	var unknownAction pricing.ErrUnknownActionType

	switch {
	case errors.Is(err, account.ErrInsufficientFunds{}):
		RespondUnprocessable(c, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, account.ErrInvalidAmount):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, transfer.ErrSelfTransfer):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, account.ErrAccountNotFound{}):
		RespondNotFound(c, err.Error())
	case errors.Is(err, request.ErrRequestNotFound{}):
		RespondNotFound(c, err.Error())
	case errors.As(err, &forbidden):
		RespondForbidden(c, err.Error())
	case errors.As(err, &transition):
		RespondConflict(c, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, request.ErrMissingAgreedPrice):
		RespondConflict(c, "MISSING_AGREED_PRICE", err.Error())
	case errors.Is(err, request.ErrAlreadyPaid):
		RespondConflict(c, "ALREADY_PAID", err.Error())
	case errors.Is(err, request.ErrNotDeletable):
		RespondConflict(c, "NOT_DELETABLE", err.Error())
	case errors.As(err, &validation):
		RespondBadRequest(c, err.Error())
	case errors.As(err, &unknownAction):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, lifecycle.ErrPayViaSettlement):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, service.ErrRequestFeeViaCreate):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, service.ErrInvalidUserID):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, idempotency.ErrConflict):
		RespondConflict(c, "IDEMPOTENCY_CONFLICT", err.Error())
	case errors.Is(err, idempotency.ErrMismatch):
		RespondUnprocessable(c, "IDEMPOTENCY_MISMATCH", err.Error())
	case isDuplicateAccount(err):
		RespondConflict(c, "ACCOUNT_EXISTS", err.Error())
	case isConcurrentModification(err):
		RespondConflict(c, "CONCURRENT_MODIFICATION", err.Error())
	default:
		logger.Error("Unhandled error in HTTP handler", "error", err, "path", c.Request.URL.Path)
		RespondInternalError(c)
	}
}

func isDuplicateAccount(err error) bool {
	var dup account.ErrDuplicateAccount
	return errors.As(err, &dup)
}

func isConcurrentModification(err error) bool {
	var accountConflict account.ErrConcurrentModification
	var requestConflict request.ErrConcurrentModification
	return errors.As(err, &accountConflict) || errors.As(err, &requestConflict)
}
