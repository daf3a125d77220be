package handler

import (
	"log/slog"
	"time"

	"github.com/communitymarket/ucm-ledger/internal/api/middleware"
	"github.com/communitymarket/ucm-ledger/internal/api/service"
	"github.com/communitymarket/ucm-ledger/internal/domain/account"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountHandler handles HTTP requests for account operations
type AccountHandler struct {
	accountService service.AccountService
	logger         *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, accountService service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// Open creates the value account for a platform user and credits the opening
// bonuses
func (h *AccountHandler) Open(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondBadRequest(c, "Invalid user ID")
		return
	}
	var referrerID *uuid.UUID
	if req.ReferrerID != nil {
		id, err := uuid.Parse(*req.ReferrerID)
		if err != nil {
			RespondBadRequest(c, "Invalid referrer ID")
			return
		}
		referrerID = &id
	}

	acc, err := h.accountService.Open(c.Request.Context(), userID, referrerID, middleware.GetCorrelationID(c))
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapAccountToResponse(acc))
}

// GetByID retrieves an account by its ID, returning 404 if not found
func (h *AccountHandler) GetByID(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	acc, err := h.accountService.Get(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapAccountToResponse(acc))
}

// History returns a page of the account's ledger entries, newest first
func (h *AccountHandler) History(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}
	offset := (params.Page - 1) * params.PerPage

	entries, total, err := h.accountService.History(c.Request.Context(), id, params.PerPage, offset)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondWithPaginatedData(c, 200, entries, params.Page, params.PerPage, int(total))
}

// Audit verifies that the account balance equals the signed sum of its ledger
func (h *AccountHandler) Audit(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.accountService.Audit(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, result)
}

// Statistics returns ledger totals grouped by reason. Optional query
// parameters: account_id, from, to (RFC 3339).
func (h *AccountHandler) Statistics(c *gin.Context) {
	var filter ledger.AggregateFilter

	if raw := c.Query("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondBadRequest(c, "Invalid account_id filter")
			return
		}
		filter.AccountID = &id
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondBadRequest(c, "Invalid from filter, expected RFC 3339 timestamp")
			return
		}
		filter.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondBadRequest(c, "Invalid to filter, expected RFC 3339 timestamp")
			return
		}
		filter.To = t
	}

	aggregates, err := h.accountService.Statistics(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, aggregates)
}

// pathUUID parses a UUID path parameter, answering 400 on malformed input
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondBadRequest(c, "Invalid "+name+" parameter")
		return uuid.Nil, false
	}
	return id, true
}

// mapAccountToResponse maps an account entity to an account response DTO
func mapAccountToResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		ID:        acc.ID.String(),
		Balance:   acc.Balance,
		CreatedAt: acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt: acc.UpdatedAt.Format(time.RFC3339),
	}
}
