package handler

import (
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/api/middleware"
	"github.com/communitymarket/ucm-ledger/internal/api/service"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/transfer"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TransferHandler handles HTTP requests for peer-to-peer transfers
type TransferHandler struct {
	engine service.TransferService
	logger *slog.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(logger *slog.Logger, engine service.TransferService) *TransferHandler {
	return &TransferHandler{
		engine: engine,
		logger: logger,
	}
}

// Create moves UCM from the authenticated caller to the recipient
func (h *TransferHandler) Create(c *gin.Context) {
	senderID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		RespondBadRequest(c, "Invalid recipient ID")
		return
	}

	result, err := h.engine.Transfer(c.Request.Context(), transfer.TransferParams{
		SenderID:       senderID,
		RecipientID:    recipientID,
		Amount:         req.Amount,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	response := TransferResponse{
		TransferID:       result.TransferID.String(),
		SenderID:         result.SenderID.String(),
		RecipientID:      result.RecipientID.String(),
		Amount:           result.Amount,
		SenderBalance:    result.SenderBalance,
		RecipientBalance: result.RecipientBalance,
	}
	if result.Replayed {
		RespondOK(c, response)
		return
	}
	RespondCreated(c, response)
}

// Grant credits an account with an administrative top-up. The credit comes
// from outside circulation and is ledgered under admin_grant.
func (h *TransferHandler) Grant(c *gin.Context) {
	accountID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var meta map[string]string
	if req.Note != "" {
		meta = map[string]string{"note": req.Note}
	}

	balance, err := h.engine.Grant(c.Request.Context(), transfer.GrantParams{
		AccountID:     accountID,
		Amount:        req.Amount,
		Reason:        ledger.ReasonAdminGrant,
		Meta:          meta,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, GrantResponse{
		AccountID: accountID.String(),
		Amount:    req.Amount,
		Balance:   balance,
	})
}
