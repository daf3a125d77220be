package handler

import (
	"log/slog"

	"github.com/communitymarket/ucm-ledger/internal/api/middleware"
	"github.com/communitymarket/ucm-ledger/internal/api/service"
	"github.com/communitymarket/ucm-ledger/internal/pricing"
	"github.com/gin-gonic/gin"
)

// PricingHandler handles HTTP requests for fee quotes and paid-action charges
type PricingHandler struct {
	billingService service.BillingService
	logger         *slog.Logger
}

// NewPricingHandler creates a new pricing handler
func NewPricingHandler(logger *slog.Logger, billingService service.BillingService) *PricingHandler {
	return &PricingHandler{
		billingService: billingService,
		logger:         logger,
	}
}

// Schedule returns the full fee table currently in force
func (h *PricingHandler) Schedule(c *gin.Context) {
	RespondOK(c, h.billingService.Schedule())
}

// Quote resolves the cost of an action without charging. Query parameters:
// action (required), promoted (optional bool).
func (h *PricingHandler) Quote(c *gin.Context) {
	action := pricing.Action(c.Query("action"))
	if action == "" {
		RespondBadRequest(c, "action query parameter is required")
		return
	}
	promoted := c.Query("promoted") == "true"

	quote, err := h.billingService.Quote(action, promoted)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, quote)
}

// Charge debits the authenticated caller for a one-shot paid action
func (h *PricingHandler) Charge(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}

	var req ChargeActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.billingService.ChargeAction(c.Request.Context(), service.ChargeParams{
		AccountID:     caller,
		Action:        pricing.Action(req.Action),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, result)
}
