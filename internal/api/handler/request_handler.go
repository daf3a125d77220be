package handler

import (
	"log/slog"
	"time"

	"github.com/communitymarket/ucm-ledger/internal/api/middleware"
	"github.com/communitymarket/ucm-ledger/internal/api/service"
	"github.com/communitymarket/ucm-ledger/internal/domain/request"
	"github.com/communitymarket/ucm-ledger/internal/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestHandler handles HTTP requests for the service request lifecycle
type RequestHandler struct {
	lifecycle service.LifecycleService
	logger    *slog.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(logger *slog.Logger, lifecycleService service.LifecycleService) *RequestHandler {
	return &RequestHandler{
		lifecycle: lifecycleService,
		logger:    logger,
	}
}

// Create posts a new service request, charging the creation fee atomically
// with the insert
func (h *RequestHandler) Create(c *gin.Context) {
	clientID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var executorID *uuid.UUID
	if req.ExecutorID != nil {
		id, err := uuid.Parse(*req.ExecutorID)
		if err != nil {
			RespondBadRequest(c, "Invalid executor ID")
			return
		}
		executorID = &id
	}

	result, err := h.lifecycle.Create(c.Request.Context(), lifecycle.CreateParams{
		ClientID:      clientID,
		Title:         req.Title,
		Description:   req.Description,
		City:          req.City,
		BudgetFrom:    req.BudgetFrom,
		BudgetTo:      req.BudgetTo,
		ExecutorID:    executorID,
		Promote:       req.Promote,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondCreated(c, CreateRequestResponse{
		Request:       mapRequestToResponse(result.Request, time.Now()),
		FeeCharged:    result.Quote.Total,
		ClientBalance: result.ClientBalance,
	})
}

// GetByID retrieves a request. A read by anyone other than the client counts
// as a view and advances new to viewed.
func (h *RequestHandler) GetByID(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	viewerID := optionalCallerID(c)

	req, err := h.lifecycle.Get(c.Request.Context(), id, viewerID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapRequestToResponse(req, time.Now()))
}

// Board lists open public requests, promoted-first then newest
func (h *RequestHandler) Board(c *gin.Context) {
	params, ok := bindPagination(c)
	if !ok {
		return
	}

	requests, err := h.lifecycle.ListPublic(c.Request.Context(), params.PerPage, (params.Page-1)*params.PerPage)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapRequestsToResponses(requests))
}

// Mine lists the authenticated caller's own requests
func (h *RequestHandler) Mine(c *gin.Context) {
	clientID, ok := callerID(c)
	if !ok {
		return
	}
	params, ok := bindPagination(c)
	if !ok {
		return
	}

	requests, err := h.lifecycle.ListByClient(c.Request.Context(), clientID, params.PerPage, (params.Page-1)*params.PerPage)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapRequestsToResponses(requests))
}

// Assigned lists requests the authenticated caller is executor on
func (h *RequestHandler) Assigned(c *gin.Context) {
	executorID, ok := callerID(c)
	if !ok {
		return
	}
	params, ok := bindPagination(c)
	if !ok {
		return
	}

	requests, err := h.lifecycle.ListByExecutor(c.Request.Context(), executorID, params.PerPage, (params.Page-1)*params.PerPage)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapRequestsToResponses(requests))
}

// Transition applies a lifecycle action (accept, start, complete, reject,
// cancel, set_price) to a request
func (h *RequestHandler) Transition(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	updated, err := h.lifecycle.Transition(c.Request.Context(), lifecycle.TransitionParams{
		RequestID:     id,
		CallerID:      caller,
		Action:        request.Action(req.Action),
		AgreedPrice:   req.AgreedPrice,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, mapRequestToResponse(updated, time.Now()))
}

// Pay settles a completed request at its agreed price
func (h *RequestHandler) Pay(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	// Body is optional; it only carries the idempotency key
	var req PayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("Invalid request body", "error", err)
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	result, err := h.lifecycle.Pay(c.Request.Context(), lifecycle.PayParams{
		RequestID:      id,
		CallerID:       caller,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondOK(c, PayResponse{
		RequestID:       id.String(),
		Status:          string(request.StatusPaid),
		Amount:          result.Amount,
		ClientBalance:   result.ClientBalance,
		ExecutorBalance: result.ExecutorBalance,
	})
}

// Delete removes a not-yet-accepted request. The creation fee is not refunded.
func (h *RequestHandler) Delete(c *gin.Context) {
	caller, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.lifecycle.Delete(c.Request.Context(), id, caller); err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	RespondNoContent(c)
}

func bindPagination(c *gin.Context) (PaginationParams, bool) {
	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return params, false
	}
	return params, true
}

// mapRequestToResponse maps a request entity to a response DTO, deriving the
// live promotion flag from the window
func mapRequestToResponse(req *request.Request, now time.Time) RequestResponse {
	resp := RequestResponse{
		ID:              req.ID.String(),
		ClientID:        req.ClientID.String(),
		Title:           req.Title,
		Description:     req.Description,
		City:            req.City,
		BudgetFrom:      req.BudgetFrom,
		BudgetTo:        req.BudgetTo,
		AgreedPrice:     req.AgreedPrice,
		Status:          string(req.Status),
		IsPublic:        req.IsPublic,
		PromotionActive: req.PromotionActive(now),
		IsPaid:          req.IsPaid,
		ViewsCount:      req.ViewsCount,
		CreatedAt:       req.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       req.UpdatedAt.Format(time.RFC3339),
	}
	if req.ExecutorID != nil {
		id := req.ExecutorID.String()
		resp.ExecutorID = &id
	}
	if req.PromotedUntil != nil {
		until := req.PromotedUntil.Format(time.RFC3339)
		resp.PromotedUntil = &until
	}
	if req.PaidAt != nil {
		paidAt := req.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paidAt
	}
	return resp
}

func mapRequestsToResponses(requests []*request.Request) []RequestResponse {
	now := time.Now()
	responses := make([]RequestResponse, 0, len(requests))
	for _, req := range requests {
		responses = append(responses, mapRequestToResponse(req, now))
	}
	return responses
}
