package handler

// OpenAccountRequest represents a request to open a value account
type OpenAccountRequest struct {
	UserID     string  `json:"user_id" binding:"required,uuid"`
	ReferrerID *string `json:"referrer_id,omitempty" binding:"omitempty,uuid"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID        string `json:"id"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CreateTransferRequest represents a peer-to-peer UCM transfer
type CreateTransferRequest struct {
	RecipientID    string `json:"recipient_id" binding:"required,uuid"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	Note           string `json:"note,omitempty" binding:"max=500"`
	IdempotencyKey string `json:"idempotency_key,omitempty" binding:"max=128"`
}

// TransferResponse represents a settled transfer in API responses
type TransferResponse struct {
	TransferID       string `json:"transfer_id"`
	SenderID         string `json:"sender_id"`
	RecipientID      string `json:"recipient_id"`
	Amount           int64  `json:"amount"`
	SenderBalance    int64  `json:"sender_balance"`
	RecipientBalance int64  `json:"recipient_balance"`
}

// GrantRequest represents an administrative UCM credit to an account
type GrantRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Note   string `json:"note,omitempty" binding:"max=500"`
}

// GrantResponse represents an applied grant in API responses
type GrantResponse struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
}

// CreateRequestRequest represents a new service request
type CreateRequestRequest struct {
	Title       string  `json:"title" binding:"required,max=200"`
	Description string  `json:"description" binding:"required,max=5000"`
	City        string  `json:"city,omitempty" binding:"max=100"`
	BudgetFrom  *int64  `json:"budget_from,omitempty" binding:"omitempty,min=0"`
	BudgetTo    *int64  `json:"budget_to,omitempty" binding:"omitempty,min=0"`
	ExecutorID  *string `json:"executor_id,omitempty" binding:"omitempty,uuid"`
	Promote     bool    `json:"promote,omitempty"`
}

// TransitionRequest represents a lifecycle action on a service request
type TransitionRequest struct {
	Action      string `json:"action" binding:"required,oneof=accept start complete reject cancel set_price"`
	AgreedPrice *int64 `json:"agreed_price,omitempty" binding:"omitempty,gt=0"`
}

// PayRequest represents the settlement of a completed service request
type PayRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty" binding:"max=128"`
}

// PayResponse represents a settled payment in API responses
type PayResponse struct {
	RequestID       string `json:"request_id"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	ClientBalance   int64  `json:"client_balance"`
	ExecutorBalance int64  `json:"executor_balance"`
}

// RequestResponse represents a service request in API responses.
// PromotionActive is derived from the promotion window at response time.
type RequestResponse struct {
	ID              string  `json:"id"`
	ClientID        string  `json:"client_id"`
	ExecutorID      *string `json:"executor_id,omitempty"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	City            string  `json:"city,omitempty"`
	BudgetFrom      *int64  `json:"budget_from,omitempty"`
	BudgetTo        *int64  `json:"budget_to,omitempty"`
	AgreedPrice     *int64  `json:"agreed_price,omitempty"`
	Status          string  `json:"status"`
	IsPublic        bool    `json:"is_public"`
	PromotionActive bool    `json:"promotion_active"`
	PromotedUntil   *string `json:"promoted_until,omitempty"`
	IsPaid          bool    `json:"is_paid"`
	PaidAt          *string `json:"paid_at,omitempty"`
	ViewsCount      int64   `json:"views_count"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// CreateRequestResponse pairs a created request with the charged fee
type CreateRequestResponse struct {
	Request       RequestResponse `json:"request"`
	FeeCharged    int64           `json:"fee_charged"`
	ClientBalance int64           `json:"client_balance"`
}

// ChargeActionRequest represents a one-shot paid platform action
type ChargeActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}
