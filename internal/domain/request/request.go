// Package request defines the client-authored work order and its state
// machine. Every transition is guarded by the current persisted status and an
// optimistic version check, so a stale caller gets a conflict instead of
// silently overwriting a concurrent transition.
package request

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the persisted lifecycle state of a request
type Status string

const (
	StatusNew        Status = "new"
	StatusViewed     Status = "viewed"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPaid       Status = "paid"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// Action is a caller-initiated transition
type Action string

const (
	ActionAccept   Action = "accept"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionSetPrice Action = "set_price"
	ActionPay      Action = "pay"
)

// allowedTransitions enumerates every legal (status, action) pair.
// Anything absent from this table fails with ErrInvalidTransition.
var allowedTransitions = map[Status]map[Action]bool{
	StatusNew: {
		ActionAccept: true,
		ActionReject: true,
		ActionCancel: true,
	},
	StatusViewed: {
		ActionAccept: true,
		ActionReject: true,
		ActionCancel: true,
	},
	StatusAccepted: {
		ActionStart:    true,
		ActionReject:   true,
		ActionSetPrice: true,
	},
	StatusInProgress: {
		ActionComplete: true,
		ActionSetPrice: true,
	},
	StatusCompleted: {
		ActionPay: true,
	},
	// paid, cancelled and rejected are terminal
}

// Common errors
var (
	ErrMissingAgreedPrice = errors.New("agreed price must be set before payment")
	ErrAlreadyPaid        = errors.New("request is already paid")
	ErrNotDeletable       = errors.New("request cannot be deleted after acceptance")
)

// ErrRequestNotFound indicates missing request
type ErrRequestNotFound struct {
	RequestID uuid.UUID
}

func (e ErrRequestNotFound) Error() string {
	return "request not found: " + e.RequestID.String()
}

// Is matches any ErrRequestNotFound when the target carries a nil request id
func (e ErrRequestNotFound) Is(target error) bool {
	t, ok := target.(ErrRequestNotFound)
	if !ok {
		return false
	}
	if t.RequestID == uuid.Nil {
		return true
	}
	return e.RequestID == t.RequestID
}

// ErrInvalidTransition indicates the action is not legal from the current status
type ErrInvalidTransition struct {
	Status Status
	Action Action
}

func (e ErrInvalidTransition) Error() string {
	return "action " + string(e.Action) + " is not allowed from status " + string(e.Status)
}

// ErrForbidden indicates the caller does not hold the role the action requires
type ErrForbidden struct {
	Action Action
}

func (e ErrForbidden) Error() string {
	return "caller is not permitted to perform action: " + string(e.Action)
}

// ErrValidation indicates a missing or malformed field on creation
type ErrValidation struct {
	Field string
}

func (e ErrValidation) Error() string {
	return "invalid request: missing or malformed field " + e.Field
}

// Request is a client-authored work order that may be claimed by an executor
// and settled in UCM. Budget bounds are advisory; AgreedPrice is the binding
// settlement amount once set.
type Request struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	ExecutorID  *uuid.UUID `json:"executor_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	City        string     `json:"city,omitempty"`
	BudgetFrom  *int64     `json:"budget_from,omitempty"`
	BudgetTo    *int64     `json:"budget_to,omitempty"`
	AgreedPrice *int64     `json:"agreed_price,omitempty"`
	Status      Status     `json:"status"`
	IsPublic    bool       `json:"is_public"`

	// Promoted records that a promotion was bought; whether the request is
	// currently promoted is always derived via PromotionActive, never read
	// from this flag directly.
	Promoted      bool       `json:"promoted"`
	PromotedUntil *time.Time `json:"promoted_until,omitempty"`

	IsPaid     bool       `json:"is_paid"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	ViewsCount int64      `json:"views_count"`
	Version    int        `json:"version"` // For optimistic locking
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewRequest validates the caller-provided fields and builds an unaccepted
// request in status new. The creation fee is charged by the lifecycle service,
// not here.
func NewRequest(clientID uuid.UUID, title, description, city string, budgetFrom, budgetTo *int64) (*Request, error) {
	if clientID == uuid.Nil {
		return nil, ErrValidation{Field: "client_id"}
	}
	if title == "" {
		return nil, ErrValidation{Field: "title"}
	}
	if description == "" {
		return nil, ErrValidation{Field: "description"}
	}
	if budgetFrom != nil && *budgetFrom < 0 {
		return nil, ErrValidation{Field: "budget_from"}
	}
	if budgetFrom != nil && budgetTo != nil && *budgetTo < *budgetFrom {
		return nil, ErrValidation{Field: "budget_to"}
	}

	now := time.Now()
	return &Request{
		ID:          uuid.New(),
		ClientID:    clientID,
		Title:       title,
		Description: description,
		City:        city,
		BudgetFrom:  budgetFrom,
		BudgetTo:    budgetTo,
		Status:      StatusNew,
		IsPublic:    true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AssignExecutor pre-assigns the owner of the targeted service. A pre-assigned
// request is not listed publicly.
func (r *Request) AssignExecutor(executorID uuid.UUID) {
	id := executorID
	r.ExecutorID = &id
	r.IsPublic = false
	r.touch()
}

// GrantPromotion marks the request promoted until the given deadline
func (r *Request) GrantPromotion(until time.Time) {
	r.Promoted = true
	u := until
	r.PromotedUntil = &u
	r.touch()
}

// PromotionActive reports whether the promotion window covers now.
// Expiry is evaluated lazily on every read; the stored flag is never
// rewritten by a background job.
func (r *Request) PromotionActive(now time.Time) bool {
	return r.Promoted && r.PromotedUntil != nil && r.PromotedUntil.After(now)
}

// Terminal reports whether the lifecycle has ended
func (r *Request) Terminal() bool {
	return r.Status == StatusPaid || r.Status == StatusCancelled || r.Status == StatusRejected
}

// Deletable reports whether the request may still be removed by the client.
// Deletion is only permitted before an executor has accepted.
func (r *Request) Deletable() bool {
	return r.Status == StatusNew || r.Status == StatusViewed
}

// transitionAllowed consults the state machine table
func transitionAllowed(from Status, action Action) bool {
	return allowedTransitions[from][action]
}

// MarkViewed advances new to viewed on a read by someone other than the
// client. Idempotent: any later status is left untouched.
func (r *Request) MarkViewed(viewerID uuid.UUID) {
	if viewerID == r.ClientID {
		return
	}
	r.ViewsCount++
	if r.Status == StatusNew {
		r.Status = StatusViewed
	}
	r.touch()
}

// Accept claims the request for the caller. An unassigned request may be
// accepted by any non-client; a pre-assigned one only by its executor. The
// agreed price may be supplied now or later via SetPrice.
func (r *Request) Accept(callerID uuid.UUID, agreedPrice *int64) error {
	if !transitionAllowed(r.Status, ActionAccept) {
		return ErrInvalidTransition{Status: r.Status, Action: ActionAccept}
	}
	if callerID == r.ClientID {
		return ErrForbidden{Action: ActionAccept}
	}
	if r.ExecutorID != nil && *r.ExecutorID != callerID {
		return ErrForbidden{Action: ActionAccept}
	}

	id := callerID
	r.ExecutorID = &id
	r.Status = StatusAccepted
	if agreedPrice != nil {
		p := *agreedPrice
		r.AgreedPrice = &p
	}
	r.touch()
	return nil
}

// SetPrice records the negotiated settlement amount. Executor-only, and only
// before payment.
func (r *Request) SetPrice(callerID uuid.UUID, agreedPrice int64) error {
	if !transitionAllowed(r.Status, ActionSetPrice) {
		return ErrInvalidTransition{Status: r.Status, Action: ActionSetPrice}
	}
	if r.ExecutorID == nil || *r.ExecutorID != callerID {
		return ErrForbidden{Action: ActionSetPrice}
	}
	if agreedPrice <= 0 {
		return ErrValidation{Field: "agreed_price"}
	}

	p := agreedPrice
	r.AgreedPrice = &p
	r.touch()
	return nil
}

// Start moves accepted work to in_progress. Executor-only.
func (r *Request) Start(callerID uuid.UUID) error {
	if !transitionAllowed(r.Status, ActionStart) {
		return ErrInvalidTransition{Status: r.Status, Action: ActionStart}
	}
	if r.ExecutorID == nil || *r.ExecutorID != callerID {
		return ErrForbidden{Action: ActionStart}
	}

	r.Status = StatusInProgress
	r.touch()
	return nil
}

// Complete marks the work done and payment due. Executor-only.
func (r *Request) Complete(callerID uuid.UUID) error {
	if !transitionAllowed(r.Status, ActionComplete) {
		return ErrInvalidTransition{Status: r.Status, Action: ActionComplete}
	}
	if r.ExecutorID == nil || *r.ExecutorID != callerID {
		return ErrForbidden{Action: ActionComplete}
	}

	r.Status = StatusCompleted
	r.touch()
	return nil
}

// Reject lets the executor walk away before work starts, clearing the
// assignment. The creation fee is not refunded.
func (r *Request) Reject(callerID uuid.UUID) error {
	if !transitionAllowed(r.Status, ActionReject) {
		return ErrInvalidTransition{Status: r.Status, Action: ActionReject}
	}
	if r.ExecutorID == nil || *r.ExecutorID != callerID {
		return ErrForbidden{Action: ActionReject}
	}

	r.ExecutorID = nil
	r.Status = StatusRejected
	r.touch()
	return nil
}

// Cancel lets the client withdraw the request before work starts. The
// creation fee is not refunded.
func (r *Request) Cancel(callerID uuid.UUID) error {
	if !transitionAllowed(r.Status, ActionCancel) {
		return ErrInvalidTransition{Status: r.Status, Action: ActionCancel}
	}
	if callerID != r.ClientID {
		return ErrForbidden{Action: ActionCancel}
	}

	r.Status = StatusCancelled
	r.touch()
	return nil
}

// PreparePay validates that payment may proceed and returns the settlement
// amount and the executor to credit. Client-only, requires completed work, an
// assigned executor and an agreed price. The actual money movement and the
// terminal status write are performed by the lifecycle service in one atomic
// unit.
func (r *Request) PreparePay(callerID uuid.UUID) (amount int64, executorID uuid.UUID, err error) {
	if r.IsPaid {
		return 0, uuid.Nil, ErrAlreadyPaid
	}
	if !transitionAllowed(r.Status, ActionPay) {
		return 0, uuid.Nil, ErrInvalidTransition{Status: r.Status, Action: ActionPay}
	}
	if callerID != r.ClientID {
		return 0, uuid.Nil, ErrForbidden{Action: ActionPay}
	}
	if r.ExecutorID == nil {
		return 0, uuid.Nil, ErrInvalidTransition{Status: r.Status, Action: ActionPay}
	}
	if r.AgreedPrice == nil || *r.AgreedPrice <= 0 {
		return 0, uuid.Nil, ErrMissingAgreedPrice
	}

	return *r.AgreedPrice, *r.ExecutorID, nil
}

// MarkPaid records the settled payment. Only valid after PreparePay.
func (r *Request) MarkPaid(now time.Time) {
	r.Status = StatusPaid
	r.IsPaid = true
	t := now
	r.PaidAt = &t
	r.touch()
}

func (r *Request) touch() {
	r.UpdatedAt = time.Now()
	r.Version++
}
