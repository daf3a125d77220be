// Package notification defines the lifecycle events handed to the external
// notification sink. Delivery is fire-and-forget from the core's point of
// view: events are staged in the transactional outbox and shipped by the
// dispatcher, and a delivery failure never fails the money transaction that
// produced the event.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the lifecycle transition an event describes
type Kind string

const (
	KindRequestAccepted  Kind = "request_accepted"
	KindRequestCompleted Kind = "request_completed"
	KindRequestPaid      Kind = "request_paid"
)

// Event is the payload published to the notification topic
type Event struct {
	ID         uuid.UUID  `json:"id"`
	Kind       Kind       `json:"kind"`
	RequestID  uuid.UUID  `json:"request_id"`
	ClientID   uuid.UUID  `json:"client_id"`
	ExecutorID *uuid.UUID `json:"executor_id,omitempty"`
	Amount     *int64     `json:"amount,omitempty"` // set for request_paid
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewEvent builds an event for a request lifecycle transition
func NewEvent(kind Kind, requestID, clientID uuid.UUID, executorID *uuid.UUID, amount *int64) *Event {
	return &Event{
		ID:         uuid.New(),
		Kind:       kind,
		RequestID:  requestID,
		ClientID:   clientID,
		ExecutorID: executorID,
		Amount:     amount,
		OccurredAt: time.Now(),
	}
}
