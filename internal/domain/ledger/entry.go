// Package ledger defines the append-only audit trail of every balance change.
// Entries are written exclusively by the transfer engine, inside the same
// database transaction as the balance mutation they document, and are never
// updated or deleted afterwards.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Reason is the closed vocabulary of why a balance changed
type Reason string

const (
	ReasonTransferSent           Reason = "transfer_sent"
	ReasonTransferReceived       Reason = "transfer_received"
	ReasonServiceRequestFee      Reason = "service_request_fee"
	ReasonServiceRequestPromoFee Reason = "service_request_promo_fee"
	ReasonServicePayment         Reason = "service_payment"
	ReasonServiceEarning         Reason = "service_earning"
	ReasonReferralBonus          Reason = "referral_bonus"
	ReasonSignupBonus            Reason = "signup_bonus"
	ReasonAdminGrant             Reason = "admin_grant"
	ReasonPartnerSearchFee       Reason = "partner_search_fee"
	ReasonJobRequestFee          Reason = "job_request_fee"
	ReasonEmployeeSearchFee      Reason = "employee_search_fee"
	ReasonInvestorSearchFee      Reason = "investor_search_fee"
	ReasonAdvancedSearchFee      Reason = "advanced_search_fee"
)

// Related entity types referenced by ledger entries
const (
	RelatedTypeRequest  = "service_request"
	RelatedTypeTransfer = "transfer"
)

// Related points at the entity that caused an entry, e.g. the work request
// settled by a service_payment / service_earning pair.
type Related struct {
	Type string
	ID   uuid.UUID
}

// Entry is one immutable, signed record of a balance change.
// Amount is positive for credits and negative for debits. The two legs of a
// peer transfer or a settlement are additive inverses sharing the same
// Related reference.
type Entry struct {
	ID                int64             `json:"id"`
	AccountID         uuid.UUID         `json:"account_id"`
	Amount            int64             `json:"amount"`
	Reason            Reason            `json:"reason"`
	RelatedEntityType *string           `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID        `json:"related_entity_id,omitempty"`
	Meta              map[string]string `json:"meta,omitempty"`
	CorrelationID     string            `json:"correlation_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// NewEntry builds an unpersisted entry; the repository assigns the id
func NewEntry(accountID uuid.UUID, amount int64, reason Reason, related *Related) *Entry {
	e := &Entry{
		AccountID: accountID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if related != nil {
		e.RelatedEntityType = &related.Type
		id := related.ID
		e.RelatedEntityID = &id
	}
	return e
}
