// Package pricing resolves UCM costs for paid platform actions from a single
// versioned fee schedule. The resolver is pure: no I/O, no side effects, safe
// to call unlimited times to show a price before committing.
package pricing

import (
	"time"

	"github.com/communitymarket/ucm-ledger/internal/config"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
)

// Action is a paid platform action
type Action string

const (
	ActionServiceRequest Action = "service_request"
	ActionPartnerSearch  Action = "partner_search"
	ActionJobRequest     Action = "job_request"
	ActionEmployeeSearch Action = "employee_search"
	ActionInvestorSearch Action = "investor_search"
	ActionAdvancedSearch Action = "advanced_search"
)

// ErrUnknownActionType indicates the action has no price in the schedule
type ErrUnknownActionType struct {
	Action Action
}

func (e ErrUnknownActionType) Error() string {
	return "unknown action type: " + string(e.Action)
}

// Options modify the resolved cost of an action
type Options struct {
	Promoted bool // applies a flat promotion surcharge to service_request
}

// Quote is an itemized resolved cost
type Quote struct {
	Action    Action `json:"action"`
	Base      int64  `json:"base"`
	Promotion int64  `json:"promotion"`
	Total     int64  `json:"total"`
	Version   string `json:"version"`
}

// Schedule is the immutable fee table the resolver answers from
type Schedule struct {
	Version           string           `json:"version"`
	Fees              map[Action]int64 `json:"fees"`
	PromotionFee      int64            `json:"promotion_fee"`
	PromotionDuration time.Duration    `json:"promotion_duration"`
}

// Resolver maps actions to costs. Construct with NewResolver; zero value is
// not usable.
type Resolver struct {
	schedule Schedule
}

// NewResolver builds a resolver from the configured fee schedule
func NewResolver(cfg *config.PricingConfig) *Resolver {
	return &Resolver{
		schedule: Schedule{
			Version: cfg.Version,
			Fees: map[Action]int64{
				ActionServiceRequest: cfg.RequestFee,
				ActionPartnerSearch:  cfg.PartnerSearchFee,
				ActionJobRequest:     cfg.JobRequestFee,
				ActionEmployeeSearch: cfg.EmployeeSearchFee,
				ActionInvestorSearch: cfg.InvestorSearchFee,
				ActionAdvancedSearch: cfg.AdvancedSearchFee,
			},
			PromotionFee:      cfg.PromotionFee,
			PromotionDuration: cfg.PromotionDuration,
		},
	}
}

// Resolve returns the itemized cost of an action. The promotion surcharge is
// a flat add-on, never multiplicative, and only applies to service_request.
func (r *Resolver) Resolve(action Action, opts Options) (Quote, error) {
	base, ok := r.schedule.Fees[action]
	if !ok {
		return Quote{}, ErrUnknownActionType{Action: action}
	}

	quote := Quote{
		Action:  action,
		Base:    base,
		Total:   base,
		Version: r.schedule.Version,
	}
	if opts.Promoted && action == ActionServiceRequest {
		quote.Promotion = r.schedule.PromotionFee
		quote.Total += r.schedule.PromotionFee
	}
	return quote, nil
}

// Cost returns the total cost of an action
func (r *Resolver) Cost(action Action, opts Options) (int64, error) {
	quote, err := r.Resolve(action, opts)
	if err != nil {
		return 0, err
	}
	return quote.Total, nil
}

// PromotionDuration is the visibility window bought with a promotion fee
func (r *Resolver) PromotionDuration() time.Duration {
	return r.schedule.PromotionDuration
}

// Schedule returns a copy of the fee table for display
func (r *Resolver) Schedule() Schedule {
	fees := make(map[Action]int64, len(r.schedule.Fees))
	for action, fee := range r.schedule.Fees {
		fees[action] = fee
	}
	s := r.schedule
	s.Fees = fees
	return s
}

// feeReasons maps each paid action to its ledger reason
var feeReasons = map[Action]ledger.Reason{
	ActionServiceRequest: ledger.ReasonServiceRequestFee,
	ActionPartnerSearch:  ledger.ReasonPartnerSearchFee,
	ActionJobRequest:     ledger.ReasonJobRequestFee,
	ActionEmployeeSearch: ledger.ReasonEmployeeSearchFee,
	ActionInvestorSearch: ledger.ReasonInvestorSearchFee,
	ActionAdvancedSearch: ledger.ReasonAdvancedSearchFee,
}

// FeeReason returns the ledger reason recorded when the action's fee is
// collected
func FeeReason(action Action) (ledger.Reason, error) {
	reason, ok := feeReasons[action]
	if !ok {
		return "", ErrUnknownActionType{Action: action}
	}
	return reason, nil
}
