// Package decision implements the weighted rule engine that gates purchase
// intents before they enter the payment pipeline.
//
// Every intent is evaluated against a fixed, ordered set of independent
// checks — intent validity, amount bounds, rolling daily limit, balance
// sufficiency, order frequency, and temporal policy. Each check is a pure
// function producing a weighted reasoning step; the engine aggregates the
// steps into an explainable verdict. There is no learned model here: the
// engine is deterministic and every verdict carries its full reasoning.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Verdict is the engine's conclusion for a purchase intent.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictConfirm Verdict = "confirm" // requester must re-affirm
	VerdictDelay   Verdict = "delay"   // reserved for schedulers layered on top
)

// Outcome is the result of a single check.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeWarn Outcome = "warn"
	OutcomeFail Outcome = "fail"
)

// RiskTier is a coarse categorical summary of the reasoning outcomes.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

// Intent classifies what the requester is trying to do.
type Intent string

const (
	IntentPurchase Intent = "purchase"
	IntentCancel   Intent = "cancel"
)

// Check names, stable identifiers used in reasoning and audit rows.
const (
	CheckIntent    = "intent_validity"
	CheckAmount    = "amount_bounds"
	CheckDaily     = "daily_limit"
	CheckBalance   = "balance_sufficiency"
	CheckFrequency = "order_frequency"
	CheckTemporal  = "temporal_policy"
)

// ErrInvalidContext wraps context validation failures surfaced before any
// check runs.
var ErrInvalidContext = errors.New("decision: invalid evaluation context")

// Step is one named, weighted check result. Never mutated after creation.
type Step struct {
	Check   string  `json:"check"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail"`
	Weight  float64 `json:"weight"` // in (0, 1]
}

// score is the step's contribution to confidence.
func (s Step) score() float64 {
	switch s.Outcome {
	case OutcomePass:
		return s.Weight
	case OutcomeWarn:
		return s.Weight * 0.5
	default:
		return 0
	}
}

// Result is a full, explainable evaluation outcome.
type Result struct {
	ID          string    `json:"id"`
	Identity    string    `json:"identity"`
	Verdict     Verdict   `json:"decision"`
	Confidence  float64   `json:"confidence"` // weighted pass rate in [0,1]
	RiskTier    RiskTier  `json:"riskTier"`
	Reasoning   []Step    `json:"reasoning"`
	Summary     string    `json:"summary"`
	Suggestions []string  `json:"suggestions,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
	DurationMs  int64     `json:"evaluationDurationMs"`
}

// OrderContext carries the data needed to evaluate one purchase intent.
// Ledger and tracker values are snapshots taken by the caller; the engine
// never reads shared state directly.
type OrderContext struct {
	Intent       Intent    `json:"intent"`
	Item         string    `json:"item"`
	Price        string    `json:"price"` // decimal string
	Quantity     int       `json:"quantity"`
	Identity     string    `json:"identity"`
	RecentOrders int       `json:"recentOrders"` // attempts within the tracking window
	WindowSpent  string    `json:"windowSpent"`  // committed + reserved rolling spend
	Balance      string    `json:"balance"`      // available settlement balance
	Now          time.Time `json:"now"`
}

// validate rejects malformed contexts before any check runs.
func (oc *OrderContext) validate() error {
	if oc == nil {
		return fmt.Errorf("%w: nil context", ErrInvalidContext)
	}
	switch oc.Intent {
	case IntentPurchase, IntentCancel:
	default:
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidContext, oc.Intent)
	}
	if oc.Item == "" {
		return fmt.Errorf("%w: item is required", ErrInvalidContext)
	}
	if oc.Price == "" {
		return fmt.Errorf("%w: price is required", ErrInvalidContext)
	}
	if oc.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidContext)
	}
	if oc.Identity == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidContext)
	}
	if oc.Now.IsZero() {
		return fmt.Errorf("%w: evaluation time is required", ErrInvalidContext)
	}
	return nil
}

// Store persists evaluation results for the audit trail.
type Store interface {
	Record(ctx context.Context, result *Result) error
	ListByIdentity(ctx context.Context, identity string, limit int) ([]*Result, error)
}

// AttemptRecorder registers order attempts for frequency tracking. The
// budget book satisfies this.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, identity string) error
}
