// Package pipeline drives approved purchase intents through the three-stage
// payment state machine: reception, approval, payment.
//
// A run moves RECEIVED -> VALIDATING -> {REJECTED | PENDING_APPROVAL} ->
// {REJECTED | APPROVED} -> PROCESSING -> {COMPLETED | FAILED}. Stages execute
// strictly sequentially for a single run and short-circuit at the first
// rejection or failure; concurrent runs are safe because all shared policy
// state lives behind the per-identity budget book. Each stage appends a
// signed record, so a completed run carries a non-repudiable trail of who
// let the money move and why.
package pipeline

import (
	"time"

	"github.com/mbd888/spendgate/internal/decision"
	"github.com/mbd888/spendgate/internal/idgen"
	"github.com/mbd888/spendgate/internal/money"
)

// Stage names, stable identifiers used in records and integrity checks.
const (
	StageReception = "reception"
	StageApproval  = "approval"
	StagePayment   = "payment"
)

// StageOutcome is the per-stage result vocabulary. Reception uses pass/fail,
// approval uses approved/rejected, payment uses success/failed.
type StageOutcome string

const (
	OutcomePass     StageOutcome = "pass"
	OutcomeFail     StageOutcome = "fail"
	OutcomeApproved StageOutcome = "approved"
	OutcomeRejected StageOutcome = "rejected"
	OutcomeSuccess  StageOutcome = "success"
	OutcomeFailed   StageOutcome = "failed"
)

// Order is an identity-scoped purchase request, immutable once created.
type Order struct {
	ID               string    `json:"orderId"`
	Item             string    `json:"item"`
	Price            string    `json:"price"` // decimal string
	Currency         string    `json:"currency"`
	Quantity         int       `json:"quantity"`
	UserIdentity     string    `json:"userIdentity"`
	MerchantIdentity string    `json:"merchantIdentity"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Intake is the order-submission contract consumed from the transport layer.
type Intake struct {
	Intent           decision.Intent   `json:"intent"`
	Item             string            `json:"item"`
	Price            string            `json:"price"`
	Quantity         int               `json:"quantity"`
	Currency         string            `json:"currency,omitempty"`
	UserIdentity     string            `json:"userIdentity"`
	MerchantIdentity string            `json:"merchantIdentity"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// NewOrder mints an immutable order from an intake request. The order id is
// generated once and never reused.
func NewOrder(in *Intake) *Order {
	currency := in.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	return &Order{
		ID:               idgen.Order(),
		Item:             in.Item,
		Price:            in.Price,
		Currency:         currency,
		Quantity:         quantity,
		UserIdentity:     in.UserIdentity,
		MerchantIdentity: in.MerchantIdentity,
		CreatedAt:        time.Now().UTC(),
	}
}

// StageRecord is one stage invocation's result, append-only within a run.
type StageRecord struct {
	Stage         string       `json:"stageName"`
	Role          string       `json:"stageRole"`
	Outcome       StageOutcome `json:"outcome"`
	Message       string       `json:"message,omitempty"`
	Attestation   string       `json:"attestationSignature,omitempty"`
	SettlementRef string       `json:"settlementRef,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	DurationMs    int64        `json:"durationMs"`
}

// Stages holds the records of the stages that actually executed. Callers
// must not assume all three are present: a short-circuited run stops early.
type Stages struct {
	Reception *StageRecord `json:"reception,omitempty"`
	Approval  *StageRecord `json:"approval,omitempty"`
	Payment   *StageRecord `json:"payment,omitempty"`
}

// PipelineRun is the unit of work owned by exactly one Process call. It is
// not durable state; once returned to the caller it is never mutated again.
type PipelineRun struct {
	ID             string    `json:"runId"`
	OrderID        string    `json:"orderId"`
	Order          *Order    `json:"order"`
	Status         Status    `json:"status"`
	Stages         Stages    `json:"stages"`
	PrecedingStage string    `json:"precedingStage,omitempty"`
	SettlementRef  string    `json:"settlementRef,omitempty"`
	TerminalError  string    `json:"terminalError,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`

	// reservationRef is the budget hold taken by the approval stage,
	// committed or released by the orchestrator at run end.
	reservationRef string
}

// newRun creates a run in the initial state.
func newRun(order *Order) *PipelineRun {
	return &PipelineRun{
		ID:        idgen.Run(),
		OrderID:   order.ID,
		Order:     order,
		Status:    StatusReceived,
		StartedAt: time.Now().UTC(),
	}
}

// record appends a stage record and updates the preceding-stage pointer the
// next stage will verify.
func (r *PipelineRun) record(rec *StageRecord) {
	switch rec.Stage {
	case StageReception:
		r.Stages.Reception = rec
	case StageApproval:
		r.Stages.Approval = rec
	case StagePayment:
		r.Stages.Payment = rec
	}
	r.PrecedingStage = rec.Stage
}
