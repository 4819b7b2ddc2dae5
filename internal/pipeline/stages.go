package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/mbd888/spendgate/internal/attest"
	"github.com/mbd888/spendgate/internal/budget"
	"github.com/mbd888/spendgate/internal/metrics"
	"github.com/mbd888/spendgate/internal/money"
	"github.com/mbd888/spendgate/internal/settlement"
	"github.com/mbd888/spendgate/internal/validation"
)

// signPayload canonicalizes and signs a stage attestation payload.
func signPayload(signer attest.Signer, payload any) (string, error) {
	msg, err := attest.Canonical(payload)
	if err != nil {
		return "", err
	}
	return signer.Sign(msg)
}

// stageTimer wraps a stage body with duration accounting.
func stageTimer(stage string, rec *StageRecord) func() {
	start := time.Now()
	rec.Stage = stage
	rec.Timestamp = start.UTC()
	return func() {
		rec.DurationMs = time.Since(start).Milliseconds()
		metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// Reception validates structural well-formedness before any policy check
// runs. A malformed order rejects the run here and nothing downstream ever
// sees it.
type Reception struct {
	logger *slog.Logger
}

// NewReception creates the reception stage.
func NewReception(logger *slog.Logger) *Reception {
	return &Reception{logger: logger}
}

func (s *Reception) Execute(ctx context.Context, run *PipelineRun) error {
	rec := &StageRecord{Role: "structural validation"}
	done := stageTimer(StageReception, rec)
	defer done()
	defer run.record(rec)

	if err := run.transition(StatusValidating); err != nil {
		return &SystemError{Component: StageReception, Err: err}
	}

	if verr := validateOrder(run.Order); verr != nil {
		rec.Outcome = OutcomeFail
		rec.Message = verr.Error()
		run.TerminalError = verr.Error()
		s.logger.Info("order rejected at reception",
			"orderId", run.OrderID, "reason", verr.Error())
		return run.transition(StatusRejected)
	}

	rec.Outcome = OutcomePass
	rec.Message = "order is structurally well-formed"
	return run.transition(StatusPendingApproval)
}

func validateOrder(o *Order) *ValidationError {
	if o.Item == "" {
		return &ValidationError{Field: "item", Reason: "must not be empty"}
	}
	if _, ok := money.ParsePositive(o.Price); !ok {
		return &ValidationError{Field: "price", Reason: "must be a positive decimal amount"}
	}
	if !money.AcceptedCurrency(o.Currency) {
		return &ValidationError{Field: "currency", Reason: "unsupported currency code " + o.Currency}
	}
	if o.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if !validation.IsValidIdentity(o.UserIdentity) {
		return &ValidationError{Field: "userIdentity", Reason: "not a valid identity"}
	}
	if !validation.IsValidIdentity(o.MerchantIdentity) {
		return &ValidationError{Field: "merchantIdentity", Reason: "not a valid identity"}
	}
	return nil
}

// Approval is the authoritative policy gate. The decision engine's
// pre-filter is advisory; this stage re-checks the per-transaction ceiling
// and takes the budget reservation with its own ledger read.
type Approval struct {
	book     *budget.Book
	signer   attest.Signer
	maxOrder *big.Int
	logger   *slog.Logger
}

// NewApproval creates the approval stage. maxOrder is the single-transaction
// ceiling as a decimal string.
func NewApproval(book *budget.Book, signer attest.Signer, maxOrder string, logger *slog.Logger) (*Approval, error) {
	ceiling, ok := money.ParsePositive(maxOrder)
	if !ok {
		return nil, &SystemError{Component: StageApproval, Err: errors.New("invalid per-transaction ceiling " + maxOrder)}
	}
	return &Approval{book: book, signer: signer, maxOrder: ceiling, logger: logger}, nil
}

func (s *Approval) Execute(ctx context.Context, run *PipelineRun) error {
	rec := &StageRecord{Role: "policy gate"}
	done := stageTimer(StageApproval, rec)
	defer done()
	defer run.record(rec)

	if run.PrecedingStage != StageReception {
		ierr := &IntegrityError{Stage: StageApproval, Expected: StageReception, Got: run.PrecedingStage}
		rec.Outcome = OutcomeRejected
		rec.Message = ierr.Error()
		run.TerminalError = ierr.Error()
		// Out-of-order invocation is a structural bug, not a policy call.
		s.logger.Error("pipeline integrity violation",
			"runId", run.ID, "stage", StageApproval, "precedingStage", run.PrecedingStage)
		// The run is already structurally broken; force the terminal state
		// rather than trusting the transition table.
		run.Status = StatusRejected
		return nil
	}

	price, ok := money.ParsePositive(run.Order.Price)
	if !ok || price.Cmp(s.maxOrder) > 0 {
		perr := &PolicyViolation{
			Rule: "single-transaction ceiling",
			Reason: "price " + run.Order.Price + " exceeds per-transaction ceiling " +
				money.Format(s.maxOrder),
		}
		rec.Outcome = OutcomeRejected
		rec.Message = perr.Error()
		run.TerminalError = perr.Error()
		return run.transition(StatusRejected)
	}

	ref, err := s.book.Reserve(ctx, run.Order.UserIdentity, run.Order.Price)
	if err != nil {
		if errors.Is(err, budget.ErrLimitExceeded) {
			perr := &PolicyViolation{
				Rule:   "rolling spend ceiling",
				Reason: "committed plus pending spend would exceed the rolling-window ceiling",
			}
			rec.Outcome = OutcomeRejected
			rec.Message = perr.Error()
			run.TerminalError = perr.Error()
			return run.transition(StatusRejected)
		}
		serr := &SystemError{Component: "budget book", Err: err}
		rec.Outcome = OutcomeRejected
		rec.Message = serr.Error()
		run.TerminalError = serr.Error()
		s.logger.Error("budget reservation failed", "runId", run.ID, "error", err)
		return run.transition(StatusRejected)
	}
	run.reservationRef = ref

	signature, err := signPayload(s.signer, map[string]any{
		"orderId":   run.OrderID,
		"amount":    run.Order.Price,
		"timestamp": rec.Timestamp.Unix(),
	})
	if err != nil {
		// Signing failure is a stage failure, never silently ignored.
		serr := &SystemError{Component: "attestation signer", Err: err}
		rec.Outcome = OutcomeRejected
		rec.Message = serr.Error()
		run.TerminalError = serr.Error()
		s.logger.Error("approval attestation failed", "runId", run.ID, "error", err)
		return run.transition(StatusRejected)
	}

	rec.Outcome = OutcomeApproved
	rec.Message = "order within policy limits, budget reserved"
	rec.Attestation = signature
	return run.transition(StatusApproved)
}

// Payment invokes the external settlement executor. Its single call is final
// for the run: no internal retry, no timeout beyond the caller's context.
type Payment struct {
	executor settlement.Executor
	signer   attest.Signer
	assetRef string
	logger   *slog.Logger
}

// NewPayment creates the payment stage. assetRef names the settled asset
// (e.g. the token contract address, or a plain currency code for simulated
// settlement).
func NewPayment(executor settlement.Executor, signer attest.Signer, assetRef string, logger *slog.Logger) *Payment {
	return &Payment{executor: executor, signer: signer, assetRef: assetRef, logger: logger}
}

func (s *Payment) Execute(ctx context.Context, run *PipelineRun) error {
	rec := &StageRecord{Role: "settlement"}
	done := stageTimer(StagePayment, rec)
	defer done()
	defer run.record(rec)

	if run.PrecedingStage != StageApproval || run.Status != StatusApproved {
		ierr := &IntegrityError{Stage: StagePayment, Expected: StageApproval, Got: run.PrecedingStage}
		rec.Outcome = OutcomeFailed
		rec.Message = ierr.Error()
		run.TerminalError = ierr.Error()
		s.logger.Error("pipeline integrity violation",
			"runId", run.ID, "stage", StagePayment,
			"precedingStage", run.PrecedingStage, "status", run.Status)
		run.Status = StatusRejected
		return nil
	}

	if err := run.transition(StatusProcessing); err != nil {
		return &SystemError{Component: StagePayment, Err: err}
	}

	result, err := s.executor.ExecuteTransfer(ctx, run.Order.MerchantIdentity, run.Order.Price, s.assetRef)
	if err != nil {
		serr := &SystemError{Component: "settlement executor", Err: err}
		rec.Outcome = OutcomeFailed
		rec.Message = serr.Error()
		run.TerminalError = serr.Error()
		s.logger.Error("settlement executor unavailable", "runId", run.ID, "error", err)
		return run.transition(StatusFailed)
	}
	if !result.Success {
		// Keep the executor's reason verbatim.
		xerr := &ExecutionError{Reason: result.FailureReason}
		rec.Outcome = OutcomeFailed
		rec.Message = xerr.Error()
		run.TerminalError = xerr.Error()
		return run.transition(StatusFailed)
	}

	signature, err := signPayload(s.signer, map[string]any{
		"orderId":       run.OrderID,
		"settlementRef": result.SettlementRef,
		"timestamp":     rec.Timestamp.Unix(),
	})
	if err != nil {
		serr := &SystemError{Component: "attestation signer", Err: err}
		rec.Outcome = OutcomeFailed
		rec.Message = serr.Error()
		run.TerminalError = serr.Error()
		s.logger.Error("payment attestation failed", "runId", run.ID, "error", err)
		return run.transition(StatusFailed)
	}

	rec.Outcome = OutcomeSuccess
	rec.Message = "settlement executed"
	rec.Attestation = signature
	rec.SettlementRef = result.SettlementRef
	run.SettlementRef = result.SettlementRef
	return run.transition(StatusCompleted)
}
