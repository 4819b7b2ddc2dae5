package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mbd888/spendgate/internal/budget"
	"github.com/mbd888/spendgate/internal/metrics"
	"github.com/mbd888/spendgate/internal/traces"
)

// stageAgent is one step of the pipeline. A returned error means the stage
// machinery itself broke; policy and execution outcomes are expressed on the
// run's status instead.
type stageAgent interface {
	Execute(ctx context.Context, run *PipelineRun) error
}

// Orchestrator drives a run through the stages strictly sequentially,
// short-circuiting at the first terminal status. It owns the budget
// reservation lifecycle: commit on COMPLETED, release on anything else.
type Orchestrator struct {
	reception *Reception
	approval  *Approval
	payment   *Payment
	book      *budget.Book
	logger    *slog.Logger
}

// NewOrchestrator wires the three stages over a shared budget book.
func NewOrchestrator(reception *Reception, approval *Approval, payment *Payment, book *budget.Book, logger *slog.Logger) (*Orchestrator, error) {
	if reception == nil || approval == nil || payment == nil || book == nil {
		return nil, &SystemError{Component: "orchestrator", Err: errors.New("missing stage or budget book")}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		reception: reception,
		approval:  approval,
		payment:   payment,
		book:      book,
		logger:    logger,
	}, nil
}

// Process executes the pipeline for one order and returns the finished run.
// The returned run carries only the stage records that actually executed.
// An error is returned only for system-level failures; policy rejections
// and settlement failures are reported on the run itself.
func (o *Orchestrator) Process(ctx context.Context, order *Order) (*PipelineRun, error) {
	if order == nil {
		return nil, &SystemError{Component: "orchestrator", Err: errors.New("nil order")}
	}

	ctx, span := traces.StartSpan(ctx, "pipeline.Process",
		traces.OrderID(order.ID), traces.Identity(order.UserIdentity), traces.Amount(order.Price))
	defer span.End()

	run := newRun(order)
	o.logger.Info("pipeline run started",
		"runId", run.ID, "orderId", order.ID, "identity", order.UserIdentity)

	stages := []stageAgent{o.reception, o.approval, o.payment}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			// Caller gave up before the next stage; never abandon a hold.
			o.settle(run)
			return run, err
		}
		if err := stage.Execute(ctx, run); err != nil {
			o.settle(run)
			return run, err
		}
		if run.Status.Terminal() {
			break
		}
	}

	o.settle(run)
	run.FinishedAt = time.Now().UTC()
	metrics.PipelineRunsTotal.WithLabelValues(string(run.Status)).Inc()
	o.logger.Info("pipeline run finished",
		"runId", run.ID, "orderId", order.ID, "status", run.Status,
		"settlementRef", run.SettlementRef)
	return run, nil
}

// settle resolves the budget reservation for a finished run: committed
// exactly once on COMPLETED, released otherwise.
func (o *Orchestrator) settle(run *PipelineRun) {
	if run.reservationRef == "" {
		return
	}
	ref := run.reservationRef
	run.reservationRef = ""

	// Reservation bookkeeping must survive caller cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if run.Status == StatusCompleted {
		if err := o.book.Commit(ctx, run.Order.UserIdentity, ref); err != nil {
			// Settled on-chain but not recorded: needs operator attention.
			o.logger.Error("budget commit failed after completed settlement",
				"runId", run.ID, "ref", ref, "error", err)
			return
		}
		metrics.BudgetCommitsTotal.Inc()
		return
	}
	if err := o.book.Release(ctx, run.Order.UserIdentity, ref); err != nil {
		o.logger.Error("budget release failed",
			"runId", run.ID, "ref", ref, "status", run.Status, "error", err)
	}
}
