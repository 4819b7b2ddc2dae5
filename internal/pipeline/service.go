package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mbd888/spendgate/internal/budget"
	"github.com/mbd888/spendgate/internal/decision"
	"github.com/mbd888/spendgate/internal/metrics"
	"github.com/mbd888/spendgate/internal/money"
	"github.com/mbd888/spendgate/internal/settlement"
)

// Submission is the response of the order-submission contract.
type Submission struct {
	Decision      *decision.Result `json:"decision"`
	Run           *PipelineRun     `json:"pipelineRun,omitempty"`
	SettlementRef string           `json:"settlementRef,omitempty"`
	ErrorMessage  string           `json:"errorMessage,omitempty"`
}

// Service composes the advisory decision engine with the authoritative
// pipeline: evaluate first, run the stages only on an approving verdict.
type Service struct {
	engine   *decision.Engine
	orch     *Orchestrator
	book     *budget.Book
	balances settlement.BalanceProvider
	logger   *slog.Logger
}

// NewService wires the intake surface. All collaborators are required; a
// missing one is a SystemError at construction, not at request time.
func NewService(engine *decision.Engine, orch *Orchestrator, book *budget.Book, balances settlement.BalanceProvider, logger *slog.Logger) (*Service, error) {
	if engine == nil || orch == nil || book == nil || balances == nil {
		return nil, &SystemError{Component: "service", Err: errors.New("missing collaborator")}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, orch: orch, book: book, balances: balances, logger: logger}, nil
}

// Submit evaluates an intake request and, when approved, drives it through
// the pipeline. Non-approving verdicts return the decision alone; the error
// return is reserved for invalid input and system failures.
func (s *Service) Submit(ctx context.Context, in *Intake) (*Submission, error) {
	if in == nil {
		return nil, &SystemError{Component: "service", Err: errors.New("nil intake")}
	}
	if in.Intent == "" {
		in.Intent = decision.IntentPurchase
	}

	order := NewOrder(in)
	octx, err := s.buildContext(ctx, in, order)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Evaluate(ctx, octx)
	if err != nil {
		return nil, err
	}
	metrics.DecisionsTotal.WithLabelValues(string(result.Verdict), string(result.RiskTier)).Inc()
	metrics.DecisionConfidence.Observe(result.Confidence)

	sub := &Submission{Decision: result}
	if result.Verdict != decision.VerdictApprove {
		sub.ErrorMessage = result.Summary
		s.logger.Info("order stopped by decision engine",
			"orderId", order.ID, "identity", order.UserIdentity,
			"verdict", result.Verdict, "confidence", result.Confidence)
		return sub, nil
	}

	run, err := s.orch.Process(ctx, order)
	sub.Run = run
	if run != nil {
		sub.SettlementRef = run.SettlementRef
		if run.TerminalError != "" {
			sub.ErrorMessage = run.TerminalError
		}
	}
	return sub, err
}

// buildContext snapshots the shared policy state for one evaluation.
func (s *Service) buildContext(ctx context.Context, in *Intake, order *Order) (*decision.OrderContext, error) {
	snap, err := s.book.Snapshot(ctx, order.UserIdentity)
	if err != nil {
		return nil, &SystemError{Component: "budget book", Err: err}
	}
	committed, _ := money.Parse(snap.Committed)
	reserved, _ := money.Parse(snap.Reserved)

	attempts, err := s.book.AttemptCount(ctx, order.UserIdentity)
	if err != nil {
		return nil, &SystemError{Component: "frequency tracker", Err: err}
	}

	balance, err := s.balances.Balance(ctx, order.UserIdentity)
	if err != nil {
		return nil, &SystemError{Component: "balance provider", Err: err}
	}

	return &decision.OrderContext{
		Intent:       in.Intent,
		Item:         order.Item,
		Price:        order.Price,
		Quantity:     order.Quantity,
		Identity:     order.UserIdentity,
		RecentOrders: attempts,
		WindowSpent:  money.Format(money.Add(committed, reserved)),
		Balance:      balance,
		Now:          time.Now(),
	}, nil
}
