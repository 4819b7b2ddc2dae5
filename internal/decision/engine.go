package decision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mbd888/spendgate/internal/idgen"
)

// Default verdict thresholds.
const (
	DefaultAutoApproveThreshold = 0.80
	DefaultAutoRejectThreshold  = 0.30
)

// Engine evaluates purchase intents against the configured policy limits.
// Evaluate is pure given its inputs, except that it registers the attempt
// with the frequency recorder and persists the result for audit.
type Engine struct {
	limits   *limits
	approve  float64
	reject   float64
	store    Store
	recorder AttemptRecorder
	logger   *slog.Logger
}

// NewEngine creates a decision engine. store may be nil to disable the
// audit trail; recorder may be nil to disable attempt registration.
func NewEngine(l Limits, store Store) (*Engine, error) {
	parsed, err := parseLimits(l)
	if err != nil {
		return nil, err
	}
	return &Engine{
		limits:  parsed,
		approve: DefaultAutoApproveThreshold,
		reject:  DefaultAutoRejectThreshold,
		store:   store,
		logger:  slog.Default(),
	}, nil
}

// WithThresholds overrides the auto-approve and auto-reject thresholds.
func (e *Engine) WithThresholds(approve, reject float64) *Engine {
	e.approve = approve
	e.reject = reject
	return e
}

// WithRecorder sets the frequency recorder notified on each evaluation.
func (e *Engine) WithRecorder(r AttemptRecorder) *Engine {
	e.recorder = r
	return e
}

// WithLogger sets a structured logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l
	return e
}

// Evaluate runs all checks against the context and aggregates them into an
// explainable verdict. Malformed contexts return ErrInvalidContext before
// any check runs; well-formed contexts never error.
func (e *Engine) Evaluate(ctx context.Context, oc *OrderContext) (*Result, error) {
	start := time.Now()

	if err := oc.validate(); err != nil {
		return nil, err
	}

	// Register the attempt so subsequent evaluations see it. Best-effort:
	// a tracker failure must not block the verdict.
	if e.recorder != nil {
		if err := e.recorder.RecordAttempt(ctx, oc.Identity); err != nil {
			e.logger.Warn("failed to record order attempt",
				"identity", oc.Identity, "error", err)
		}
	}

	steps := make([]Step, 0, len(checks))
	for _, check := range checks {
		steps = append(steps, check(oc, e.limits))
	}

	confidence := confidenceOf(steps)
	verdict := e.verdictOf(oc, steps, confidence)

	result := &Result{
		ID:          idgen.WithPrefix("dec_"),
		Identity:    oc.Identity,
		Verdict:     verdict,
		Confidence:  confidence,
		RiskTier:    tierOf(steps, confidence),
		Reasoning:   steps,
		Summary:     summarize(verdict, confidence, steps),
		Suggestions: suggest(steps),
		EvaluatedAt: start,
		DurationMs:  time.Since(start).Milliseconds(),
	}

	// Persist asynchronously (best-effort audit trail).
	if e.store != nil {
		go func() {
			if err := e.store.Record(context.Background(), result); err != nil {
				e.logger.Warn("failed to persist decision", "id", result.ID, "error", err)
			}
		}()
	}

	return result, nil
}

// confidenceOf is the weighted pass rate across all steps, rounded to two
// decimals.
func confidenceOf(steps []Step) float64 {
	var score, weight float64
	for _, s := range steps {
		score += s.score()
		weight += s.Weight
	}
	if weight == 0 {
		return 0
	}
	return math.Round(score/weight*100) / 100
}

// verdictOf applies the decision rules in precedence order.
func (e *Engine) verdictOf(oc *OrderContext, steps []Step, confidence float64) Verdict {
	warns := 0
	for _, s := range steps {
		// A critical failure short-circuits regardless of aggregate confidence.
		if s.Outcome == OutcomeFail && s.Weight >= criticalWeight {
			return VerdictReject
		}
		if s.Outcome == OutcomeWarn {
			warns++
		}
	}
	if oc.Intent == IntentCancel {
		return VerdictReject
	}
	if confidence >= e.approve {
		return VerdictApprove
	}
	if confidence < e.reject {
		return VerdictReject
	}
	if warns >= 2 {
		return VerdictConfirm
	}
	return VerdictApprove
}

// tierOf maps reasoning outcomes to a coarse risk tier.
func tierOf(steps []Step, confidence float64) RiskTier {
	fails, warns := 0, 0
	for _, s := range steps {
		switch s.Outcome {
		case OutcomeFail:
			fails++
		case OutcomeWarn:
			warns++
		}
	}
	switch {
	case fails > 0:
		return RiskCritical
	case warns >= 3:
		return RiskHigh
	case warns >= 1 || confidence < 0.7:
		return RiskMedium
	default:
		return RiskLow
	}
}

// summarize produces a one-line human explanation naming the checks that
// drove the verdict.
func summarize(verdict Verdict, confidence float64, steps []Step) string {
	var flagged []string
	for _, s := range steps {
		if s.Outcome == OutcomeFail || s.Outcome == OutcomeWarn {
			flagged = append(flagged, fmt.Sprintf("%s %s: %s", s.Check, s.Outcome, s.Detail))
		}
	}
	if len(flagged) == 0 {
		return fmt.Sprintf("%s (confidence %.2f): all checks passed", verdict, confidence)
	}
	return fmt.Sprintf("%s (confidence %.2f): %s", verdict, confidence, strings.Join(flagged, "; "))
}

// suggest maps failing checks to deduplicated remediation hints.
func suggest(steps []Step) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range steps {
		if s.Outcome != OutcomeFail {
			continue
		}
		hint, ok := suggestions[s.Check]
		if !ok || seen[hint] {
			continue
		}
		seen[hint] = true
		out = append(out, hint)
	}
	return out
}
