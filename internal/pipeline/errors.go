package pipeline

import "fmt"

// The error taxonomy callers and stages distinguish on. Validation and
// policy failures are resolved inside the stage that detects them (the run
// goes to REJECTED and no error escapes the stage boundary); integrity,
// execution, and system errors surface on the run or from Process itself.

// ValidationError reports a structurally malformed order field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// PolicyViolation reports a limit, currency, or balance failure.
type PolicyViolation struct {
	Rule   string
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation: %s: %s", e.Rule, e.Reason)
}

// RateLimitExceeded reports the per-identity order frequency cap being hit.
type RateLimitExceeded struct {
	Identity string
	Cap      int
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: cap %d orders per window", e.Identity, e.Cap)
}

// IntegrityError reports a stage invoked out of order: the run's preceding
// stage does not match what the stage requires. It indicates a structural
// bug in the caller, not a policy outcome.
type IntegrityError struct {
	Stage    string
	Expected string
	Got      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("pipeline integrity: stage %s requires preceding stage %q, got %q",
		e.Stage, e.Expected, e.Got)
}

// ExecutionError preserves the settlement executor's reported reason
// verbatim for operator diagnosis.
type ExecutionError struct {
	Reason string
}

func (e *ExecutionError) Error() string {
	return "settlement execution failed: " + e.Reason
}

// SystemError reports that the orchestrator or a collaborator is
// unavailable; the order itself was never judged.
type SystemError struct {
	Component string
	Err       error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("system error in %s: %v", e.Component, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }
