package pipeline

import "fmt"

// Status is the authoritative state of a pipeline run. The transition table
// is exhaustive: anything it does not list is illegal and rejected by
// transition, never trusted to caller discipline.
type Status string

const (
	StatusReceived        Status = "RECEIVED"
	StatusValidating      Status = "VALIDATING"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusProcessing      Status = "PROCESSING"
	StatusCompleted       Status = "COMPLETED"
	StatusRejected        Status = "REJECTED"
	StatusFailed          Status = "FAILED"
)

var transitions = map[Status][]Status{
	StatusReceived:        {StatusValidating},
	StatusValidating:      {StatusRejected, StatusPendingApproval},
	StatusPendingApproval: {StatusRejected, StatusApproved},
	StatusApproved:        {StatusProcessing},
	StatusProcessing:      {StatusCompleted, StatusFailed},
	StatusCompleted:       {},
	StatusRejected:        {},
	StatusFailed:          {},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// transition advances the run's status, enforcing the state machine.
func (r *PipelineRun) transition(next Status) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s for run %s", r.Status, next, r.ID)
	}
	r.Status = next
	return nil
}
