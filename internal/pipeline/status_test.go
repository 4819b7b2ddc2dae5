package pipeline

import "testing"

func TestStatusTransitions(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusReceived, StatusValidating},
		{StatusValidating, StatusRejected},
		{StatusValidating, StatusPendingApproval},
		{StatusPendingApproval, StatusRejected},
		{StatusPendingApproval, StatusApproved},
		{StatusApproved, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
	}
	for _, tc := range legal {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusReceived, StatusApproved},       // skipping a stage
		{StatusReceived, StatusCompleted},
		{StatusValidating, StatusProcessing},
		{StatusApproved, StatusRejected},
		{StatusApproved, StatusCompleted},
		{StatusCompleted, StatusProcessing},    // re-entering a prior state
		{StatusRejected, StatusValidating},
		{StatusFailed, StatusProcessing},
		{StatusPendingApproval, StatusReceived},
	}
	for _, tc := range illegal {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusRejected, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusReceived, StatusValidating, StatusPendingApproval, StatusApproved, StatusProcessing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	run := newRun(&Order{ID: "ord_x"})
	if err := run.transition(StatusCompleted); err == nil {
		t.Error("RECEIVED -> COMPLETED should be rejected")
	}
	if run.Status != StatusReceived {
		t.Errorf("status mutated on illegal transition: %s", run.Status)
	}
}
