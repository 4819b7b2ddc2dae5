// Package settlement abstracts the external payment executor the pipeline
// delegates transfers to.
//
// The orchestrator never retries a settlement call: one invocation's result
// is final for its pipeline run. Implementations must therefore be safe to
// call exactly once per run.
package settlement

import (
	"context"
	"errors"
)

var (
	ErrInvalidDestination = errors.New("settlement: invalid destination")
	ErrInvalidAmount      = errors.New("settlement: invalid amount")
	ErrUnavailable        = errors.New("settlement: executor unavailable")
)

// Result reports the outcome of a single transfer attempt.
type Result struct {
	Success       bool   `json:"success"`
	SettlementRef string `json:"settlementRef,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// Executor performs the actual value transfer.
//
// A returned error means the executor itself was unreachable or misused
// (SystemError territory); a Result with Success=false means the transfer
// was attempted and failed, with FailureReason preserved verbatim.
type Executor interface {
	ExecuteTransfer(ctx context.Context, destination, amount, assetRef string) (*Result, error)
}

// BalanceProvider exposes the available settlement balance for an identity.
type BalanceProvider interface {
	Balance(ctx context.Context, identity string) (string, error)
}
