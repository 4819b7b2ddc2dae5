package settlement

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mbd888/spendgate/internal/idgen"
	"github.com/mbd888/spendgate/internal/money"
	"github.com/mbd888/spendgate/internal/validation"
)

// FailMarker is a destination address suffix that makes the simulator report
// a failed transfer. Deterministic failures keep pipeline tests reproducible.
const FailMarker = "ff"

// Simulator is an in-memory executor and balance provider for development
// and tests. Balances are decimal strings debited on successful transfers.
type Simulator struct {
	mu       sync.Mutex
	balances map[string]string
	calls    int
}

// NewSimulator creates a simulator with no funded identities.
func NewSimulator() *Simulator {
	return &Simulator{balances: make(map[string]string)}
}

// Fund sets an identity's available balance.
func (s *Simulator) Fund(identity, amount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[validation.NormalizeIdentity(identity)] = amount
}

// Calls returns the number of transfer attempts made.
func (s *Simulator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Simulator) ExecuteTransfer(ctx context.Context, destination, amount, assetRef string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validation.IsValidIdentity(destination) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDestination, destination)
	}
	if _, ok := money.ParsePositive(amount); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if strings.HasSuffix(strings.ToLower(destination), FailMarker) {
		return &Result{
			Success:       false,
			FailureReason: "destination rejected the transfer",
		}, nil
	}

	return &Result{
		Success:       true,
		SettlementRef: idgen.WithPrefix("stl_"),
	}, nil
}

// Balance returns the identity's funded balance, "0.000000" when unknown.
func (s *Simulator) Balance(ctx context.Context, identity string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[validation.NormalizeIdentity(identity)]; ok {
		return b, nil
	}
	return "0.000000", nil
}

var (
	_ Executor        = (*Simulator)(nil)
	_ BalanceProvider = (*Simulator)(nil)
)
