package settlement

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mbd888/spendgate/internal/circuitbreaker"
)

// Guarded wraps an Executor with a per-destination circuit breaker. Transport
// errors trip the circuit; a transfer the executor attempted and reported as
// failed does not, since the executor itself is reachable.
type Guarded struct {
	inner   Executor
	breaker *circuitbreaker.Breaker
}

// NewGuarded wraps executor; the circuit opens after threshold consecutive
// transport failures per destination and probes again after openDuration.
func NewGuarded(inner Executor, threshold int, openDuration time.Duration) *Guarded {
	return &Guarded{
		inner:   inner,
		breaker: circuitbreaker.New(threshold, openDuration),
	}
}

func (g *Guarded) ExecuteTransfer(ctx context.Context, destination, amount, assetRef string) (*Result, error) {
	if !g.breaker.Allow(destination) {
		return nil, fmt.Errorf("%w: circuit open for %s", ErrUnavailable, destination)
	}

	result, err := g.inner.ExecuteTransfer(ctx, destination, amount, assetRef)
	if err != nil {
		g.breaker.RecordFailure(destination)
		return nil, err
	}
	g.breaker.RecordSuccess(destination)
	return result, nil
}

// State reports the circuit state for a destination.
func (g *Guarded) State(destination string) circuitbreaker.State {
	return g.breaker.State(destination)
}

// Close releases the wrapped executor's resources when it holds any.
func (g *Guarded) Close() error {
	if closer, ok := g.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

var _ Executor = (*Guarded)(nil)
