// Package health runs liveness probes for the service's subsystems.
package health

import (
	"context"
	"sync"
)

// Status is the reported health of one subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Probe inspects a subsystem. A non-nil error marks it unhealthy and the
// error text becomes the status detail; on success detail describes the
// subsystem's mode (for example "postgres" or "in-memory").
type Probe func(ctx context.Context) (detail string, err error)

// Registry holds named probes and runs them in registration order.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	probes map[string]Probe
}

func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Probe)}
}

// Register adds a probe under name, replacing any previous probe with the
// same name.
func (r *Registry) Register(name string, p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.probes[name]; !exists {
		r.names = append(r.names, name)
	}
	r.probes[name] = p
}

// CheckAll runs every probe and reports whether all subsystems are healthy,
// along with the per-subsystem statuses.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	probes := make(map[string]Probe, len(r.probes))
	for k, v := range r.probes {
		probes[k] = v
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		detail, err := probes[name](ctx)
		st := Status{Name: name, Healthy: err == nil, Detail: detail}
		if err != nil {
			st.Detail = err.Error()
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
