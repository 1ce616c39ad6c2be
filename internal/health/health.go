// Package health runs named subsystem probes for the health endpoints.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds each probe.
const DefaultTimeout = 2 * time.Second

// Status is one probe's result.
type Status struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Required  bool   `json:"required"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Checker probes one subsystem. It should honor ctx cancellation.
type Checker func(ctx context.Context) Status

type probe struct {
	name     string
	required bool
	check    Checker
}

// Registry holds probes. A failing required probe makes the service
// unready; a failing optional one only degrades it (for example
// simulation mode when no model is loaded).
type Registry struct {
	mu      sync.RWMutex
	probes  []probe
	timeout time.Duration
}

// NewRegistry creates an empty registry with DefaultTimeout per probe.
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultTimeout}
}

// WithTimeout overrides the per-probe deadline.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a required probe.
func (r *Registry) Register(name string, check Checker) {
	r.add(probe{name: name, required: true, check: check})
}

// RegisterOptional adds a probe whose failure never blocks readiness.
func (r *Registry) RegisterOptional(name string, check Checker) {
	r.add(probe{name: name, check: check})
}

func (r *Registry) add(p probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes = append(r.probes, p)
}

// CheckAll runs every probe concurrently and returns their statuses in
// registration order.
func (r *Registry) CheckAll(ctx context.Context) (ready, degraded bool, statuses []Status) {
	r.mu.RLock()
	probes := append([]probe(nil), r.probes...)
	r.mu.RUnlock()

	statuses = make([]Status, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses[i] = r.run(ctx, p)
		}()
	}
	wg.Wait()

	ready = true
	for _, st := range statuses {
		if st.Healthy {
			continue
		}
		degraded = true
		if st.Required {
			ready = false
		}
	}
	return ready, degraded, statuses
}

func (r *Registry) run(ctx context.Context, p probe) Status {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	st := p.check(ctx)
	if st.Name == "" {
		st.Name = p.name
	}
	st.Required = p.required
	st.LatencyMS = time.Since(start).Milliseconds()
	if st.Healthy && ctx.Err() != nil {
		st.Healthy = false
		st.Detail = "timed out"
	}
	return st
}
