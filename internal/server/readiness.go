package server

import (
	"context"
	"time"

	"github.com/knoguchi/talentsearch/internal/health"
)

// DefaultProbeTimeout bounds one readiness check.
const DefaultProbeTimeout = 3 * time.Second

// Pinger reports reachability of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusReporter reports the status of a lazily loaded model.
type StatusReporter interface {
	Status(ctx context.Context) health.Status
}

// Report is the outcome of a readiness check.
type Report struct {
	Status     health.Status            `json:"status"`
	Components map[string]health.Status `json:"components"`
	Error      string                   `json:"error,omitempty"`
}

// Probe checks the vector store and the model backends.
//
// The service is unavailable only when the vector store cannot be reached.
// A model without its backend still answers through its fallback, so it
// makes the service degraded rather than unavailable.
type Probe struct {
	store   Pinger
	models  map[string]StatusReporter
	timeout time.Duration
}

// NewProbe creates a Probe. models maps a component name to its reporter.
func NewProbe(store Pinger, models map[string]StatusReporter) *Probe {
	return &Probe{store: store, models: models, timeout: DefaultProbeTimeout}
}

// Check runs the probe.
func (p *Probe) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	r := Report{Status: health.Ready, Components: make(map[string]health.Status, len(p.models)+1)}

	if p.store != nil {
		if err := p.store.Ping(ctx); err != nil {
			r.Components["vector_store"] = health.Unavailable
			r.Status = health.Unavailable
			r.Error = err.Error()
		} else {
			r.Components["vector_store"] = health.Ready
		}
	}

	for name, m := range p.models {
		s := m.Status(ctx)
		r.Components[name] = s
		if s != health.Ready {
			r.Status = health.Worst(r.Status, health.Degraded)
		}
	}
	return r
}
