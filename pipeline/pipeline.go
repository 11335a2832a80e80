package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/endpoint"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/monitor"
)

// Runtime executes one pipeline run from a plan. The topology hands it a
// frozen component set and role bindings; the runtime owns everything that
// happens on the wire until the returned handle completes.
type Runtime interface {
	Run(ctx context.Context, plan Plan) (*Run, error)
}

// Plan is everything a runtime needs for one run. All fields are non-owning
// views: the topology keeps ownership of endpoints, components, and the
// controller.
type Plan struct {
	// RunID tags announcements, heartbeats, and metrics for this run.
	RunID string

	// Roles binds the six pipeline roles to endpoints.
	Roles endpoint.RoleMap

	// Components is the frozen registry snapshot to execute.
	Components component.Snapshot

	// Controller supervises the run and is its sole cancellation
	// authority.
	Controller *monitor.Controller

	// OrderSourceID names the source that closes the order feedback loop.
	// That source never gates the feed merge and must implement
	// component.BatchReceiver. Empty means the run has no feedback loop.
	OrderSourceID string
}

// Validate checks the plan is runnable.
func (p Plan) Validate() error {
	if p.RunID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("plan has no run ID"), "Plan", "Validate", "run identity check")
	}
	if err := p.Roles.Validate(); err != nil {
		return errors.WrapInvalid(err, "Plan", "Validate", "role binding check")
	}
	if p.Controller == nil {
		return errors.WrapInvalid(
			fmt.Errorf("plan has no controller"), "Plan", "Validate", "controller check")
	}

	sources := p.Components.Sources()
	if len(sources) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("plan has no sources"), "Plan", "Validate", "source check")
	}
	if clients := p.Components.Clients(); len(clients) != 1 {
		return errors.WrapInvalid(
			fmt.Errorf("plan needs exactly one client, got %d", len(clients)),
			"Plan", "Validate", "client check")
	}

	if p.OrderSourceID != "" {
		var feedback component.Source
		for _, src := range sources {
			if src.ID() == p.OrderSourceID {
				feedback = src
				break
			}
		}
		if feedback == nil {
			return errors.WrapInvalid(
				fmt.Errorf("order source %q is not registered", p.OrderSourceID),
				"Plan", "Validate", "order source check")
		}
		if _, ok := feedback.(component.BatchReceiver); !ok {
			return errors.WrapInvalid(
				fmt.Errorf("order source %q does not receive batches", p.OrderSourceID),
				"Plan", "Validate", "order source check")
		}
		if len(sources) < 2 {
			return errors.WrapInvalid(
				fmt.Errorf("feedback loop needs at least one primary source"),
				"Plan", "Validate", "source check")
		}
	}
	return nil
}

// FaultError is the run error when the controller tripped.
type FaultError struct {
	Component string
	Reason    string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("run faulted: %s: %s", e.Component, e.Reason)
}

// Run is the handle for one in-flight pipeline run.
type Run struct {
	id   string
	done chan struct{}
	stop func()

	mu  sync.Mutex
	err error
}

// NewRun creates a run handle for a Runtime implementation. The runtime
// invokes stop when the caller asks the run to end early and calls
// Complete exactly once after full teardown.
func NewRun(id string, stop func()) *Run {
	if stop == nil {
		stop = func() {}
	}
	return &Run{id: id, done: make(chan struct{}), stop: stop}
}

// Complete finishes the run with its terminal error and closes the Done
// channel. Runtime implementations call it exactly once.
func (r *Run) Complete(err error) {
	r.complete(err)
}

// ID returns the run's identity.
func (r *Run) ID() string {
	return r.id
}

// Join blocks until the run completes and returns its final error.
func (r *Run) Join() error {
	<-r.done
	return r.Err()
}

// Done closes after full teardown: every stage exited, subscriptions
// removed, completion announced.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the run's final error, nil while the run is live or when it
// completed cleanly. A stopped or failed run yields a *FaultError.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop asks the runtime to end the run early. The engine routes it through
// the supervisory controller, so the run completes with a *FaultError whose
// Component is "control".
func (r *Run) Stop() {
	r.stop()
}

func (r *Run) complete(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// Run announcement operations, published on the sync endpoint.
const (
	OpRunStart = "run-start"
	OpRunEnd   = "run-end"
)

// Run completion statuses carried by the run-end announcement.
const (
	StatusCompleted = "completed"
	StatusFaulted   = "faulted"
	StatusCanceled  = "canceled"
)

// Announcement is the sync-endpoint message framing a run. External tooling
// can subscribe the sync subject to observe run boundaries.
type Announcement struct {
	Op     string `json:"op"`
	RunID  string `json:"run_id"`
	Status string `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}
