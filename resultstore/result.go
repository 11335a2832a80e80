package resultstore

import (
	"fmt"
	"time"

	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/perf"
)

// Run completion statuses a Result may carry. They mirror the run-end
// announcement statuses on the sync endpoint.
const (
	StatusCompleted = "completed"
	StatusFaulted   = "faulted"
	StatusCanceled  = "canceled"
)

// Result is the persisted outcome of one simulation run.
type Result struct {
	// RunID identifies the run and keys the result in the bucket.
	RunID string `json:"run_id"`

	// Status is one of the run completion statuses.
	Status string `json:"status"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Performance is the run's cumulative performance summary.
	Performance perf.Summary `json:"performance"`

	// Positions holds the open positions at completion.
	Positions []perf.Position `json:"positions,omitempty"`

	// Fault carries the terminal error text for faulted and canceled
	// runs.
	Fault string `json:"fault,omitempty"`
}

// Validate checks the result is persistable.
func (r Result) Validate() error {
	if r.RunID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("result has no run ID"), "Result", "Validate", "identity check")
	}
	switch r.Status {
	case StatusCompleted, StatusFaulted, StatusCanceled:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown status %q", r.Status), "Result", "Validate", "status check")
	}
	if r.CompletedAt.IsZero() {
		return errors.WrapInvalid(
			fmt.Errorf("result has no completion time"), "Result", "Validate", "timestamp check")
	}
	return nil
}
