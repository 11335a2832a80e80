package trading

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/c360/tradeline/component"
	"github.com/c360/tradeline/errors"
	"github.com/c360/tradeline/event"
)

// Algorithm is the decision routine a topology runs. The simulation client
// feeds it every frame; orders placed through the wired order func join the
// next batch. Implementations run on the client's goroutine and need no
// internal locking for frame handling.
type Algorithm interface {
	// ID returns the algorithm's identity, used in logs and results.
	ID() string

	// HandleFrame reacts to one frame. Returning an error stops the run.
	HandleFrame(frame event.Frame) error

	// SetOrderFunc wires the order path. The topology calls it once,
	// before the run starts.
	SetOrderFunc(fn component.OrderFunc)
}

// Environment frames a simulation: the time window, the capital base the
// performance tracker starts from, and the instrument universe. The caller
// owns it; the topology only reads it.
type Environment struct {
	Start       time.Time
	End         time.Time
	CapitalBase decimal.Decimal
	Instruments []string
}

// Validate checks the environment is usable.
func (e Environment) Validate() error {
	if e.Start.IsZero() || e.End.IsZero() {
		return errors.WrapInvalid(
			fmt.Errorf("simulation window is unset"),
			"Environment", "Validate", "window check")
	}
	if !e.End.After(e.Start) {
		return errors.WrapInvalid(
			fmt.Errorf("end %s is not after start %s", e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339)),
			"Environment", "Validate", "window check")
	}
	if e.CapitalBase.Sign() <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("capital base %s is not positive", e.CapitalBase),
			"Environment", "Validate", "capital check")
	}
	if len(e.Instruments) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("no instruments"),
			"Environment", "Validate", "universe check")
	}
	return nil
}
