package monitor

import "time"

// Beat is one component heartbeat, published on the controller's heartbeat
// endpoint. Done marks the component's final beat: the controller stops
// expecting beats from it afterwards.
type Beat struct {
	Component string    `json:"component"`
	RunID     string    `json:"run_id"`
	Done      bool      `json:"done,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Command is a control-plane instruction published on the controller's
// control endpoint.
type Command struct {
	Op     string `json:"op"`
	Reason string `json:"reason,omitempty"`
}

// Command operations.
const (
	// OpStop requests the controller to halt the run.
	OpStop = "stop"
)

// Fault is the controller's verdict that the run must end. Component names
// the offender; for an external stop it is "control".
type Fault struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}
