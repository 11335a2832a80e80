package topology

import "fmt"

// State is the topology's lifecycle phase. Transitions are one-directional:
// Building → Running → ShuttingDown → Terminated, with no resume. The
// numeric values feed the topology state gauge.
type State int32

const (
	// Building accepts component registration. The topology starts here.
	Building State = iota

	// Running means the pipeline run is launched and the registry is
	// frozen.
	Running

	// ShuttingDown means teardown is in progress: the run is stopping
	// and endpoints are about to be reclaimed.
	ShuttingDown

	// Terminated is the end state: endpoints reclaimed, nothing restarts.
	Terminated
)

// String renders the lowercase state name for logs.
func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
