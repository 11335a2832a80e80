package pipeline

import (
	"time"

	"github.com/c360/tradeline/event"
	"github.com/c360/tradeline/metric"
)

// engineMetrics wraps the shared core metrics so stages can record without
// nil checks. A nil core disables recording.
type engineMetrics struct {
	core *metric.Metrics
}

func (m engineMetrics) recordEvent(component string, typ event.Type) {
	if m.core == nil {
		return
	}
	m.core.RecordEventEmitted(component, string(typ))
}

func (m engineMetrics) recordFrame(runID string) {
	if m.core == nil {
		return
	}
	m.core.RecordFrameAssembled(runID)
}

func (m engineMetrics) recordOverflow(stage string) {
	if m.core == nil {
		return
	}
	m.core.RecordOverflow(stage)
}

func (m engineMetrics) recordDuration(stage string, d time.Duration) {
	if m.core == nil {
		return
	}
	m.core.RecordStageDuration(stage, d)
}
