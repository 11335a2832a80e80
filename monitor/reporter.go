package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/c360/tradeline/bus"
	"github.com/c360/tradeline/errors"
)

// Reporter publishes heartbeats for one component. Stages run its loop in
// their own goroutine and call MarkDone when their work ends cleanly, which
// publishes a final done beat and exempts the component from the watchdog.
type Reporter struct {
	component string
	runID     string
	subject   string
	transport bus.Transport
	interval  time.Duration

	once sync.Once
	done chan struct{}
}

// Reporter builds a heartbeat reporter bound to this controller's beat
// endpoint. Beats are published at half the watchdog interval so a single
// delayed delivery never counts as a miss.
func (c *Controller) Reporter(component, runID string) *Reporter {
	interval := c.interval / 2
	if interval <= 0 {
		interval = c.interval
	}
	return &Reporter{
		component: component,
		runID:     runID,
		subject:   c.beat.Subject(),
		transport: c.transport,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Run publishes heartbeats until the context ends or MarkDone is called.
// The first beat goes out immediately.
func (r *Reporter) Run(ctx context.Context) {
	r.publish(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.publish(false)
		}
	}
}

// MarkDone publishes the final done beat and stops the loop. Safe to call
// more than once.
func (r *Reporter) MarkDone() {
	r.once.Do(func() {
		r.publish(true)
		close(r.done)
	})
}

func (r *Reporter) publish(done bool) {
	beat := Beat{
		Component: r.component,
		RunID:     r.runID,
		Done:      done,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(beat)
	if err != nil {
		return
	}
	if err := r.transport.Publish(r.subject, data); err != nil && !errors.Is(err, errors.ErrTransportClosed) {
		// Missing beats are what the watchdog exists to notice.
		return
	}
}
