package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all pipeline-level metrics (not component-specific)
type Metrics struct {
	// Topology metrics
	TopologyState   *prometheus.GaugeVec
	EndpointsLeased prometheus.Gauge

	// Pipeline flow metrics
	EventsEmitted      *prometheus.CounterVec
	FramesAssembled    *prometheus.CounterVec
	OrdersPlaced       *prometheus.CounterVec
	TransactionsFilled *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec

	// Supervision metrics
	FaultsTotal      *prometheus.CounterVec
	OverflowsTotal   *prometheus.CounterVec
	HeartbeatsMissed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		TopologyState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tradeline",
				Subsystem: "topology",
				Name:      "state",
				Help:      "Topology lifecycle state (0=building, 1=running, 2=shutting_down, 3=terminated)",
			},
			[]string{"run"},
		),

		EndpointsLeased: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "tradeline",
				Subsystem: "endpoints",
				Name:      "leased",
				Help:      "Number of endpoints currently leased from the pool",
			},
		),

		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeline",
				Subsystem: "pipeline",
				Name:      "events_emitted_total",
				Help:      "Total number of events emitted into the pipeline",
			},
			[]string{"component", "type"},
		),

		FramesAssembled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeline",
				Subsystem: "pipeline",
				Name:      "frames_assembled_total",
				Help:      "Total number of frames assembled by the join stage",
			},
			[]string{"run"},
		),

		OrdersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeline",
				Subsystem: "trading",
				Name:      "orders_placed_total",
				Help:      "Total number of orders placed by the algorithm",
			},
			[]string{"instrument"},
		),

		TransactionsFilled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeline",
				Subsystem: "trading",
				Name:      "transactions_filled_total",
				Help:      "Total number of simulated fills",
			},
			[]string{"instrument"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tradeline",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Per-event processing duration by pipeline stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		FaultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeline",
				Subsystem: "supervision",
				Name:      "faults_total",
				Help:      "Total number of faults reported to the controller",
			},
			[]string{"component"},
		),

		OverflowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeline",
				Subsystem: "supervision",
				Name:      "overflows_total",
				Help:      "Total number of stage inbox overflows",
			},
			[]string{"stage"},
		),

		HeartbeatsMissed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tradeline",
				Subsystem: "supervision",
				Name:      "heartbeats_missed_total",
				Help:      "Total number of missed component heartbeats",
			},
			[]string{"component"},
		),
	}
}

// RecordTopologyState updates the topology lifecycle state gauge
func (c *Metrics) RecordTopologyState(run string, state int) {
	c.TopologyState.WithLabelValues(run).Set(float64(state))
}

// RecordEndpointsLeased updates the leased endpoint count
func (c *Metrics) RecordEndpointsLeased(n int) {
	c.EndpointsLeased.Set(float64(n))
}

// RecordEventEmitted increments the emitted event counter
func (c *Metrics) RecordEventEmitted(component, eventType string) {
	c.EventsEmitted.WithLabelValues(component, eventType).Inc()
}

// RecordFrameAssembled increments the assembled frame counter
func (c *Metrics) RecordFrameAssembled(run string) {
	c.FramesAssembled.WithLabelValues(run).Inc()
}

// RecordOrderPlaced increments the placed order counter
func (c *Metrics) RecordOrderPlaced(instrument string) {
	c.OrdersPlaced.WithLabelValues(instrument).Inc()
}

// RecordTransactionFilled increments the fill counter
func (c *Metrics) RecordTransactionFilled(instrument string) {
	c.TransactionsFilled.WithLabelValues(instrument).Inc()
}

// RecordStageDuration records per-event stage processing time
func (c *Metrics) RecordStageDuration(stage string, duration time.Duration) {
	c.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordFault increments the fault counter for a component
func (c *Metrics) RecordFault(component string) {
	c.FaultsTotal.WithLabelValues(component).Inc()
}

// RecordOverflow increments the overflow counter for a stage
func (c *Metrics) RecordOverflow(stage string) {
	c.OverflowsTotal.WithLabelValues(stage).Inc()
}

// RecordHeartbeatMissed increments the missed heartbeat counter
func (c *Metrics) RecordHeartbeatMissed(component string) {
	c.HeartbeatsMissed.WithLabelValues(component).Inc()
}
