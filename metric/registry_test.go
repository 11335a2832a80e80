package metric

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestRegistry_RegisterCounter(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("trading-client", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	// Verify the counter is registered in the underlying Prometheus registry
	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "Counter should be registered in Prometheus registry")
}

func TestRegistry_RegisterGauge(t *testing.T) {
	registry := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("trading-client", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(42.0)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_gauge" {
			found = true
			break
		}
	}
	assert.True(t, found, "Gauge should be registered in Prometheus registry")
}

func TestRegistry_RegisterHistogram(t *testing.T) {
	registry := NewRegistry()

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "A test histogram",
		Buckets: prometheus.DefBuckets,
	})

	err := registry.RegisterHistogram("order-source", "test_histogram", histogram)
	require.NoError(t, err)

	histogram.Observe(1.5)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_histogram" {
			found = true
			break
		}
	}
	assert.True(t, found, "Histogram should be registered in Prometheus registry")
}

func TestRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})

	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter", // Same help to avoid Prometheus validation error
	})

	err := registry.RegisterCounter("svc", "duplicate_counter", counter1)
	require.NoError(t, err)

	// Second registration under the same key must fail
	err = registry.RegisterCounter("svc", "duplicate_counter", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_SameMetricNameDifferentComponents(t *testing.T) {
	registry := NewRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "component_a_ops",
		Help: "ops",
	})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "component_b_ops",
		Help: "ops",
	})

	// Same logical metric name, different components: distinct keys
	require.NoError(t, registry.RegisterCounter("component-a", "ops", counter1))
	require.NoError(t, registry.RegisterCounter("component-b", "ops", counter2))
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ephemeral_counter",
		Help: "ephemeral",
	})

	require.NoError(t, registry.RegisterCounter("svc", "ephemeral_counter", counter))

	assert.True(t, registry.Unregister("svc", "ephemeral_counter"))
	assert.False(t, registry.Unregister("svc", "ephemeral_counter"), "Second unregister should report not found")

	// Re-registration after unregister succeeds
	require.NoError(t, registry.RegisterCounter("svc", "ephemeral_counter", counter))
}

func TestRegistry_RegisterVecs(t *testing.T) {
	registry := NewRegistry()

	counterVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vec_counter", Help: "vec"},
		[]string{"instrument"},
	)
	gaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "vec_gauge", Help: "vec"},
		[]string{"instrument"},
	)
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "vec_histogram", Help: "vec", Buckets: prometheus.DefBuckets},
		[]string{"stage"},
	)

	require.NoError(t, registry.RegisterCounterVec("svc", "vec_counter", counterVec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "vec_gauge", gaugeVec))
	require.NoError(t, registry.RegisterHistogramVec("svc", "vec_histogram", histogramVec))

	counterVec.WithLabelValues("AAPL").Inc()
	gaugeVec.WithLabelValues("MSFT").Set(3)
	histogramVec.WithLabelValues("feed").Observe(0.002)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(metricFamilies))
	for _, mf := range metricFamilies {
		names[mf.GetName()] = true
	}
	assert.True(t, names["vec_counter"])
	assert.True(t, names["vec_gauge"])
	assert.True(t, names["vec_histogram"])
}

func TestCoreMetricsRecording(t *testing.T) {
	registry := NewRegistry()
	core := registry.CoreMetrics()

	// Recording must not panic and must show up in a gather
	core.RecordTopologyState("run-1", 1)
	core.RecordEndpointsLeased(8)
	core.RecordEventEmitted("sim-source", "TRADE")
	core.RecordFrameAssembled("run-1")
	core.RecordOrderPlaced("AAPL")
	core.RecordTransactionFilled("AAPL")
	core.RecordStageDuration("feed", 1500*time.Microsecond)
	core.RecordFault("trading-client")
	core.RecordOverflow("merge")
	core.RecordHeartbeatMissed("order-source")

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(metricFamilies))
	for _, mf := range metricFamilies {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"tradeline_topology_state",
		"tradeline_endpoints_leased",
		"tradeline_pipeline_events_emitted_total",
		"tradeline_pipeline_frames_assembled_total",
		"tradeline_trading_orders_placed_total",
		"tradeline_trading_transactions_filled_total",
		"tradeline_pipeline_stage_duration_seconds",
		"tradeline_supervision_faults_total",
		"tradeline_supervision_overflows_total",
		"tradeline_supervision_heartbeats_missed_total",
	} {
		assert.True(t, names[want], "Expected metric %s in gather output", want)
	}
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 32)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "concurrent",
			})
			if err := registry.RegisterCounter("svc", fmt.Sprintf("concurrent_counter_%d", id), counter); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent registration failed: %v", err)
	}
}
