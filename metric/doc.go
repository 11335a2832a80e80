// Package metric provides Prometheus-based metrics collection and HTTP server
// for pipeline monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// pipeline metrics (topology state, event flow, supervision) and custom
// component-specific metrics. It includes an HTTP server exposing metrics in
// Prometheus format for monitoring system integration.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Pipeline-level metrics automatically registered (Metrics type)
//  2. Component Registry: Extensible registration for component-specific metrics (Registrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// This separates infrastructure concerns (core metrics) from application
// concerns (component-specific metrics) while providing a unified metrics
// endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection and the HTTP server:
//
//	registry := metric.NewRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
//	// Record core pipeline metrics
//	core := registry.CoreMetrics()
//	core.RecordTopologyState(runID, 1)
//	core.RecordEventEmitted("sim-source", "TRADE")
//	core.RecordFrameAssembled(runID)
//
// # Core Metrics
//
// The package automatically registers core pipeline metrics tracking:
//
//   - Topology lifecycle: topology_state (0=building, 1=running, 2=shutting_down, 3=terminated)
//   - Endpoint allocation: endpoints_leased
//   - Event flow: events_emitted_total, frames_assembled_total
//   - Trading: orders_placed_total, transactions_filled_total
//   - Stage performance: stage_duration_seconds
//   - Supervision: faults_total, overflows_total, heartbeats_missed_total
//
// All core metrics use the namespace "tradeline" with appropriate subsystems:
//
//	tradeline_topology_state{run="..."}
//	tradeline_pipeline_events_emitted_total{component="...",type="..."}
//	tradeline_supervision_faults_total{component="..."}
//
// # Component-Specific Metrics
//
// Components register custom metrics through the Registrar interface:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "fills_rejected_total",
//	    Help: "Fills rejected by the simulator",
//	})
//	err := registry.RegisterCounter("transaction-sim", "fills_rejected_total", counter)
//
// Registration is deduplicated per component and metric name; registering
// the same pair twice fails with an invalid-classified error.
//
// # Thread Safety
//
// All registry operations are thread-safe. Registration methods use mutex
// protection and metric recording is lock-free per the Prometheus client's
// guarantees.
package metric
