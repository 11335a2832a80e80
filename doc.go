// Package tradeline orchestrates simulated trading pipelines: an endpoint
// arena, a component registry, a supervised pipeline runtime, and a
// topology coordinator that assembles the pieces into one observable
// simulation run.
//
// # Architecture
//
// One simulation is one topology. The coordinator leases transport
// endpoints, builds the fixed trading components, accepts caller sources
// and transforms while Building, and launches exactly one pipeline run:
//
//	┌─────────────────────────────────────┐
//	│        Topology Coordinator         │  lease, wire, launch,
//	│  (Building → Running → Terminated)  │  reclaim exactly once
//	└─────────────────────────────────────┘
//	           ↓ orchestrates
//	┌─────────────────────────────────────┐
//	│          Pipeline Engine            │  source, feed, transform,
//	│    (stages over bus endpoints)      │  join, client stages
//	└─────────────────────────────────────┘
//	           ↓ communicate via
//	┌─────────────────────────────────────┐
//	│           Message Bus               │  in-process or NATS,
//	│      (pub/sub over subjects)        │  one subject per endpoint
//	└─────────────────────────────────────┘
//
// Events flow in a loop. Trade sources feed the merged stream; transforms
// derive per-event values; the join stage assembles frames; the client
// drives the algorithm. Orders batched by the client come back through
// the order-feedback source, get filled by the transaction simulator, and
// the resulting transactions reach the client as frames again:
//
//	sources ──► merge ──► transforms ──► join ──► client ──► algorithm
//	   ▲                                                         │
//	   └──── order source ◄── order subject ◄── order batch ◄────┘
//
// # Framework Packages
//
// Orchestration:
//   - topology: coordinator, lifecycle state machine, component wiring
//   - pipeline: engine runtime, stages, run handles, fault propagation
//   - monitor: supervisory controller (heartbeats, kill switch)
//   - endpoint: arena-style endpoint pool and pipeline role bindings
//
// Trading:
//   - trading: simulation client, order source, transaction simulator
//   - perf: decimal cash, position, and PNL accounting
//   - sources: deterministic and seeded random-walk trade sources
//   - transforms: windowed moving average
//   - event: wire data model (trades, orders, transactions, frames)
//
// Infrastructure:
//   - bus: transport abstraction and the in-process implementation
//   - natsbus: NATS-backed transport and JetStream KV helpers
//   - resultstore: completed-run persistence over JetStream KV
//   - component: capability interfaces and the component registry
//   - config: layered file and environment configuration
//   - metric: Prometheus metrics
//   - errors: classified error handling
//
// # Usage Patterns
//
// Basic topology setup:
//
//	transport := bus.NewInProc()
//	pool, _ := endpoint.NewPool(8)
//
//	coord, _ := topology.New(topology.Deps{
//	    Algorithm:   algo,
//	    Environment: env,
//	    Allocator:   pool,
//	    Transport:   transport,
//	})
//	_ = coord.AddSource(walk)
//	_ = coord.AddTransform(average)
//
//	if err := coord.Run(ctx, true); err != nil {
//	    // a *pipeline.FaultError names the offending component
//	}
//	summary, _ := coord.CumulativePerformance()
//
// # Design Principles
//
// Single-use topologies:
//   - A coordinator runs exactly once and reclaims exactly once
//   - Registration closes when the run launches
//   - Terminated topologies never restart; build a new one
//
// One cancellation authority:
//   - The controller owns the kill switch
//   - HandleFrame errors, heartbeat silence, inbox overflow, and stop
//     commands all trip the same fault path
//   - A fault cancels every stage; there are no partial survivors
//
// Money is decimal:
//   - Prices, commissions, cash, and PNL use shopspring/decimal
//   - No floats anywhere near accounting
//
// Bounded everything:
//   - Stage inboxes are bounded; overflow is a fault, not a silent drop
//   - Shutdown waits a bounded grace period before reclaiming endpoints
//
// # Binary
//
// Build and run the simulator:
//
//	go build ./cmd/tradeline
//
//	# Demo run over the in-process bus
//	./tradeline --local --log-format=text
//
//	# Against NATS with result persistence
//	./tradeline --config=config.yaml
//
// The binary assembles a random-walk market, a moving-average transform,
// and a crossover demo algorithm from configuration, runs the topology,
// and prints the run's performance summary.
package tradeline
