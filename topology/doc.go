// Package topology assembles and supervises one simulated trading
// pipeline.
//
// # Overview
//
// The Coordinator is the package's entry point. Constructed from an
// algorithm, an environment, a shared endpoint allocator, and a transport,
// it leases eight endpoints (six pipeline roles plus the supervisory
// controller's control and heartbeat pair), builds the fixed trading
// components, and wires the algorithm into the client before anything can
// produce an event. Callers add their own sources and transforms while the
// topology is Building, then launch exactly one run.
//
// # Lifecycle
//
// Building → Running → ShuttingDown → Terminated, one-directional. Run
// freezes the registry, registers every component with the supervisory
// controller, and hands the frozen snapshot to the pipeline runtime.
// Shutdown is deferred onto the run's completion signal; a controller
// fault, an operator stop, or normal completion all funnel through the
// same teardown, which reclaims the eight endpoints exactly once. A
// Coordinator never runs twice.
package topology
