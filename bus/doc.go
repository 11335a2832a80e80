// Package bus abstracts the transport that carries pipeline traffic.
//
// # Overview
//
// Pipeline stages never talk to each other directly. They publish to and
// subscribe on endpoint subjects, and the Transport moves the bytes. Two
// implementations exist: InProc in this package for single-process runs and
// tests, and the NATS-backed transport in package natsbus for distributed
// runs. Stages cannot tell them apart.
//
// # Delivery Semantics
//
// Both transports promise per-subscription ordering of a single publisher's
// messages and nothing more. Delivery is best-effort: a subscription that
// falls behind its publisher overflows and loses deliveries. Overflow is
// reported through the transport's DropHandler so the pipeline can treat it
// as a fault rather than silently computing on a gap.
package bus
