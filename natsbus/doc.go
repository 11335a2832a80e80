// Package natsbus implements bus.Transport over a NATS connection.
//
// # Overview
//
// The transport maps the bus abstraction directly onto core NATS: Publish
// is a NATS publish, Subscribe is a NATS subscription with a bounded
// pending buffer, and Flush is a server round trip. JetStream is exposed
// for the pieces that need persistence, such as the result store's KV
// bucket.
//
// Slow consumers follow the server's policy: when a subscription's pending
// buffer fills, NATS drops deliveries and raises ErrSlowConsumer through
// the async error handler, which this package forwards to the transport's
// DropHandler. The pipeline treats such a drop as a fault.
//
// # Testing
//
// TestTransport spins up a NATS server in a container (testcontainers) and
// hands back a connected Transport. Integration tests that need JetStream
// or KV buckets opt in through TestOptions:
//
//	tt := natsbus.NewTestTransport(t, natsbus.WithKVBuckets("tradeline_results"))
//	store, err := resultstore.New(ctx, tt.Transport)
package natsbus
