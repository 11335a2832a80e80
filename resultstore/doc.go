// Package resultstore persists completed simulation run results.
//
// # Overview
//
// A Result is the write-once outcome snapshot of one run: status,
// completion time, cumulative performance, and final positions, keyed by
// run ID in the JetStream KV bucket "tradeline_results". The command
// persists a result after a run completes when JetStream is available;
// nothing on the pipeline's hot path touches the store.
//
// # Error Classification
//
//   - WrapInvalid: validation failures, empty run IDs, missing results
//     (errors.ErrResultNotFound)
//   - WrapTransient: NATS KV errors
//   - WrapFatal: marshaling errors
package resultstore
