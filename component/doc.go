// Package component defines the contracts pipeline components implement and
// the registry that holds them.
//
// # Overview
//
// A topology is assembled from three kinds of component:
//
//   - Source: produces input events (market data, the order feedback loop)
//   - Transform: derives a new event from each feed event
//   - Client: consumes assembled frames and places orders
//
// All three share one identity namespace. The Registry keeps each kind in
// its own collection but rejects any registration whose identity is already
// taken by a component of any kind, so a source and a transform can never
// shadow each other.
//
// # Registration Window
//
// Components register while the topology is building. Freeze closes the
// window and returns an immutable Snapshot; the pipeline runtime wires
// stages from the snapshot, never from the live registry. Registration
// after Freeze fails with errors.ErrAlreadyStarted.
package component
