// Package event defines the data model flowing through the trading pipeline.
//
// # Overview
//
// Everything on the wire is one of four shapes:
//
//   - Event: the unit of data flow. TRADE events come from market data
//     sources, ORDERS events from the order feedback loop, TRANSACTION
//     events from the transaction simulator, and DERIVED events from
//     transforms.
//   - Frame: a feed event joined with every transform's output for it.
//     Frames are what the trading client hands to the algorithm.
//   - Order and Transaction: the payloads of ORDERS and TRANSACTION events.
//   - OrderBatch: the client's per-frame order submission, including the
//     close batch that ends the order stream.
//
// Prices and money use decimal.Decimal throughout. Binary float drift is
// not acceptable in position accounting, so float64 never appears in the
// data model.
//
// Events are plain values with JSON tags; Marshal and Unmarshal add the
// package's error classification on top of encoding/json.
package event
