// Package trading provides the fixed components every topology runs: the
// simulation client, the feedback order source, and the transaction
// simulator.
//
// # Overview
//
// The three components close the trading loop. The client consumes
// assembled frames, books simulated fills into a performance tracker,
// hands each frame to the algorithm, and batches the orders the algorithm
// places. The order source receives those batches and re-emits them into
// the feed as ORDERS events. The transaction simulator watches the feed,
// opens orders from ORDERS events, and fills them against later TRADE
// events, capped by a volume share and charged per-share commission. The
// fills ride back to the client as derived TRANSACTION events on the
// trade's own frame.
//
// # Fill model
//
// Fills are conservative. An order only fills against trades that arrive
// after it, at most VolumeShare of each trade's volume, FIFO across the
// instrument's open orders. Orders resting when the data runs out never
// fill; the close batch the client sends from Finish ends the order stream
// so the feed can drain.
//
// Algorithms implement the Algorithm interface and never touch the wire:
// the topology wires HandleFrame in through the client's frame callbacks
// and order placement out through SetOrderFunc.
package trading
