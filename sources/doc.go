// Package sources provides deterministic trade event sources for
// simulations: TradeSource replays a fixed event slice, and NewRandomWalk
// generates a seeded walk over an instrument universe. Both emit in
// non-decreasing timestamp order, which the pipeline enforces per source.
package sources
