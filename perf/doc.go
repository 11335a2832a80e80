// Package perf accounts simulation performance: cash, positions, realized
// and mark-to-market PNL, returns, and commissions. All arithmetic is
// decimal so results are exact regardless of fill sizes or price scales.
package perf
