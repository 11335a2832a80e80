// Package endpoint provides the arena-style endpoint allocator that backs
// pipeline topologies.
//
// # Overview
//
// A topology needs a fixed set of transport subjects to wire its stages
// together. Rather than letting each component invent subject names, the
// allocator owns a pool of endpoints and leases them out as a block. When a
// topology shuts down it reclaims the block, returning the endpoints for
// reuse by the next run. This keeps subject allocation race-free when
// several topologies share one process and makes leaks visible: an endpoint
// that is never reclaimed stays leased.
//
// # Allocation Contract
//
// Lease(n) either returns exactly n endpoints or fails without changing the
// pool. Reclaim validates every argument before releasing any, so a partial
// reclaim can never leave the pool half-updated. Double reclaims and foreign
// endpoints fail with errors.ErrNotLeased.
//
// # Roles
//
// The pipeline binds six endpoints to fixed roles (sync, data, feed, merge,
// result, order). RoleMap captures that binding and hands out per-role
// subjects to the runtime.
package endpoint
