package endpoint

import "fmt"

// Endpoint is an opaque, comparable handle naming one communication channel.
// Endpoints are leased from a Pool and must be reclaimed exactly once. The
// zero value is not a valid endpoint.
type Endpoint struct {
	pool  string
	index int
}

// Subject returns the transport subject bound to this endpoint. Subjects are
// unique across pools because every pool carries its own prefix.
func (e Endpoint) Subject() string {
	return fmt.Sprintf("%s.ep.%d", e.pool, e.index)
}

// Valid reports whether the endpoint was issued by a pool.
func (e Endpoint) Valid() bool {
	return e.pool != ""
}

// String implements fmt.Stringer.
func (e Endpoint) String() string {
	if !e.Valid() {
		return "endpoint(invalid)"
	}
	return e.Subject()
}

// Allocator is the consuming interface over an endpoint pool. Pool satisfies
// it; tests substitute spies to observe lease and reclaim traffic.
type Allocator interface {
	// Lease returns exactly n previously-unleased endpoints.
	Lease(n int) ([]Endpoint, error)
	// Reclaim returns the given endpoints to the pool. Every argument must
	// currently be leased; the call mutates nothing when any is not.
	Reclaim(eps ...Endpoint) error
}
