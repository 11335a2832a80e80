package endpoint

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/c360/tradeline/errors"
)

// Pool is an arena-style endpoint allocator. Leased/free state is tracked
// per slot so membership checks are O(1) and no endpoint can be issued twice
// without an intervening reclaim. A single Pool may be shared by multiple
// topology instances; every call is atomic with respect to pool state.
type Pool struct {
	mu     sync.Mutex
	prefix string
	leased []bool
	free   int
}

// Option configures a Pool.
type Option func(*Pool)

// WithPrefix overrides the generated subject prefix. Prefixes must be unique
// per pool or endpoints from different pools will collide on the transport.
func WithPrefix(prefix string) Option {
	return func(p *Pool) {
		p.prefix = prefix
	}
}

// NewPool creates a pool of size endpoints with distinct subjects.
func NewPool(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("pool size %d must be positive", size),
			"Pool", "NewPool", "size validation")
	}

	p := &Pool{
		prefix: "tl." + uuid.NewString()[:8],
		leased: make([]bool, size),
		free:   size,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Lease returns exactly n previously-unleased endpoints. It fails with
// errors.ErrPoolExhausted when fewer than n remain and with
// errors.ErrInvalidLease when n is not positive; the pool is unchanged on
// failure.
func (p *Pool) Lease(n int) ([]Endpoint, error) {
	if n <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("cannot lease %d endpoints: %w", n, errors.ErrInvalidLease),
			"Pool", "Lease", "request validation")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > p.free {
		return nil, errors.WrapFatal(
			fmt.Errorf("%d requested, %d available: %w", n, p.free, errors.ErrPoolExhausted),
			"Pool", "Lease", "pool capacity check")
	}

	eps := make([]Endpoint, 0, n)
	for i := range p.leased {
		if p.leased[i] {
			continue
		}
		p.leased[i] = true
		eps = append(eps, Endpoint{pool: p.prefix, index: i})
		if len(eps) == n {
			break
		}
	}
	p.free -= n

	return eps, nil
}

// Reclaim returns the given endpoints to the pool. It fails with
// errors.ErrNotLeased when any argument is not currently leased by this
// pool; arguments are validated before any slot is released, so a bad
// handle cannot half-release a set.
func (p *Pool) Reclaim(eps ...Endpoint) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range eps {
		if err := p.checkLeased(ep); err != nil {
			return err
		}
	}

	for _, ep := range eps {
		p.leased[ep.index] = false
	}
	p.free += len(eps)

	return nil
}

// checkLeased verifies an endpoint belongs to this pool and is currently
// leased. Callers hold p.mu.
func (p *Pool) checkLeased(ep Endpoint) error {
	if ep.pool != p.prefix || ep.index < 0 || ep.index >= len(p.leased) {
		return errors.WrapFatal(
			fmt.Errorf("endpoint %s does not belong to this pool: %w", ep, errors.ErrNotLeased),
			"Pool", "Reclaim", "membership check")
	}
	if !p.leased[ep.index] {
		return errors.WrapFatal(
			fmt.Errorf("endpoint %s: %w", ep, errors.ErrNotLeased),
			"Pool", "Reclaim", "lease state check")
	}
	return nil
}

// Available returns the number of endpoints currently free for lease.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}

// Size returns the total pool capacity.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}
