package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/tradeline/errors"
)

// Registry holds the components of one topology, keyed by identity.
// Sources, transforms, and clients live in separate maps so a registration
// can never land in the wrong collection, but identity is unique across all
// three: a transform may not reuse a source's ID.
//
// Registration is open until Freeze. After that every add fails with
// errors.ErrAlreadyStarted, which is how the topology guarantees the
// component set is immutable once the pipeline launches.
type Registry struct {
	mu         sync.RWMutex
	sources    map[string]Source
	transforms map[string]Transform
	clients    map[string]Client
	frozen     bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:    make(map[string]Source),
		transforms: make(map[string]Transform),
		clients:    make(map[string]Client),
	}
}

// AddSource registers a source.
func (r *Registry) AddSource(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAdd(src, "AddSource"); err != nil {
		return err
	}
	r.sources[src.ID()] = src
	return nil
}

// AddTransform registers a transform.
func (r *Registry) AddTransform(tf Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAdd(tf, "AddTransform"); err != nil {
		return err
	}
	r.transforms[tf.ID()] = tf
	return nil
}

// AddClient registers a client.
func (r *Registry) AddClient(cl Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkAdd(cl, "AddClient"); err != nil {
		return err
	}
	r.clients[cl.ID()] = cl
	return nil
}

// checkAdd validates a registration. Callers hold r.mu.
func (r *Registry) checkAdd(c Component, method string) error {
	if r.frozen {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Registry", method, "registration window check")
	}
	if c == nil {
		return errors.WrapInvalid(
			fmt.Errorf("component cannot be nil: %w", errors.ErrInvalidComponent),
			"Registry", method, "component validation")
	}
	id := c.ID()
	if id == "" {
		return errors.WrapInvalid(
			fmt.Errorf("component has empty identity: %w", errors.ErrInvalidComponent),
			"Registry", method, "identity validation")
	}
	if r.holds(id) {
		return errors.WrapInvalid(
			fmt.Errorf("identity %q already registered: %w", id, errors.ErrDuplicateComponent),
			"Registry", method, "identity uniqueness check")
	}
	return nil
}

// holds reports whether any collection already uses id. Callers hold r.mu.
func (r *Registry) holds(id string) bool {
	if _, ok := r.sources[id]; ok {
		return true
	}
	if _, ok := r.transforms[id]; ok {
		return true
	}
	_, ok := r.clients[id]
	return ok
}

// Freeze closes the registration window and returns an immutable snapshot.
// Freeze is idempotent; every call returns a snapshot of the same set.
func (r *Registry) Freeze() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true

	snap := Snapshot{
		sources:    make(map[string]Source, len(r.sources)),
		transforms: make(map[string]Transform, len(r.transforms)),
		clients:    make(map[string]Client, len(r.clients)),
	}
	for id, src := range r.sources {
		snap.sources[id] = src
	}
	for id, tf := range r.transforms {
		snap.transforms[id] = tf
	}
	for id, cl := range r.clients {
		snap.clients[id] = cl
	}
	return snap
}

// Frozen reports whether the registration window is closed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Snapshot is an immutable view of a frozen registry. Accessors return
// components in sorted identity order so pipeline wiring is deterministic.
type Snapshot struct {
	sources    map[string]Source
	transforms map[string]Transform
	clients    map[string]Client
}

// Sources returns the registered sources in identity order.
func (s Snapshot) Sources() []Source {
	out := make([]Source, 0, len(s.sources))
	for _, id := range sortedKeys(s.sources) {
		out = append(out, s.sources[id])
	}
	return out
}

// Transforms returns the registered transforms in identity order.
func (s Snapshot) Transforms() []Transform {
	out := make([]Transform, 0, len(s.transforms))
	for _, id := range sortedKeys(s.transforms) {
		out = append(out, s.transforms[id])
	}
	return out
}

// Clients returns the registered clients in identity order.
func (s Snapshot) Clients() []Client {
	out := make([]Client, 0, len(s.clients))
	for _, id := range sortedKeys(s.clients) {
		out = append(out, s.clients[id])
	}
	return out
}

// Identities returns every registered identity, sorted.
func (s Snapshot) Identities() []string {
	ids := make([]string, 0, len(s.sources)+len(s.transforms)+len(s.clients))
	for id := range s.sources {
		ids = append(ids, id)
	}
	for id := range s.transforms {
		ids = append(ids, id)
	}
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
