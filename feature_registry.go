package xmppcore

import (
	"context"
	"iter"
	"sort"
	"sync"
)

// DefaultFeatureOrder is the traversal order assigned to features
// registered without an explicit order.
const DefaultFeatureOrder = 5000

// FeatureHandler negotiates one announced stream feature. It returns true
// when the feature was handled; a handler registered with restart=true that
// returns true halts the walk so the stream can be restarted. A non-nil
// error aborts negotiation for the current stream generation.
type FeatureHandler func(ctx context.Context, c *Client, features *StreamFeatures) (bool, error)

type featureEntry struct {
	handler FeatureHandler
	restart bool
}

type featureKey struct {
	order int
	name  string
}

// FeatureRegistry holds stream feature handlers in negotiation order.
// Entries are traversed ascending by (order, name); the name breaks order
// ties deterministically.
//
// Registration and unregistration are expected during setup, before a
// negotiation walk is in progress. A registry is per-client configuration,
// never shared implicitly.
type FeatureRegistry struct {
	mu       sync.RWMutex
	handlers map[string]featureEntry
	orders   map[string]int
	sorted   []featureKey
}

// NewFeatureRegistry creates an empty feature registry.
func NewFeatureRegistry() *FeatureRegistry {
	return &FeatureRegistry{
		handlers: make(map[string]featureEntry),
		orders:   make(map[string]int),
	}
}

// Register inserts or overwrites the handler for a feature name. When the
// name is already registered, the previous (order, name) pair is removed
// first so the feature appears exactly once in the traversal. Duplicate
// order values across distinct names are allowed.
func (r *FeatureRegistry) Register(name string, handler FeatureHandler, restart bool, order int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.orders[name]; ok {
		r.removeKey(featureKey{order: prev, name: name})
	}

	r.handlers[name] = featureEntry{handler: handler, restart: restart}
	r.orders[name] = order
	r.insertKey(featureKey{order: order, name: name})
}

// Unregister removes the exact (order, name) pair and its handler. A
// mismatched pair is a caller contract violation: it fails with a
// RegistryError wrapping ErrFeatureNotFound and leaves the registry
// unchanged.
func (r *FeatureRegistry) Unregister(name string, order int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[name]
	if !ok || current != order {
		return &RegistryError{err: ErrFeatureNotFound, Feature: name, Order: order}
	}

	r.removeKey(featureKey{order: order, name: name})
	delete(r.handlers, name)
	delete(r.orders, name)
	return nil
}

// OrderedNames returns the current traversal sequence: a lazy, restartable
// iterator over feature names in ascending (order, name). The sequence is a
// snapshot; registry mutations after the call do not affect it.
func (r *FeatureRegistry) OrderedNames() iter.Seq[string] {
	r.mu.RLock()
	names := make([]string, len(r.sorted))
	for i, key := range r.sorted {
		names[i] = key.name
	}
	r.mu.RUnlock()

	return func(yield func(string) bool) {
		for _, name := range names {
			if !yield(name) {
				return
			}
		}
	}
}

// Len returns the number of registered features.
func (r *FeatureRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *FeatureRegistry) lookup(name string) (featureEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.handlers[name]
	return entry, ok
}

// insertKey keeps sorted ordered ascending by (order, name).
func (r *FeatureRegistry) insertKey(key featureKey) {
	idx := sort.Search(len(r.sorted), func(i int) bool {
		k := r.sorted[i]
		if k.order != key.order {
			return k.order > key.order
		}
		return k.name > key.name
	})
	r.sorted = append(r.sorted, featureKey{})
	copy(r.sorted[idx+1:], r.sorted[idx:])
	r.sorted[idx] = key
}

func (r *FeatureRegistry) removeKey(key featureKey) {
	for i, k := range r.sorted {
		if k == key {
			r.sorted = append(r.sorted[:i], r.sorted[i+1:]...)
			return
		}
	}
}
