// Package registry maps integer identities to live subscribers.
//
// Nodes and wrappers never hold subscribers directly, only their IDs. The
// registry is the single source of truth for liveness: once an ID is deleted,
// lookups report it as missing and notifications aimed at it degrade to a
// warning instead of reaching a torn-down object.
package registry

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/metrics"
)

// ID identifies a subscriber for the lifetime of the process. IDs start at 1
// and are never reused; 0 is never assigned.
type ID uint64

// Subscriber is anything that can be registered and notified.
type Subscriber interface {
	ID() ID
}

// ValueChangeSubscriber receives the new value of a node it subscribes to.
type ValueChangeSubscriber interface {
	Subscriber
	HasChanged(newValue any)
}

// PropertyChangeSubscriber receives the name of the property that changed.
type PropertyChangeSubscriber interface {
	Subscriber
	PropertyHasChanged(name string)
}

// PropertyReadSubscriber is told about monitored reads, for dependency tracking.
type PropertyReadSubscriber interface {
	Subscriber
	PropertyRead(name string)
}

// PeerChangeSubscriber receives the changed node itself. Used by subscribers
// of store-held root nodes.
type PeerChangeSubscriber interface {
	Subscriber
	PeerHasChanged(peer Subscriber)
}

// IsNil reports whether v is nil or an interface holding a nil pointer, map,
// slice, func or channel.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Registry is a table of live subscribers plus the ID counter.
// It is safe for concurrent use.
type Registry struct {
	next atomic.Uint64

	mu   sync.RWMutex
	subs map[ID]Subscriber
}

func New() *Registry {
	return &Registry{
		subs: map[ID]Subscriber{},
	}
}

// MakeID returns a fresh identity.
func (r *Registry) MakeID() ID {
	return ID(r.next.Add(1))
}

// Add registers sub under sub.ID(). An existing entry with the same ID is
// overwritten, which only happens when IDs are minted outside MakeID.
func (r *Registry) Add(sub Subscriber) bool {
	if IsNil(sub) {
		console.Error("registry: Add called with nil subscriber")
		return false
	}
	id := sub.ID()

	r.mu.Lock()
	if prev, ok := r.subs[id]; ok && prev != sub {
		console.Warn("registry: overwriting subscriber", "id", id)
	}
	r.subs[id] = sub
	n := len(r.subs)
	r.mu.Unlock()

	metrics.Default().Subscribers.Set(float64(n))
	return true
}

// Find returns the subscriber registered under id. A missing id is an
// expected condition: the subscriber has already torn down.
func (r *Registry) Find(id ID) (Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	return sub, ok
}

func (r *Registry) Has(id ID) bool {
	_, ok := r.Find(id)
	return ok
}

// Delete removes id. It reports whether an entry was removed.
func (r *Registry) Delete(id ID) bool {
	r.mu.Lock()
	_, ok := r.subs[id]
	delete(r.subs, id)
	n := len(r.subs)
	r.mu.Unlock()

	if !ok {
		console.Debug("registry: delete of unknown id", "id", id)
		return false
	}
	metrics.Default().Subscribers.Set(float64(n))
	return true
}

func (r *Registry) NumberOfSubscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Reset empties the table and restarts the ID sequence. Test-only: calling it
// while nodes are alive makes their IDs collide with new ones.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.subs = map[ID]Subscriber{}
	r.next.Store(0)
	r.mu.Unlock()
	metrics.Default().Subscribers.Set(0)
}

var defaultRegistry = New()

// Default is the process-wide registry used by nodes and wrappers.
func Default() *Registry { return defaultRegistry }

func MakeID() ID                    { return defaultRegistry.MakeID() }
func Add(sub Subscriber) bool       { return defaultRegistry.Add(sub) }
func Find(id ID) (Subscriber, bool) { return defaultRegistry.Find(id) }
func Has(id ID) bool                { return defaultRegistry.Has(id) }
func Delete(id ID) bool             { return defaultRegistry.Delete(id) }
func NumberOfSubscribers() int      { return defaultRegistry.NumberOfSubscribers() }
func Reset()                        { defaultRegistry.Reset() }
