// Package observed turns in-place mutation of plain data into change
// notifications.
//
// Go has no transparent proxies, so a wrapper is an explicit handle: all reads
// and writes must go through the wrapper's methods for owners to hear about
// them. Writing to the raw object directly bypasses notification.
//
// A raw object is wrapped at most once. Wrapping it again returns the existing
// wrapper with the new owner added to its owner set. The wrapper's claim on its
// raw object is dropped when the last owner unsubscribes and taken again when
// an owner subscribes to it later. A wrapper that never had an owner keeps its
// claim, and with it the raw object, for the life of the process.
package observed

import (
	"reflect"
	"sync"
	"time"
	"unsafe"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/metrics"
	"github.com/delaneyj/statesync/registry"
	"github.com/delaneyj/statesync/staterr"
)

var (
	ErrNilObject       = staterr.New(staterr.Usage, "observed.Wrap", "input object must not be nil")
	ErrNotAnObject     = staterr.New(staterr.Usage, "observed.Wrap", "value is not a struct pointer, map, slice pointer or *time.Time")
	ErrUseWrapArray    = staterr.New(staterr.Usage, "observed.Wrap", "slices need a typed wrapper, use WrapArray")
	ErrWrapperMismatch = staterr.New(staterr.Usage, "observed.Wrap", "object is already wrapped by a different wrapper type")
	ErrNoSuchField     = staterr.New(staterr.Usage, "observed.Object", "no such settable property")
	ErrTypeMismatch    = staterr.New(staterr.Usage, "observed.Object", "value type does not match property type")
)

// Observable is implemented by the wrappers of this package and by types that
// embed Subscribable.
type Observable interface {
	// Subscribe adds owner to the set of nodes notified on change.
	Subscribe(owner registry.Subscriber)
	// Unsubscribe removes an owner. Removing the last owner releases the
	// wrapper's claim on its raw object.
	Unsubscribe(id registry.ID)
	Owners() []registry.ID
	NumberOfOwners() int
	// Raw returns the wrapped object. Mutating it directly is not observed.
	Raw() any

	base() *handler
}

// handler holds the owner set shared by every wrapper kind.
type handler struct {
	kind   string
	key    identityKey
	owners *registry.IDSet
	// self is the wrapper embedding this handler, set when it enters the
	// identity table.
	self Observable
}

func newHandler(kind string, key identityKey) handler {
	return handler{kind: kind, key: key, owners: registry.NewIDSet()}
}

func (h *handler) base() *handler { return h }

func (h *handler) Subscribe(owner registry.Subscriber) {
	if registry.IsNil(owner) {
		console.Warn("observed: subscribe with nil owner", "wrapper", h.kind)
		return
	}
	if h.set().Add(owner.ID()) && h.owners.Len() == 1 && h.self != nil {
		identities.restore(h.key, h.self)
	}
}

func (h *handler) Unsubscribe(id registry.ID) {
	if h.set().Remove(id) && h.owners.Len() == 0 {
		identities.release(h.key)
	}
}

func (h *handler) Owners() []registry.ID {
	return h.set().Slice()
}

func (h *handler) NumberOfOwners() int {
	return h.set().Len()
}

func (h *handler) set() *registry.IDSet {
	if h.owners == nil {
		h.owners = registry.NewIDSet()
	}
	return h.owners
}

func (h *handler) notifyChanged(op, name string, value any) {
	metrics.Default().Mutations.WithLabelValues(h.kind, op).Inc()
	registry.Default().NotifyChange("observed."+h.kind, h.set().Slice(), registry.Change{Value: value, Name: name})
}

func (h *handler) notifyRead(name string) {
	if h.set().Len() == 0 {
		return
	}
	registry.Default().NotifyRead(h.owners.Slice(), name)
}

type identityKey struct {
	t reflect.Type
	p unsafe.Pointer
}

func keyOf(raw any) identityKey {
	v := reflect.ValueOf(raw)
	return identityKey{t: v.Type(), p: v.UnsafePointer()}
}

// identityTable maps raw objects to their single wrapper.
type identityTable struct {
	mu sync.Mutex
	m  map[identityKey]Observable
}

var identities = &identityTable{m: map[identityKey]Observable{}}

func (t *identityTable) lookup(key identityKey) (Observable, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.m[key]
	return o, ok
}

func (t *identityTable) store(key identityKey, o Observable) {
	o.base().self = o
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = o
}

// restore puts a released wrapper back unless another wrapper claimed its raw
// object in the meantime.
func (t *identityTable) restore(key identityKey, o Observable) {
	if key.p == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.m[key]
	if !ok {
		t.m[key] = o
		return
	}
	if existing != o {
		console.Warn("observed: raw object was wrapped again while released, keeping the newer wrapper", "wrapper", o.base().kind)
	}
}

func (t *identityTable) release(key identityKey) {
	if key.p == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, key)
}

// wrapOnce returns the existing wrapper for raw or stores the one made by
// create. owner, when not nil, is subscribed either way. The entry is stored
// even without an owner so that wrapping twice yields one wrapper.
func wrapOnce[W Observable](raw any, owner registry.Subscriber, create func(key identityKey) W) (W, error) {
	key := keyOf(raw)
	if existing, ok := identities.lookup(key); ok {
		w, ok := existing.(W)
		if !ok {
			var zero W
			return zero, ErrWrapperMismatch
		}
		if !registry.IsNil(owner) {
			w.Subscribe(owner)
		}
		return w, nil
	}
	w := create(key)
	identities.store(key, w)
	if !registry.IsNil(owner) {
		w.Subscribe(owner)
	}
	return w, nil
}

// Wrap returns the wrapper for raw, creating it on first use, and adds owner
// to its owners. Passing a wrapper adds the owner and returns it unchanged.
func Wrap(raw any, owner registry.Subscriber) (Observable, error) {
	if registry.IsNil(raw) {
		console.Error("observed: Wrap input object must not be nil")
		return nil, ErrNilObject
	}
	if o, ok := raw.(Observable); ok {
		if !registry.IsNil(owner) {
			o.Subscribe(owner)
		}
		return o, nil
	}
	if t, ok := raw.(*time.Time); ok {
		return WrapDate(t, owner)
	}

	v := reflect.ValueOf(raw)
	switch {
	case v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct:
		return WrapObject(raw, owner)
	case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
		return WrapObject(raw, owner)
	case v.Kind() == reflect.Slice, v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Slice:
		return nil, ErrUseWrapArray
	}
	return nil, ErrNotAnObject
}

// IsObserved reports whether v is a wrapper or embeds Subscribable.
func IsObserved(v any) bool {
	_, ok := v.(Observable)
	return ok
}

// RawObject unwraps v. Non-wrappers are returned as is.
func RawObject(v any) any {
	if o, ok := v.(Observable); ok {
		return o.Raw()
	}
	return v
}

// AddOwner subscribes owner to v if v is a wrapper.
func AddOwner(v any, owner registry.Subscriber) bool {
	o, ok := v.(Observable)
	if !ok || registry.IsNil(owner) {
		return false
	}
	o.Subscribe(owner)
	return true
}

// RemoveOwner unsubscribes id from v if v is a wrapper.
func RemoveOwner(v any, id registry.ID) bool {
	o, ok := v.(Observable)
	if !ok {
		return false
	}
	o.Unsubscribe(id)
	return true
}

// ShallowEqual is the change test used by wrappers and nodes: == for
// comparable values, identity for reference kinds, false otherwise.
func ShallowEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	switch va.Kind() {
	case reflect.Slice:
		return va.Len() == vb.Len() && va.UnsafePointer() == vb.UnsafePointer()
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer:
		return va.UnsafePointer() == vb.UnsafePointer()
	}
	return false
}
