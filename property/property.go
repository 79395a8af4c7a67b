// Package property implements observable value cells and the one-way and
// two-way links between them.
//
// Every node registers itself with the subscriber registry on construction
// and must be torn down with AboutToBeDeleted. Links subscribe to their source
// and unsubscribe on teardown.
//
//	  Simple ──CreateLink──▶ TwoWay ──CreateLink──▶ TwoWay
//	    │                      │
//	CreateProp             CreateProp
//	    ▼                      ▼
//	 OneWay                 OneWay
package property

import (
	"fmt"
	"reflect"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/registry"
	"github.com/delaneyj/statesync/staterr"
)

var (
	ErrPropOverObject  = staterr.New(staterr.Usage, "property.CreateProp", "creating a one-way prop is unsupported for object values")
	ErrLinkFromProp    = staterr.New(staterr.Usage, "property.CreateLink", "cannot create a two-way link from a one-way prop")
	ErrPropWithoutSrc  = staterr.New(staterr.Usage, "property.CreateProp", "prop has no source, create the prop from its source instead")
	ErrLinkToNested    = staterr.New(staterr.Usage, "property.CreateLink", "linking to a nested object property is unsupported")
	ErrUnwrappedObject = staterr.New(staterr.Usage, "property.New", "reference values must be wrapped with observed.Wrap first")
	ErrNotObservable   = staterr.New(staterr.Usage, "property.NewObject", "value is not an observed wrapper")
	ErrNoSource        = staterr.New(staterr.Usage, "property.Link", "source property must not be nil")
	ErrTypeMismatch    = staterr.New(staterr.Usage, "property.SetAny", "value type does not match property type")
	ErrSourceUndefined = staterr.New(staterr.Invariant, "property.Link", "source is undefined")
)

// Node is the type-erased view of a property used by stores and diagnostics.
type Node interface {
	registry.Subscriber
	Info() string
	SetInfo(name string)
	// SubscribeMe adds sub to the nodes notified when this one changes.
	SubscribeMe(sub registry.Subscriber)
	// UnlinkSubscriber is the inverse of SubscribeMe.
	UnlinkSubscriber(id registry.ID)
	NumberOfSubscribers() int
	// AboutToBeDeleted detaches the node from its source and the registry.
	// The node must not be used afterwards.
	AboutToBeDeleted()
	GetAny() any
	SetAny(v any) error
}

type Property[T any] interface {
	Node
	// Get returns the value and tells read subscribers about it.
	Get() T
	// GetUnmonitored returns the value without a read notification.
	GetUnmonitored() T
	// Set stores v. Subscribers are notified only when v differs from the
	// current value.
	Set(v T)
	// CreateLink returns a two-way link whose source is this node.
	CreateLink(owner registry.Subscriber, info string) (Property[T], error)
	// CreateProp returns a one-way prop whose source is this node.
	CreateProp(owner registry.Subscriber, info string) (Property[T], error)
}

// base is the identity and subscriber set shared by every variant.
type base struct {
	id          registry.ID
	kind        string
	info        string
	label       string
	subscribers *registry.IDSet
	self        registry.Subscriber
}

func (b *base) init(self registry.Subscriber, kind string, owner registry.Subscriber, info string) {
	b.id = registry.MakeID()
	b.kind = kind
	b.subscribers = registry.NewIDSet()
	b.self = self
	b.setLabel(info)
	registry.Add(self)
	if !registry.IsNil(owner) {
		b.subscribers.Add(owner.ID())
	}
}

func (b *base) ID() registry.ID { return b.id }

func (b *base) Info() string { return b.info }

// SetInfo renames the node. Empty names are ignored.
func (b *base) SetInfo(name string) {
	if name != "" {
		b.setLabel(name)
	}
}

func (b *base) setLabel(info string) {
	b.info = info
	name := info
	if name == "" {
		name = "unknown"
	}
	b.label = fmt.Sprintf("%s[%d, %q]", b.kind, b.id, name)
}

func (b *base) SubscribeMe(sub registry.Subscriber) {
	if registry.IsNil(sub) {
		console.Warn("property: subscribe with nil subscriber", "property", b.label)
		return
	}
	b.subscribers.Add(sub.ID())
}

func (b *base) UnlinkSubscriber(id registry.ID) {
	b.subscribers.Remove(id)
}

func (b *base) NumberOfSubscribers() int {
	return b.subscribers.Len()
}

func (b *base) deregister() {
	registry.Delete(b.id)
}

func (b *base) notifyHasChanged(v any) {
	console.Debug("property: notify has changed", "property", b.label)
	registry.Default().NotifyChange(b.label, b.subscribers.Slice(), registry.Change{Value: v, Name: b.info, Peer: b.self})
}

func (b *base) notifyRead() {
	registry.Default().NotifyRead(b.subscribers.Slice(), b.info)
}

// New creates a root property for value: an Object when value is an observed
// wrapper, a Simple for plain values. Unwrapped pointers, maps and slices are
// refused since their in-place changes could not be seen.
func New[T any](value T, owner registry.Subscriber, info string) (Property[T], error) {
	if _, ok := any(value).(observed.Observable); ok {
		o, err := NewObject(value, owner, info)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	if isReference(value) {
		return nil, ErrUnwrappedObject
	}
	return NewSimple(value, owner, info), nil
}

func isReference(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

func setAny[T any](p Property[T], v any) error {
	if v == nil {
		var zero T
		if !registry.IsNil(any(zero)) {
			return ErrTypeMismatch
		}
		p.Set(zero)
		return nil
	}
	t, ok := v.(T)
	if !ok {
		return ErrTypeMismatch
	}
	p.Set(t)
	return nil
}
