package property

import (
	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/registry"
)

// objectCell holds an observed wrapper and is one of its owners, so in-place
// changes to the wrapped object reach this node's subscribers.
type objectCell[T any] struct {
	base
	value T
}

func (c *objectCell[T]) Get() T {
	c.notifyRead()
	return c.value
}

func (c *objectCell[T]) GetUnmonitored() T { return c.value }

// Set moves ownership from the old wrapper to v, then notifies.
func (c *objectCell[T]) Set(v T) {
	if observed.ShallowEqual(any(c.value), any(v)) {
		return
	}
	if !registry.IsNil(any(v)) && !observed.IsObserved(any(v)) {
		console.Error("property: set with a value that is not an observed wrapper", "property", c.label)
		return
	}
	release(any(c.value), c.id)
	c.value = v
	adopt(any(v), c.self)
	c.notifyHasChanged(v)
}

func (c *objectCell[T]) GetAny() any { return c.Get() }

// HasChanged is called by the wrapper when the object changed in place.
func (c *objectCell[T]) HasChanged(any) {
	c.notifyHasChanged(c.value)
}

func (c *objectCell[T]) AboutToBeDeleted() {
	release(any(c.value), c.id)
	c.deregister()
}

func checkObservable(v any) error {
	if registry.IsNil(v) {
		return observed.ErrNilObject
	}
	if !observed.IsObserved(v) {
		return ErrNotObservable
	}
	return nil
}

// setObject is setAny for object-valued nodes, refusing values that are not
// observable instead of dropping them in Set.
func setObject[T any](p Property[T], v any) error {
	if v != nil && !observed.IsObserved(v) {
		return ErrNotObservable
	}
	return setAny[T](p, v)
}

func adopt(v any, owner registry.Subscriber) {
	if !registry.IsNil(v) {
		observed.AddOwner(v, owner)
	}
}

func release(v any, id registry.ID) {
	if !registry.IsNil(v) {
		observed.RemoveOwner(v, id)
	}
}

// Object is a root property whose value is an observed wrapper.
type Object[T any] struct {
	objectCell[T]
}

func NewObject[T any](value T, owner registry.Subscriber, info string) (*Object[T], error) {
	if err := checkObservable(any(value)); err != nil {
		return nil, err
	}
	o := &Object[T]{}
	o.init(o, "Object", owner, info)
	o.value = value
	adopt(any(value), o)
	return o, nil
}

func (o *Object[T]) SetAny(v any) error { return setObject[T](o, v) }

func (o *Object[T]) CreateLink(owner registry.Subscriber, info string) (Property[T], error) {
	l, err := NewObjectTwoWay[T](o, owner, info)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (o *Object[T]) CreateProp(registry.Subscriber, string) (Property[T], error) {
	return nil, ErrPropOverObject
}

// NestedObject owns a wrapper that lives inside another observed object,
// e.g. one element of an observed array. It has no source node.
type NestedObject[T any] struct {
	objectCell[T]
}

func NewNestedObject[T any](value T, owner registry.Subscriber, info string) (*NestedObject[T], error) {
	if err := checkObservable(any(value)); err != nil {
		return nil, err
	}
	n := &NestedObject[T]{}
	n.init(n, "NestedObject", owner, info)
	n.value = value
	adopt(any(value), n)
	return n, nil
}

func (n *NestedObject[T]) SetAny(v any) error { return setObject[T](n, v) }

func (n *NestedObject[T]) CreateLink(registry.Subscriber, string) (Property[T], error) {
	return nil, ErrLinkToNested
}

func (n *NestedObject[T]) CreateProp(registry.Subscriber, string) (Property[T], error) {
	return nil, ErrPropOverObject
}
