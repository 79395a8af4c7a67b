package property

import (
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/registry"
)

// OneWay keeps a local copy of a value. When created from a source it follows
// the source's changes; local writes never travel upstream.
type OneWay[T any] struct {
	base
	value  T
	source Property[T]
}

// NewOneWay returns a prop that is not subscribed to anything. Its value is
// updated by whoever created it.
func NewOneWay[T any](value T, owner registry.Subscriber, info string) *OneWay[T] {
	p := &OneWay[T]{value: value}
	p.init(p, "OneWay", owner, info)
	return p
}

// NewOneWayFrom returns a prop initialized from source and subscribed to it.
func NewOneWayFrom[T any](source Property[T], owner registry.Subscriber, info string) (*OneWay[T], error) {
	if registry.IsNil(source) {
		return nil, ErrNoSource
	}
	p := &OneWay[T]{value: source.GetUnmonitored(), source: source}
	p.init(p, "OneWay", owner, info)
	source.SubscribeMe(p)
	return p, nil
}

func (p *OneWay[T]) Get() T {
	p.notifyRead()
	return p.value
}

func (p *OneWay[T]) GetUnmonitored() T { return p.value }

func (p *OneWay[T]) Set(v T) {
	if observed.ShallowEqual(any(p.value), any(v)) {
		return
	}
	p.value = v
	p.notifyHasChanged(v)
}

func (p *OneWay[T]) GetAny() any        { return p.Get() }
func (p *OneWay[T]) SetAny(v any) error { return setAny[T](p, v) }

// HasChanged applies a source change locally.
func (p *OneWay[T]) HasChanged(v any) {
	if p.source == nil {
		return
	}
	if t, ok := v.(T); ok {
		p.Set(t)
		return
	}
	p.Set(p.source.GetUnmonitored())
}

func (p *OneWay[T]) AboutToBeDeleted() {
	if p.source != nil {
		p.source.UnlinkSubscriber(p.id)
		p.source = nil
	}
	p.deregister()
}

func (p *OneWay[T]) CreateLink(registry.Subscriber, string) (Property[T], error) {
	return nil, ErrLinkFromProp
}

func (p *OneWay[T]) CreateProp(owner registry.Subscriber, info string) (Property[T], error) {
	if p.source == nil {
		return nil, ErrPropWithoutSrc
	}
	n, err := NewOneWayFrom[T](p, owner, info)
	if err != nil {
		return nil, err
	}
	return n, nil
}
