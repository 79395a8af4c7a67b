package property

import (
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/registry"
)

// Simple holds a plain value.
type Simple[T any] struct {
	base
	value T
}

func NewSimple[T any](value T, owner registry.Subscriber, info string) *Simple[T] {
	s := &Simple[T]{value: value}
	s.init(s, "Simple", owner, info)
	return s
}

func (s *Simple[T]) Get() T {
	s.notifyRead()
	return s.value
}

func (s *Simple[T]) GetUnmonitored() T { return s.value }

func (s *Simple[T]) Set(v T) {
	if observed.ShallowEqual(any(s.value), any(v)) {
		return
	}
	s.value = v
	s.notifyHasChanged(v)
}

func (s *Simple[T]) GetAny() any        { return s.Get() }
func (s *Simple[T]) SetAny(v any) error { return setAny[T](s, v) }

// HasChanged re-announces the current value to this node's subscribers.
func (s *Simple[T]) HasChanged(any) {
	s.notifyHasChanged(s.value)
}

func (s *Simple[T]) AboutToBeDeleted() {
	s.deregister()
}

func (s *Simple[T]) CreateLink(owner registry.Subscriber, info string) (Property[T], error) {
	l, err := NewTwoWay[T](s, owner, info)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Simple[T]) CreateProp(owner registry.Subscriber, info string) (Property[T], error) {
	p, err := NewOneWayFrom[T](s, owner, info)
	if err != nil {
		return nil, err
	}
	return p, nil
}
