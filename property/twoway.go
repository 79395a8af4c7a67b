package property

import (
	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/registry"
)

// TwoWay reads through to its source and writes through to it.
//
// A local Set makes the source notify this link back. notifying suppresses
// that echo so each Set reaches the link's subscribers once.
type TwoWay[T any] struct {
	base
	source    Property[T]
	notifying bool
}

func NewTwoWay[T any](source Property[T], owner registry.Subscriber, info string) (*TwoWay[T], error) {
	if registry.IsNil(source) {
		return nil, ErrNoSource
	}
	l := &TwoWay[T]{source: source}
	l.init(l, "TwoWay", owner, info)
	source.SubscribeMe(l)
	return l, nil
}

// live returns the source, or logs and reports false when it is gone.
func (l *TwoWay[T]) live(op string) (Property[T], bool) {
	return liveSource(l.source, l.label, op)
}

func liveSource[T any](source Property[T], label, op string) (Property[T], bool) {
	if source == nil || !registry.Has(source.ID()) {
		console.Error("property: "+op+": "+ErrSourceUndefined.Msg, "property", label)
		return nil, false
	}
	return source, true
}

func (l *TwoWay[T]) Get() T {
	src, ok := l.live("get")
	if !ok {
		var zero T
		return zero
	}
	l.notifyRead()
	return src.Get()
}

func (l *TwoWay[T]) GetUnmonitored() T {
	src, ok := l.live("get")
	if !ok {
		var zero T
		return zero
	}
	return src.GetUnmonitored()
}

func (l *TwoWay[T]) Set(v T) {
	src, ok := l.live("set")
	if !ok {
		return
	}
	if observed.ShallowEqual(any(src.GetUnmonitored()), any(v)) {
		return
	}
	l.notifying = true
	defer func() { l.notifying = false }()
	src.Set(v)
	l.notifyHasChanged(v)
}

func (l *TwoWay[T]) GetAny() any        { return l.Get() }
func (l *TwoWay[T]) SetAny(v any) error { return setAny[T](l, v) }

// HasChanged forwards a source change unless it is the echo of a local Set.
func (l *TwoWay[T]) HasChanged(v any) {
	if !l.notifying {
		l.notifyHasChanged(v)
	}
}

func (l *TwoWay[T]) AboutToBeDeleted() {
	if l.source != nil {
		l.source.UnlinkSubscriber(l.id)
		l.source = nil
	}
	l.deregister()
}

func (l *TwoWay[T]) CreateLink(owner registry.Subscriber, info string) (Property[T], error) {
	n, err := NewTwoWay[T](l, owner, info)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (l *TwoWay[T]) CreateProp(owner registry.Subscriber, info string) (Property[T], error) {
	p, err := NewOneWayFrom[T](l, owner, info)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ObjectTwoWay is a two-way link over an object-valued source. It also owns
// the source's current wrapper so in-place changes reach it directly.
type ObjectTwoWay[T any] struct {
	base
	source    Property[T]
	held      any
	notifying bool
}

func NewObjectTwoWay[T any](source Property[T], owner registry.Subscriber, info string) (*ObjectTwoWay[T], error) {
	if registry.IsNil(source) {
		return nil, ErrNoSource
	}
	l := &ObjectTwoWay[T]{source: source}
	l.init(l, "ObjectTwoWay", owner, info)
	source.SubscribeMe(l)
	l.hold(any(source.GetUnmonitored()))
	return l, nil
}

func (l *ObjectTwoWay[T]) Get() T {
	src, ok := liveSource(l.source, l.label, "get")
	if !ok {
		var zero T
		return zero
	}
	l.notifyRead()
	return src.Get()
}

func (l *ObjectTwoWay[T]) GetUnmonitored() T {
	src, ok := liveSource(l.source, l.label, "get")
	if !ok {
		var zero T
		return zero
	}
	return src.GetUnmonitored()
}

// Set leaves the old wrapper's owners, writes through, joins the new
// wrapper's owners and notifies.
func (l *ObjectTwoWay[T]) Set(v T) {
	src, ok := liveSource(l.source, l.label, "set")
	if !ok {
		return
	}
	cur := src.GetUnmonitored()
	if observed.ShallowEqual(any(cur), any(v)) {
		return
	}
	l.hold(nil)
	l.notifying = true
	defer func() { l.notifying = false }()
	src.Set(v)
	l.hold(any(src.GetUnmonitored()))
	l.notifyHasChanged(v)
}

// hold swaps the wrapper this link owns.
func (l *ObjectTwoWay[T]) hold(v any) {
	release(l.held, l.id)
	l.held = v
	adopt(v, l)
}

func (l *ObjectTwoWay[T]) GetAny() any        { return l.Get() }
func (l *ObjectTwoWay[T]) SetAny(v any) error { return setObject[T](l, v) }

// HasChanged is called by the source or by the owned wrapper.
func (l *ObjectTwoWay[T]) HasChanged(any) {
	if l.notifying || l.source == nil {
		return
	}
	l.notifyHasChanged(l.source.GetUnmonitored())
}

func (l *ObjectTwoWay[T]) AboutToBeDeleted() {
	if l.source != nil {
		l.source.UnlinkSubscriber(l.id)
		l.source = nil
	}
	if l.held != nil {
		l.hold(nil)
	}
	l.deregister()
}

func (l *ObjectTwoWay[T]) CreateLink(owner registry.Subscriber, info string) (Property[T], error) {
	n, err := NewObjectTwoWay[T](l, owner, info)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (l *ObjectTwoWay[T]) CreateProp(registry.Subscriber, string) (Property[T], error) {
	return nil, ErrPropOverObject
}
