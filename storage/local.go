// Package storage hosts root properties under string keys and connects them
// to external key-value stores.
//
// Local is a scoped store. App is the process-wide Local. Persistent,
// Environment and Distributed link App properties to a kv.Store, the host
// environment and a shared session store respectively.
package storage

import (
	"fmt"
	"slices"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/property"
	"github.com/delaneyj/statesync/registry"
	"github.com/delaneyj/statesync/staterr"
	"go.uber.org/multierr"
)

var (
	ErrNoSuchProperty = staterr.New(staterr.Usage, "storage.Local", "no such property")
	ErrNilValue       = staterr.New(staterr.Usage, "storage.Local", "nil values are not allowed")
	ErrHasSubscribers = staterr.New(staterr.Usage, "storage.Local.Delete", "property still has subscribers, they need to unsubscribe first")
	ErrTypeMismatch   = staterr.New(staterr.Usage, "storage.Local", "stored property has a different type")
)

// Local maps keys to root properties. Each key has exactly one node; links
// and props created from a key all share it.
type Local struct {
	keys  []string
	props map[string]property.Node
}

type Option func(*Local)

// WithProp initializes key with value. Nil values are skipped.
func WithProp[T any](key string, value T) Option {
	return func(l *Local) {
		SetOrCreate(l, key, value)
	}
}

func NewLocal(opts ...Option) *Local {
	l := &Local{props: map[string]property.Node{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Local) Has(key string) bool {
	_, ok := l.props[key]
	return ok
}

// Keys returns the keys in insertion order.
func (l *Local) Keys() []string {
	return slices.Clone(l.keys)
}

func (l *Local) Size() int {
	return len(l.keys)
}

// Node returns the root property stored under key.
func (l *Local) Node(key string) (property.Node, bool) {
	n, ok := l.props[key]
	return n, ok
}

func (l *Local) Get(key string) (any, bool) {
	n, ok := l.props[key]
	if !ok {
		return nil, false
	}
	return n.GetAny(), true
}

// Set updates an existing property. It fails for unknown keys, nil values and
// values of the wrong type.
func (l *Local) Set(key string, value any) bool {
	if registry.IsNil(value) {
		console.Warn("storage: set with nil value not allowed", "key", key)
		return false
	}
	n, ok := l.props[key]
	if !ok {
		console.Warn("storage: set: no such property", "key", key)
		return false
	}
	if err := n.SetAny(value); err != nil {
		console.Warn("storage: set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes key. It refuses while the property still has subscribers.
func (l *Local) Delete(key string) bool {
	n, ok := l.props[key]
	if !ok {
		console.Warn("storage: attempt to delete unknown property", "key", key)
		return false
	}
	if c := n.NumberOfSubscribers(); c > 0 {
		console.Error("storage: "+ErrHasSubscribers.Msg, "key", key, "subscribers", c)
		return false
	}
	n.AboutToBeDeleted()
	l.remove(key)
	return true
}

func (l *Local) remove(key string) {
	delete(l.props, key)
	l.keys = slices.DeleteFunc(l.keys, func(k string) bool { return k == key })
}

// Clear deletes every property, or none when any still has subscribers. The
// error lists each blocking key.
func (l *Local) Clear() error {
	var err error
	for _, key := range l.keys {
		if c := l.props[key].NumberOfSubscribers(); c > 0 {
			err = multierr.Append(err, ErrHasSubscribers.Wrap(fmt.Errorf("%s has %d subscribers", key, c)))
		}
	}
	if err != nil {
		console.Error("storage: clear refused", "error", err)
		return err
	}
	l.teardown()
	return nil
}

func (l *Local) teardown() {
	for _, key := range l.keys {
		l.props[key].AboutToBeDeleted()
	}
	clear(l.props)
	l.keys = nil
}

// AboutToBeDeleted closes the store down, see Clear.
func (l *Local) AboutToBeDeleted() error {
	return l.Clear()
}

func (l *Local) SubscribeToChangesOf(key string, sub registry.Subscriber) bool {
	n, ok := l.props[key]
	if !ok {
		return false
	}
	n.SubscribeMe(sub)
	return true
}

func (l *Local) UnsubscribeFromChangesOf(key string, id registry.ID) bool {
	n, ok := l.props[key]
	if !ok {
		return false
	}
	n.UnlinkSubscriber(id)
	return true
}

func (l *Local) NumberOfSubscribersTo(key string) (int, bool) {
	n, ok := l.props[key]
	if !ok {
		return 0, false
	}
	return n.NumberOfSubscribers(), true
}

func lookup[T any](l *Local, key string) (property.Property[T], error) {
	n, ok := l.props[key]
	if !ok {
		return nil, ErrNoSuchProperty
	}
	p, ok := n.(property.Property[T])
	if !ok {
		return nil, ErrTypeMismatch
	}
	return p, nil
}

// GetAs returns the value under key as T.
func GetAs[T any](l *Local, key string) (T, bool) {
	p, err := lookup[T](l, key)
	if err != nil {
		var zero T
		return zero, false
	}
	return p.Get(), true
}

// SetOrCreate sets key to value, creating the property when missing.
func SetOrCreate[T any](l *Local, key string, value T) bool {
	if err := setOrCreate(l, key, value); err != nil {
		console.Warn("storage: setOrCreate failed", "key", key, "error", err)
		return false
	}
	return true
}

func setOrCreate[T any](l *Local, key string, value T) error {
	if registry.IsNil(any(value)) {
		return ErrNilValue
	}
	if n, ok := l.props[key]; ok {
		return n.SetAny(value)
	}
	p, err := property.New(value, nil, key)
	if err != nil {
		return err
	}
	l.props[key] = p
	l.keys = append(l.keys, key)
	return nil
}

// Link returns a two-way link to key. info, when given, replaces the key as
// the link's name in notifications.
func Link[T any](l *Local, key string, owner registry.Subscriber, info string) (property.Property[T], error) {
	p, err := lookup[T](l, key)
	if err != nil {
		console.Warn("storage: link failed", "key", key, "error", err)
		return nil, err
	}
	link, err := p.CreateLink(owner, key)
	if err != nil {
		return nil, err
	}
	link.SetInfo(info)
	return link, nil
}

// SetAndLink is Link, creating key with def first when missing.
func SetAndLink[T any](l *Local, key string, def T, owner registry.Subscriber, info string) (property.Property[T], error) {
	if !l.Has(key) {
		if err := setOrCreate(l, key, def); err != nil {
			return nil, err
		}
	}
	return Link[T](l, key, owner, info)
}

// Prop returns a one-way prop of key.
func Prop[T any](l *Local, key string, owner registry.Subscriber, info string) (property.Property[T], error) {
	p, err := lookup[T](l, key)
	if err != nil {
		console.Warn("storage: prop failed", "key", key, "error", err)
		return nil, err
	}
	prop, err := p.CreateProp(owner, key)
	if err != nil {
		return nil, err
	}
	prop.SetInfo(info)
	return prop, nil
}

// SetAndProp is Prop, creating key with def first when missing.
func SetAndProp[T any](l *Local, key string, def T, owner registry.Subscriber, info string) (property.Property[T], error) {
	if !l.Has(key) {
		if err := setOrCreate(l, key, def); err != nil {
			return nil, err
		}
	}
	return Prop[T](l, key, owner, info)
}
