package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/kv"
	"github.com/delaneyj/statesync/metrics"
	"github.com/delaneyj/statesync/property"
	"github.com/delaneyj/statesync/registry"
	"github.com/delaneyj/statesync/staterr"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

var (
	ErrAlreadyPersisted = staterr.New(staterr.Usage, "storage.Persist", "property is already persisted")
	ErrNotPersisted     = staterr.New(staterr.Usage, "storage.Persistent.DeleteProp", "not a persisted property")
)

// Persistent mirrors selected properties of a Local into a kv.Store as JSON.
// Any change to a persisted property rewrites all of them.
type Persistent struct {
	id    registry.ID
	local *Local
	store kv.Store
	keys  []string
	links map[string]property.Node
}

func NewPersistent(local *Local, store kv.Store) *Persistent {
	p := &Persistent{
		id:    registry.MakeID(),
		local: local,
		store: store,
		links: map[string]property.Node{},
	}
	registry.Add(p)
	return p
}

func (p *Persistent) ID() registry.ID { return p.id }

func (p *Persistent) Info() string {
	return fmt.Sprintf("persistent %v", p.keys)
}

// Persist links key in the Local to the store. The value comes from the Local
// when the key exists there, else from the store, else def.
func Persist[T any](p *Persistent, key string, def T) error {
	if registry.IsNil(any(def)) {
		console.Error("storage: persist called with nil default value", "key", key)
		return ErrNilValue
	}
	if _, ok := p.links[key]; ok {
		console.Warn("storage: "+ErrAlreadyPersisted.Msg, "key", key)
		return ErrAlreadyPersisted
	}

	var (
		link property.Property[T]
		err  error
	)
	if p.local.Has(key) {
		link, err = Link[T](p.local, key, p, "")
	} else {
		value := def
		if stored, ok := load[T](p.store, key); ok {
			value = stored
		}
		link, err = SetAndLink(p.local, key, value, p, "")
	}
	if err != nil {
		return err
	}
	p.links[key] = link
	p.keys = append(p.keys, key)
	return p.writeKey(key, link)
}

// PersistProp pairs a key with its default value for PersistProps.
type PersistProp struct {
	Key     string
	persist func(*Persistent) error
}

func PersistDefault[T any](key string, def T) PersistProp {
	return PersistProp{Key: key, persist: func(p *Persistent) error {
		return Persist(p, key, def)
	}}
}

// PersistProps persists each prop in order. A failing prop does not stop the
// others; all failures are returned together.
func (p *Persistent) PersistProps(props ...PersistProp) error {
	var err error
	for _, prop := range props {
		if e := prop.persist(p); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", prop.Key, e))
		}
	}
	return err
}

func load[T any](store kv.Store, key string) (T, bool) {
	var v T
	data, err := store.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			console.Warn("storage: read failed, using default", "key", key, "error", err)
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		console.Warn("storage: stored value does not decode, using default", "key", key, "error", err)
		return v, false
	}
	if registry.IsNil(any(v)) {
		return v, false
	}
	return v, true
}

// DeleteProp unlinks key and removes it from the store. The Local keeps its
// property.
func (p *Persistent) DeleteProp(key string) error {
	link, ok := p.links[key]
	if !ok {
		console.Warn("storage: "+ErrNotPersisted.Msg, "key", key)
		return ErrNotPersisted
	}
	link.AboutToBeDeleted()
	delete(p.links, key)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == key })
	_, err := p.store.Delete(key)
	return err
}

func (p *Persistent) Keys() []string {
	return slices.Clone(p.keys)
}

// Write stores every persisted value.
func (p *Persistent) Write() error {
	return console.Trace(context.Background(), "storage.Persistent.Write", func(context.Context) error {
		var err error
		for _, key := range p.keys {
			err = multierr.Append(err, p.writeKey(key, p.links[key]))
		}
		return err
	}, attribute.Int("keys", len(p.keys)))
}

func (p *Persistent) writeKey(key string, link property.Node) error {
	err := writeJSON(p.store, key, link.GetAny())
	result := "ok"
	if err != nil {
		result = "error"
		console.Error("storage: persist write failed", "key", key, "error", err)
	}
	metrics.Default().StoreWrites.WithLabelValues("persistent", result).Inc()
	return err
}

func writeJSON(store kv.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return store.Set(key, data)
}

// PropertyHasChanged is called by the persisted links.
func (p *Persistent) PropertyHasChanged(string) {
	_ = p.Write()
}

// AboutToBeDeleted unlinks every property, deregisters and clears the store.
func (p *Persistent) AboutToBeDeleted() error {
	for _, key := range p.keys {
		p.links[key].AboutToBeDeleted()
	}
	clear(p.links)
	p.keys = nil
	registry.Delete(p.id)
	return p.store.Clear()
}
