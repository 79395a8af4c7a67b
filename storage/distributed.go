package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/kv"
	"github.com/delaneyj/statesync/metrics"
	"github.com/delaneyj/statesync/property"
	"github.com/delaneyj/statesync/registry"
	"github.com/delaneyj/statesync/staterr"
	"github.com/google/uuid"
)

var (
	ErrAlreadyDistributed = staterr.New(staterr.Usage, "storage.Distribute", "property is already distributed")
	ErrNotDistributed     = staterr.New(staterr.Usage, "storage.Distributed.DeleteProp", "not a distributed property")
	ErrUnavailable        = staterr.New(staterr.Usage, "storage.Distributed", "distributed storage is not available")
)

type distLink struct {
	node   property.Node
	decode func([]byte) (any, error)
}

// Distributed shares selected Local properties through a store that other
// participants of the same session also read and write. It is unavailable
// until OnConnected is called; until then values stay local.
type Distributed struct {
	id        registry.ID
	session   string
	local     *Local
	store     kv.Store
	notifier  func(status string)
	available bool
	keys      []string
	links     map[string]distLink
	// pushed holds the fingerprint of the last value written or received
	// per key.
	pushed map[string]uint64
}

// NewDistributed joins session, or a new random session when sessionID is
// empty. notifier, if not nil, receives every connection status.
func NewDistributed(local *Local, store kv.Store, sessionID string, notifier func(status string)) *Distributed {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	d := &Distributed{
		id:       registry.MakeID(),
		session:  sessionID,
		local:    local,
		store:    store,
		notifier: notifier,
		links:    map[string]distLink{},
		pushed:   map[string]uint64{},
	}
	registry.Add(d)
	return d
}

func (d *Distributed) ID() registry.ID { return d.id }

func (d *Distributed) Info() string { return "distributed " + d.session }

func (d *Distributed) SessionID() string { return d.session }

func (d *Distributed) Available() bool { return d.available }

func (d *Distributed) storeKey(key string) string {
	return d.session + "/" + key
}

// Distribute links key in the Local to the session. A key already in the
// Local pushes its value; otherwise the session's value wins over def once
// connected.
func Distribute[T any](d *Distributed, key string, def T) error {
	if registry.IsNil(any(def)) {
		console.Error("storage: distribute called with nil default value", "key", key)
		return ErrNilValue
	}
	if _, ok := d.links[key]; ok {
		console.Warn("storage: "+ErrAlreadyDistributed.Msg, "key", key)
		return ErrAlreadyDistributed
	}
	decode := func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	var link property.Property[T]
	if d.local.Has(key) {
		l, err := Link[T](d.local, key, d, "")
		if err != nil {
			return err
		}
		link = l
		d.add(key, distLink{node: link, decode: decode})
		d.push(key, link.GetUnmonitored())
		return nil
	}

	value := def
	if d.available {
		if remote, ok := d.fetch(key, decode); ok {
			value = remote.(T)
		} else {
			d.push(key, def)
		}
	}
	link, err := SetAndLink(d.local, key, value, d, "")
	if err != nil {
		return err
	}
	d.add(key, distLink{node: link, decode: decode})
	return nil
}

func (d *Distributed) add(key string, l distLink) {
	d.links[key] = l
	d.keys = append(d.keys, key)
}

func (d *Distributed) Keys() []string {
	return slices.Clone(d.keys)
}

// DeleteProp unlinks key and, when connected, removes it from the session.
func (d *Distributed) DeleteProp(key string) error {
	l, ok := d.links[key]
	if !ok {
		console.Warn("storage: "+ErrNotDistributed.Msg, "key", key)
		return ErrNotDistributed
	}
	l.node.AboutToBeDeleted()
	delete(d.links, key)
	delete(d.pushed, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
	if d.available {
		_, err := d.store.Delete(d.storeKey(key))
		return err
	}
	return nil
}

// PropertyHasChanged is called by a distributed link; info is its key.
func (d *Distributed) PropertyHasChanged(info string) {
	if l, ok := d.links[info]; ok {
		d.push(info, l.node.GetAny())
	}
}

// OnDataChange applies the session's current value of key locally.
func (d *Distributed) OnDataChange(key string) {
	l, ok := d.links[key]
	if !ok {
		return
	}
	if v, ok := d.fetch(key, l.decode); ok {
		d.apply(key, l, v)
	}
}

// OnConnected marks the storage available and syncs every linked key: the
// session's value when present, the local value otherwise.
func (d *Distributed) OnConnected(status string) {
	console.Info("storage: distributed storage connected", "session", d.session, "status", status)
	if !d.available {
		d.available = true
		d.sync()
	}
	if d.notifier != nil {
		d.notifier(status)
	}
}

func (d *Distributed) sync() {
	for _, key := range d.keys {
		l := d.links[key]
		if v, ok := d.fetch(key, l.decode); ok {
			d.apply(key, l, v)
		} else {
			d.push(key, l.node.GetAny())
		}
	}
}

func (d *Distributed) apply(key string, l distLink, v any) {
	if data, err := json.Marshal(v); err == nil {
		d.pushed[key] = xxhash.Sum64(data)
	}
	if err := l.node.SetAny(v); err != nil {
		console.Warn("storage: distributed value not applied", "key", key, "error", err)
	}
}

func (d *Distributed) fetch(key string, decode func([]byte) (any, error)) (any, bool) {
	data, err := d.store.Get(d.storeKey(key))
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			console.Warn("storage: distributed read failed", "key", key, "error", err)
		}
		return nil, false
	}
	v, err := decode(data)
	if err != nil || registry.IsNil(v) {
		console.Warn("storage: distributed value does not decode", "key", key, "error", err)
		return nil, false
	}
	return v, true
}

// push writes v unless it is what the session already holds.
func (d *Distributed) push(key string, v any) {
	if !d.available {
		console.Warn("storage: "+ErrUnavailable.Msg, "key", key)
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		console.Error("storage: distributed encode failed", "key", key, "error", err)
		return
	}
	sum := xxhash.Sum64(data)
	if last, ok := d.pushed[key]; ok && last == sum {
		console.Debug("storage: distributed value unchanged, not pushed", "key", key)
		return
	}
	result := "ok"
	if err := d.store.Set(d.storeKey(key), data); err != nil {
		result = "error"
		console.Error("storage: distributed write failed", "key", key, "error", fmt.Errorf("%s: %w", d.session, err))
	} else {
		d.pushed[key] = sum
	}
	metrics.Default().StoreWrites.WithLabelValues("distributed", result).Inc()
}

// AboutToBeDeleted unlinks every property and deregisters. The session's
// values are left in place for the other participants.
func (d *Distributed) AboutToBeDeleted() {
	for _, key := range d.keys {
		d.links[key].node.AboutToBeDeleted()
	}
	clear(d.links)
	clear(d.pushed)
	d.keys = nil
	registry.Delete(d.id)
}
