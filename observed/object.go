package observed

import (
	"encoding/json"
	"reflect"
	"slices"

	"github.com/delaneyj/statesync/registry"
)

// Object wraps a struct pointer or a map with string keys. Properties are
// exported struct fields or map entries.
type Object struct {
	handler
	raw   any
	value reflect.Value
	isMap bool
}

// WrapObject wraps a struct pointer or a string-keyed map.
func WrapObject(raw any, owner registry.Subscriber) (*Object, error) {
	if registry.IsNil(raw) {
		return nil, ErrNilObject
	}
	v := reflect.ValueOf(raw)
	o := &Object{raw: raw}
	switch {
	case v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct:
		o.value = v.Elem()
	case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
		o.value = v
		o.isMap = true
	default:
		return nil, ErrNotAnObject
	}
	return wrapOnce(raw, owner, func(key identityKey) *Object {
		o.handler = newHandler("object", key)
		return o
	})
}

func (o *Object) Raw() any { return o.raw }

// Get reads a property and tells read subscribers about it.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.lookup(name)
	if !ok {
		return nil, false
	}
	o.notifyRead(name)
	return v.Interface(), true
}

func (o *Object) Has(name string) bool {
	_, ok := o.lookup(name)
	return ok
}

// Keys lists exported fields in declaration order, or map keys sorted.
func (o *Object) Keys() []string {
	if o.isMap {
		keys := make([]string, 0, o.value.Len())
		iter := o.value.MapRange()
		for iter.Next() {
			keys = append(keys, iter.Key().String())
		}
		slices.Sort(keys)
		return keys
	}
	t := o.value.Type()
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.IsExported() {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

// Set writes a property. Owners are notified with the new value unless it is
// shallow-equal to the current one.
func (o *Object) Set(name string, value any) error {
	if o.isMap {
		return o.setEntry(name, value)
	}
	field := o.value.FieldByName(name)
	if !field.IsValid() || !field.CanSet() {
		return ErrNoSuchField
	}
	nv, err := assignable(value, field.Type())
	if err != nil {
		return err
	}
	if ShallowEqual(field.Interface(), nv.Interface()) {
		return nil
	}
	field.Set(nv)
	o.notifyChanged("set", name, value)
	return nil
}

// Delete removes a map entry. Struct fields cannot be deleted.
func (o *Object) Delete(name string) bool {
	if !o.isMap {
		return false
	}
	key := reflect.ValueOf(name).Convert(o.value.Type().Key())
	if !o.value.MapIndex(key).IsValid() {
		return false
	}
	o.value.SetMapIndex(key, reflect.Value{})
	o.notifyChanged("delete", name, nil)
	return true
}

func (o *Object) setEntry(name string, value any) error {
	mt := o.value.Type()
	nv, err := assignable(value, mt.Elem())
	if err != nil {
		return err
	}
	key := reflect.ValueOf(name).Convert(mt.Key())
	if old := o.value.MapIndex(key); old.IsValid() && ShallowEqual(old.Interface(), nv.Interface()) {
		return nil
	}
	o.value.SetMapIndex(key, nv)
	o.notifyChanged("set", name, value)
	return nil
}

func (o *Object) lookup(name string) (reflect.Value, bool) {
	if o.isMap {
		v := o.value.MapIndex(reflect.ValueOf(name).Convert(o.value.Type().Key()))
		return v, v.IsValid()
	}
	f, ok := o.value.Type().FieldByName(name)
	if !ok || !f.IsExported() {
		return reflect.Value{}, false
	}
	return o.value.FieldByIndex(f.Index), true
}

func assignable(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, ErrTypeMismatch
	}
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, ErrTypeMismatch
	}
	if v.Type() != t {
		nv := reflect.New(t).Elem()
		nv.Set(v)
		return nv, nil
	}
	return v, nil
}

// Field reads a property of o as T.
func Field[T any](o *Object, name string) (T, bool) {
	var zero T
	v, ok := o.Get(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.raw)
}

// UnmarshalJSON decodes into the wrapped object in place and notifies owners
// with the wrapper. A zero Object decodes into a new map[string]any.
func (o *Object) UnmarshalJSON(data []byte) error {
	if o.raw == nil {
		m := map[string]any{}
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		o.raw, o.value, o.isMap = m, reflect.ValueOf(m), true
		o.handler = newHandler("object", keyOf(m))
		identities.store(o.key, o)
		return nil
	}
	ptr := o.raw
	if o.isMap {
		p := reflect.New(o.value.Type())
		p.Elem().Set(o.value)
		ptr = p.Interface()
	}
	if err := json.Unmarshal(data, ptr); err != nil {
		return err
	}
	o.notifyChanged("unmarshal", "", o)
	return nil
}
