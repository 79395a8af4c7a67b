package storage

import (
	"fmt"
	"math"
	"slices"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/property"
	"github.com/delaneyj/statesync/staterr"
	"go.uber.org/multierr"
)

// Keys with a value supplied by the EnvBackend.
const (
	EnvAccessibilityEnabled = "accessibilityEnabled"
	EnvColorMode            = "colorMode"
	EnvFontScale            = "fontScale"
	EnvFontWeightScale      = "fontWeightScale"
	EnvLayoutDirection      = "layoutDirection"
	EnvLanguageCode         = "languageCode"
)

var (
	ErrEnvKeyExists   = staterr.New(staterr.Usage, "storage.EnvProp", "property already exists in app storage, not using environment property")
	ErrEnvUnsupported = staterr.New(staterr.Usage, "storage.EnvProp", "unsupported environment value type")
)

// EnvBackend reads the host environment.
type EnvBackend interface {
	AccessibilityEnabled() bool
	ColorMode() string
	FontScale() float64
	FontWeightScale() float64
	LayoutDirection() string
	LanguageCode() string
	// OnValueChanged registers fn to be called when a value changes.
	OnValueChanged(fn func(key string, value any))
}

// Environment publishes environment values as read-only props of a Local.
type Environment struct {
	local   *Local
	backend EnvBackend
	keys    []string
	props   map[string]property.Node
}

func NewEnvironment(local *Local, backend EnvBackend) *Environment {
	e := &Environment{local: local, backend: backend, props: map[string]property.Node{}}
	backend.OnValueChanged(e.onValueChanged)
	return e
}

// EnvProp adds key to the Local. Known keys take their value from the
// backend, other keys use value. Keys already in the Local are left alone.
func (e *Environment) EnvProp(key string, value any) error {
	if e.local.Has(key) {
		console.Warn("storage: "+ErrEnvKeyExists.Msg, "key", key)
		return ErrEnvKeyExists
	}
	switch key {
	case EnvAccessibilityEnabled:
		value = e.backend.AccessibilityEnabled()
	case EnvColorMode:
		value = e.backend.ColorMode()
	case EnvFontScale:
		value = e.backend.FontScale()
	case EnvFontWeightScale:
		value = math.Round(e.backend.FontWeightScale()*100) / 100
	case EnvLayoutDirection:
		value = e.backend.LayoutDirection()
	case EnvLanguageCode:
		value = e.backend.LanguageCode()
	}

	var (
		n   property.Node
		err error
	)
	switch v := value.(type) {
	case bool:
		n, err = SetAndProp(e.local, key, v, nil, "")
	case string:
		n, err = SetAndProp(e.local, key, v, nil, "")
	case float64:
		n, err = SetAndProp(e.local, key, v, nil, "")
	case int:
		n, err = SetAndProp(e.local, key, v, nil, "")
	default:
		err = ErrEnvUnsupported.Wrap(fmt.Errorf("%s: %T", key, value))
	}
	if err != nil {
		return err
	}
	e.props[key] = n
	e.keys = append(e.keys, key)
	return nil
}

// EnvValue is a key with the value used when the backend does not supply one.
type EnvValue struct {
	Key   string
	Value any
}

// EnvProps adds each value in order and returns every failure together.
func (e *Environment) EnvProps(values ...EnvValue) error {
	var err error
	for _, v := range values {
		if perr := e.EnvProp(v.Key, v.Value); perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", v.Key, perr))
		}
	}
	return err
}

func (e *Environment) Keys() []string {
	return slices.Clone(e.keys)
}

// Prop returns the environment prop for key.
func (e *Environment) Prop(key string) (property.Node, bool) {
	n, ok := e.props[key]
	return n, ok
}

func (e *Environment) onValueChanged(key string, value any) {
	if key == EnvFontWeightScale {
		if f, ok := value.(float64); ok {
			value = math.Round(f*100) / 100
		}
	}
	if !e.local.Set(key, value) {
		console.Warn("storage: environment change not applied", "key", key)
	}
}

// AboutToBeDeleted removes the props and their Local keys.
func (e *Environment) AboutToBeDeleted() {
	for _, key := range e.keys {
		e.props[key].AboutToBeDeleted()
		e.local.Delete(key)
	}
	clear(e.props)
	e.keys = nil
}
