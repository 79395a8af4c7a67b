package property_test

import (
	"log/slog"
	"testing"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/property"
	"github.com/delaneyj/statesync/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type watcher struct {
	id     registry.ID
	values []any
	props  []string
	reads  []string
	peers  []registry.Subscriber
}

func newWatcher(t *testing.T) *watcher {
	t.Helper()
	w := &watcher{id: registry.MakeID()}
	registry.Add(w)
	t.Cleanup(func() { registry.Delete(w.id) })
	return w
}

func (w *watcher) ID() registry.ID                      { return w.id }
func (w *watcher) HasChanged(v any)                     { w.values = append(w.values, v) }
func (w *watcher) PropertyHasChanged(name string)       { w.props = append(w.props, name) }
func (w *watcher) PropertyRead(name string)             { w.reads = append(w.reads, name) }
func (w *watcher) PeerHasChanged(p registry.Subscriber) { w.peers = append(w.peers, p) }

func TestIdempotentSet(t *testing.T) {
	w := newWatcher(t)
	p := property.NewSimple(1, w, "count")
	defer p.AboutToBeDeleted()

	p.Set(5)
	p.Set(5)
	assert.Equal(t, []any{5}, w.values)
	assert.Equal(t, 5, p.GetUnmonitored())
}

func TestFanOut(t *testing.T) {
	t.Run("every subscriber gets every capability once", func(t *testing.T) {
		root := property.NewSimple("a", nil, "root")
		defer root.AboutToBeDeleted()
		ws := []*watcher{newWatcher(t), newWatcher(t), newWatcher(t)}
		for _, w := range ws {
			root.SubscribeMe(w)
		}

		root.Set("b")
		for _, w := range ws {
			assert.Equal(t, []any{"b"}, w.values)
			assert.Equal(t, []string{"root"}, w.props)
			require.Len(t, w.peers, 1)
			assert.Same(t, root, w.peers[0])
		}
	})

	t.Run("missing subscribers are skipped", func(t *testing.T) {
		capture, restore := console.NewCapture()
		defer restore()

		root := property.NewSimple(0, nil, "root")
		defer root.AboutToBeDeleted()
		gone := newWatcher(t)
		live := newWatcher(t)
		root.SubscribeMe(gone)
		root.SubscribeMe(live)
		registry.Delete(gone.id)

		root.Set(1)
		assert.Equal(t, []any{1}, live.values)
		assert.Empty(t, gone.values)
		assert.Equal(t, 1, capture.Count(slog.LevelWarn, "unknown subscriber"))
	})
}

func TestReads(t *testing.T) {
	w := newWatcher(t)
	root := property.NewSimple("v", w, "name")
	defer root.AboutToBeDeleted()

	assert.Equal(t, "v", root.Get())
	assert.Equal(t, "v", root.GetUnmonitored())
	assert.Equal(t, []string{"name"}, w.reads)
}

func TestTwoWay(t *testing.T) {
	t.Run("echo suppression", func(t *testing.T) {
		root := property.NewSimple("a", nil, "root")
		defer root.AboutToBeDeleted()
		w1, w2 := newWatcher(t), newWatcher(t)
		l1, err := root.CreateLink(w1, "l1")
		require.NoError(t, err)
		defer l1.AboutToBeDeleted()
		l2, err := root.CreateLink(w2, "l2")
		require.NoError(t, err)
		defer l2.AboutToBeDeleted()

		l1.Set("b")
		assert.Equal(t, []any{"b"}, w1.values, "exactly one outward notification per set")
		assert.Equal(t, []any{"b"}, w2.values)

		root.Set("c")
		assert.Equal(t, []any{"b", "c"}, w1.values)

		l1.Set("c")
		assert.Len(t, w1.values, 2, "unchanged value is a no-op")
	})

	t.Run("round trip chain", func(t *testing.T) {
		root := property.NewSimple("x", nil, "root")
		defer root.AboutToBeDeleted()
		l1, err := root.CreateLink(nil, "l1")
		require.NoError(t, err)
		defer l1.AboutToBeDeleted()
		l2, err := l1.CreateLink(nil, "l2")
		require.NoError(t, err)
		defer l2.AboutToBeDeleted()

		l2.Set("y")
		assert.Equal(t, "y", root.Get())
		assert.Equal(t, "y", l1.Get())
		assert.Equal(t, "y", l2.Get())
	})

	t.Run("teardown hygiene", func(t *testing.T) {
		root := property.NewSimple(1, nil, "root")
		defer root.AboutToBeDeleted()
		l, err := root.CreateLink(nil, "l")
		require.NoError(t, err)
		assert.Equal(t, 1, root.NumberOfSubscribers())

		l.AboutToBeDeleted()
		assert.Zero(t, root.NumberOfSubscribers())
		assert.False(t, registry.Has(l.ID()))
	})

	t.Run("torn down source", func(t *testing.T) {
		capture, restore := console.NewCapture()
		defer restore()

		root := property.NewSimple(7, nil, "root")
		l, err := root.CreateLink(nil, "l")
		require.NoError(t, err)
		defer l.AboutToBeDeleted()
		root.AboutToBeDeleted()

		assert.Zero(t, l.Get())
		l.Set(9)
		assert.Equal(t, 7, root.GetUnmonitored())
		assert.Equal(t, 2, capture.Count(slog.LevelError, "source is undefined"))
	})

	t.Run("nil source", func(t *testing.T) {
		_, err := property.NewTwoWay[int](nil, nil, "l")
		assert.ErrorIs(t, err, property.ErrNoSource)
	})
}

func TestOneWay(t *testing.T) {
	t.Run("isolation", func(t *testing.T) {
		root := property.NewSimple("x", nil, "root")
		defer root.AboutToBeDeleted()
		p, err := root.CreateProp(nil, "p")
		require.NoError(t, err)
		defer p.AboutToBeDeleted()

		p.Set("y")
		assert.Equal(t, "x", root.Get())
		assert.Equal(t, "y", p.Get())

		root.Set("z")
		assert.Equal(t, "z", p.Get())
	})

	t.Run("prop of a link follows the root", func(t *testing.T) {
		root := property.NewSimple(1, nil, "root")
		defer root.AboutToBeDeleted()
		l, err := root.CreateLink(nil, "l")
		require.NoError(t, err)
		defer l.AboutToBeDeleted()
		p, err := l.CreateProp(nil, "p")
		require.NoError(t, err)
		defer p.AboutToBeDeleted()

		root.Set(2)
		assert.Equal(t, 2, p.Get())

		pp, err := p.CreateProp(nil, "pp")
		require.NoError(t, err)
		defer pp.AboutToBeDeleted()
		root.Set(3)
		assert.Equal(t, 3, pp.Get())
	})

	t.Run("unsupported derivations", func(t *testing.T) {
		root := property.NewSimple(1, nil, "root")
		defer root.AboutToBeDeleted()
		p, err := root.CreateProp(nil, "p")
		require.NoError(t, err)
		defer p.AboutToBeDeleted()

		_, err = p.CreateLink(nil, "l")
		assert.ErrorIs(t, err, property.ErrLinkFromProp)

		plain := property.NewOneWay(1, nil, "plain")
		defer plain.AboutToBeDeleted()
		_, err = plain.CreateProp(nil, "pp")
		assert.ErrorIs(t, err, property.ErrPropWithoutSrc)
		plain.HasChanged(5)
		assert.Equal(t, 1, plain.Get())
	})

	t.Run("teardown unsubscribes", func(t *testing.T) {
		root := property.NewSimple(1, nil, "root")
		defer root.AboutToBeDeleted()
		p, err := root.CreateProp(nil, "p")
		require.NoError(t, err)
		p.AboutToBeDeleted()
		assert.Zero(t, root.NumberOfSubscribers())
		assert.False(t, registry.Has(p.ID()))
	})
}

func TestObject(t *testing.T) {
	t.Run("in place change reaches subscribers", func(t *testing.T) {
		w := newWatcher(t)
		raw := []int{1}
		arr, err := observed.WrapArray(&raw, nil)
		require.NoError(t, err)
		o, err := property.NewObject(arr, w, "list")
		require.NoError(t, err)
		defer o.AboutToBeDeleted()

		arr.Push(2)
		require.Len(t, w.values, 1)
		assert.Same(t, arr, w.values[0])
	})

	t.Run("set moves ownership", func(t *testing.T) {
		w := newWatcher(t)
		raw1, raw2 := []int{1}, []int{2}
		a1, err := observed.WrapArray(&raw1, nil)
		require.NoError(t, err)
		a2, err := observed.WrapArray(&raw2, nil)
		require.NoError(t, err)
		o, err := property.NewObject(a1, w, "list")
		require.NoError(t, err)
		defer o.AboutToBeDeleted()
		assert.Equal(t, []registry.ID{o.ID()}, a1.Owners())

		o.Set(a2)
		assert.Empty(t, a1.Owners())
		assert.Equal(t, []registry.ID{o.ID()}, a2.Owners())
		require.Len(t, w.values, 1)
		assert.Same(t, a2, w.values[0])

		a1.Push(5)
		assert.Len(t, w.values, 1, "the released wrapper no longer reaches the property")
	})

	t.Run("create prop is refused", func(t *testing.T) {
		raw := []int{}
		arr, err := observed.WrapArray(&raw, nil)
		require.NoError(t, err)
		o, err := property.NewObject(arr, nil, "list")
		require.NoError(t, err)
		defer o.AboutToBeDeleted()

		_, err = o.CreateProp(nil, "p")
		assert.ErrorIs(t, err, property.ErrPropOverObject)
	})

	t.Run("constructor checks", func(t *testing.T) {
		_, err := property.NewObject(42, nil, "n")
		assert.ErrorIs(t, err, property.ErrNotObservable)

		var arr *observed.Array[int]
		_, err = property.NewObject(arr, nil, "n")
		assert.ErrorIs(t, err, observed.ErrNilObject)
	})
}

func TestObjectTwoWay(t *testing.T) {
	raw1, raw2 := []string{"a"}, []string{"b"}
	a1, err := observed.WrapArray(&raw1, nil)
	require.NoError(t, err)
	a2, err := observed.WrapArray(&raw2, nil)
	require.NoError(t, err)

	root, err := property.NewObject(a1, nil, "root")
	require.NoError(t, err)
	defer root.AboutToBeDeleted()
	w := newWatcher(t)
	l, err := root.CreateLink(w, "link")
	require.NoError(t, err)
	assert.IsType(t, &property.ObjectTwoWay[*observed.Array[string]]{}, l)
	assert.Equal(t, []registry.ID{root.ID(), l.ID()}, a1.Owners())

	l.Set(a2)
	assert.Same(t, a2, root.Get())
	assert.Empty(t, a1.Owners())
	assert.Equal(t, []registry.ID{root.ID(), l.ID()}, a2.Owners())
	require.Len(t, w.values, 1)
	assert.Same(t, a2, w.values[0])

	a2.Push("c")
	// once through the source and once as an owner of the wrapper
	assert.Len(t, w.values, 3)

	_, err = l.CreateProp(nil, "p")
	assert.ErrorIs(t, err, property.ErrPropOverObject)

	l.AboutToBeDeleted()
	assert.Equal(t, []registry.ID{root.ID()}, a2.Owners())
	assert.Zero(t, root.NumberOfSubscribers())
}

func TestOwnershipChurn(t *testing.T) {
	type point struct{ X, Y int }

	t.Run("object set back to a released wrapper", func(t *testing.T) {
		raw1, raw2 := &point{}, &point{}
		w1, err := observed.WrapObject(raw1, nil)
		require.NoError(t, err)
		w2, err := observed.WrapObject(raw2, nil)
		require.NoError(t, err)

		w := newWatcher(t)
		root, err := property.NewObject(w1, w, "point")
		require.NoError(t, err)
		defer root.AboutToBeDeleted()

		root.Set(w2)
		assert.Empty(t, w1.Owners())
		root.Set(w1)
		assert.Equal(t, []registry.ID{root.ID()}, w1.Owners())

		again, err := observed.WrapObject(raw1, nil)
		require.NoError(t, err)
		assert.Same(t, w1, again)

		before := len(w.values)
		require.NoError(t, again.Set("X", 7))
		assert.Len(t, w.values, before+1)
	})

	t.Run("link set back to a released wrapper", func(t *testing.T) {
		raw1, raw2 := []int{1}, []int{2}
		a1, err := observed.WrapArray(&raw1, nil)
		require.NoError(t, err)
		a2, err := observed.WrapArray(&raw2, nil)
		require.NoError(t, err)

		root, err := property.NewObject(a1, nil, "list")
		require.NoError(t, err)
		defer root.AboutToBeDeleted()
		w := newWatcher(t)
		l, err := root.CreateLink(w, "link")
		require.NoError(t, err)
		defer l.AboutToBeDeleted()

		l.Set(a2)
		l.Set(a1)
		assert.Equal(t, []registry.ID{root.ID(), l.ID()}, a1.Owners())

		again, err := observed.WrapArray(&raw1, nil)
		require.NoError(t, err)
		assert.Same(t, a1, again)

		before := len(w.values)
		again.Push(3)
		assert.Len(t, w.values, before+2)
	})
}

type counter struct {
	observed.Subscribable
	n int
}

func (c *counter) inc() {
	c.n++
	c.NotifyPropertyHasChanged("n", c.n)
}

func TestSubscribableValue(t *testing.T) {
	c := &counter{}
	w := newWatcher(t)
	o, err := property.NewObject(c, w, "counter")
	require.NoError(t, err)
	assert.Equal(t, []registry.ID{o.ID()}, c.Owners())

	c.inc()
	require.Len(t, w.values, 1)
	assert.Same(t, c, w.values[0])

	l, err := o.CreateLink(nil, "link")
	require.NoError(t, err)
	assert.Same(t, c, l.Get())

	l.AboutToBeDeleted()
	o.AboutToBeDeleted()
	assert.Zero(t, c.NumberOfOwners())
}

func TestObjectSetAny(t *testing.T) {
	p := &struct{ X int }{}
	obj, err := observed.WrapObject(p, nil)
	require.NoError(t, err)
	o, err := property.NewObject[observed.Observable](obj, nil, "o")
	require.NoError(t, err)
	defer o.AboutToBeDeleted()

	assert.ErrorIs(t, o.SetAny(42), property.ErrNotObservable)
	assert.ErrorIs(t, o.SetAny(p), property.ErrNotObservable)
	assert.Same(t, obj, o.GetUnmonitored())

	c := &counter{}
	require.NoError(t, o.SetAny(c))
	assert.Same(t, c, o.GetUnmonitored())
	assert.Empty(t, obj.Owners())
}

func TestTypedNilSubscriber(t *testing.T) {
	var nobody *watcher
	root := property.NewSimple(1, nobody, "root")
	defer root.AboutToBeDeleted()
	assert.Zero(t, root.NumberOfSubscribers())

	assert.NotPanics(t, func() { root.SubscribeMe(nobody) })
	assert.Zero(t, root.NumberOfSubscribers())
	root.Set(2)
}

func TestNestedObject(t *testing.T) {
	type point struct{ X, Y int }
	w := newWatcher(t)
	obj, err := observed.WrapObject(&point{}, nil)
	require.NoError(t, err)
	n, err := property.NewNestedObject(obj, w, "point")
	require.NoError(t, err)

	require.NoError(t, obj.Set("X", 3))
	require.Len(t, w.values, 1)
	assert.Same(t, obj, w.values[0])

	_, err = n.CreateLink(nil, "l")
	assert.ErrorIs(t, err, property.ErrLinkToNested)
	_, err = n.CreateProp(nil, "p")
	assert.ErrorIs(t, err, property.ErrPropOverObject)

	n.AboutToBeDeleted()
	assert.Empty(t, obj.Owners())
	assert.False(t, registry.Has(n.ID()))
}

func TestNew(t *testing.T) {
	p, err := property.New(5, nil, "n")
	require.NoError(t, err)
	defer p.AboutToBeDeleted()
	assert.IsType(t, &property.Simple[int]{}, p)

	raw := map[string]int{}
	obj, err := observed.WrapObject(raw, nil)
	require.NoError(t, err)
	o, err := property.New(obj, nil, "o")
	require.NoError(t, err)
	defer o.AboutToBeDeleted()
	assert.IsType(t, &property.Object[*observed.Object]{}, o)

	_, err = property.New(&struct{}{}, nil, "raw")
	assert.ErrorIs(t, err, property.ErrUnwrappedObject)

	_, err = property.New([]int{1}, nil, "raw")
	assert.ErrorIs(t, err, property.ErrUnwrappedObject)

	var nilArr *observed.Array[int]
	_, err = property.New(nilArr, nil, "nil")
	assert.ErrorIs(t, err, observed.ErrNilObject)
}

func TestNode(t *testing.T) {
	p := property.NewSimple("a", nil, "")
	defer p.AboutToBeDeleted()

	var n property.Node = p
	assert.Equal(t, "", n.Info())
	n.SetInfo("")
	assert.Equal(t, "", n.Info())
	n.SetInfo("label")
	assert.Equal(t, "label", n.Info())

	require.NoError(t, n.SetAny("b"))
	assert.Equal(t, "b", n.GetAny())
	assert.ErrorIs(t, n.SetAny(3), property.ErrTypeMismatch)
	assert.ErrorIs(t, n.SetAny(nil), property.ErrTypeMismatch)

	q := property.NewSimple[any](1, nil, "any")
	defer q.AboutToBeDeleted()
	require.NoError(t, q.SetAny(nil))
	assert.Nil(t, q.Get())
}
