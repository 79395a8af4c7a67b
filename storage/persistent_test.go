package storage_test

import (
	"log/slog"
	"testing"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/kv"
	"github.com/delaneyj/statesync/observed"
	"github.com/delaneyj/statesync/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T, opts ...storage.Option) *storage.Local {
	t.Helper()
	storage.ResetApp()
	t.Cleanup(storage.ResetApp)
	app, err := storage.CreateApp(opts...)
	require.NoError(t, err)
	return app
}

func stored(t *testing.T, store kv.Store, key string) string {
	t.Helper()
	data, err := store.Get(key)
	require.NoError(t, err)
	return string(data)
}

func TestPersistentLinksWriteThrough(t *testing.T) {
	app := newApp(t, storage.WithProp("say", "Hello"))
	store := kv.NewMemory()
	p := storage.NewPersistent(app, store)
	t.Cleanup(func() { _ = p.AboutToBeDeleted() })

	require.NoError(t, storage.Persist(p, "say", "Hello"))
	assert.JSONEq(t, `"Hello"`, stored(t, store, "say"))

	link1, err := storage.Link[string](app, "say", nil, "")
	require.NoError(t, err)
	link2, err := storage.Link[string](app, "say", nil, "")
	require.NoError(t, err)

	link1.Set("Anton")
	assert.JSONEq(t, `"Anton"`, stored(t, store, "say"))
	assert.Equal(t, "Anton", link2.Get())
	v, _ := app.Get("say")
	assert.Equal(t, "Anton", v)
}

func TestPersistent(t *testing.T) {
	t.Run("restores from store", func(t *testing.T) {
		app := newApp(t)
		store := kv.NewMemory()
		require.NoError(t, store.Set("count", []byte("7")))
		p := storage.NewPersistent(app, store)

		require.NoError(t, storage.Persist(p, "count", 0))
		n, ok := storage.GetAs[int](app, "count")
		assert.True(t, ok)
		assert.Equal(t, 7, n)
	})

	t.Run("default when absent", func(t *testing.T) {
		app := newApp(t)
		store := kv.NewMemory()
		p := storage.NewPersistent(app, store)

		require.NoError(t, storage.Persist(p, "fresh", "x"))
		assert.JSONEq(t, `"x"`, stored(t, store, "fresh"))
		assert.Equal(t, []string{"fresh"}, p.Keys())
	})

	t.Run("local value wins", func(t *testing.T) {
		app := newApp(t, storage.WithProp("say", "Hello"))
		store := kv.NewMemory()
		require.NoError(t, store.Set("say", []byte(`"Old"`)))
		p := storage.NewPersistent(app, store)

		require.NoError(t, storage.Persist(p, "say", "Default"))
		assert.JSONEq(t, `"Hello"`, stored(t, store, "say"))
	})

	t.Run("undecodable store value", func(t *testing.T) {
		capture, restore := console.NewCapture()
		defer restore()

		app := newApp(t)
		store := kv.NewMemory()
		require.NoError(t, store.Set("n", []byte("{")))
		p := storage.NewPersistent(app, store)

		require.NoError(t, storage.Persist(p, "n", 3))
		n, _ := storage.GetAs[int](app, "n")
		assert.Equal(t, 3, n)
		assert.Equal(t, 1, capture.Count(slog.LevelWarn, "does not decode"))
	})

	t.Run("refusals", func(t *testing.T) {
		app := newApp(t)
		p := storage.NewPersistent(app, kv.NewMemory())

		require.NoError(t, storage.Persist(p, "k", 1))
		assert.ErrorIs(t, storage.Persist(p, "k", 2), storage.ErrAlreadyPersisted)
		assert.ErrorIs(t, storage.Persist[*observed.Array[int]](p, "arr", nil), storage.ErrNilValue)
		assert.ErrorIs(t, p.DeleteProp("missing"), storage.ErrNotPersisted)
	})

	t.Run("batch", func(t *testing.T) {
		app := newApp(t)
		store := kv.NewMemory()
		require.NoError(t, store.Set("b", []byte(`"stored"`)))
		p := storage.NewPersistent(app, store)

		err := p.PersistProps(
			storage.PersistDefault("a", 1),
			storage.PersistDefault("b", "x"),
			storage.PersistDefault("a", 2),
		)
		require.ErrorIs(t, err, storage.ErrAlreadyPersisted)
		assert.Contains(t, err.Error(), "a: ")
		assert.Equal(t, []string{"a", "b"}, p.Keys())
		b, _ := storage.GetAs[string](app, "b")
		assert.Equal(t, "stored", b)

		assert.NoError(t, p.PersistProps())
	})

	t.Run("delete prop", func(t *testing.T) {
		app := newApp(t)
		store := kv.NewMemory()
		p := storage.NewPersistent(app, store)
		require.NoError(t, storage.Persist(p, "k", 1))

		require.NoError(t, p.DeleteProp("k"))
		_, err := store.Get("k")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
		assert.True(t, app.Has("k"))
		assert.Empty(t, p.Keys())

		app.Set("k", 2)
		_, err = store.Get("k")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	})

	t.Run("observed array", func(t *testing.T) {
		app := newApp(t)
		store := kv.NewMemory()
		p := storage.NewPersistent(app, store)

		raw := []int{1, 2}
		arr, err := observed.WrapArray(&raw, nil)
		require.NoError(t, err)
		require.NoError(t, storage.Persist(p, "list", arr))
		assert.JSONEq(t, `[1,2]`, stored(t, store, "list"))

		arr.Push(3)
		assert.JSONEq(t, `[1,2,3]`, stored(t, store, "list"))
	})

	t.Run("observed array restored", func(t *testing.T) {
		app := newApp(t)
		store := kv.NewMemory()
		require.NoError(t, store.Set("list", []byte(`[4,5]`)))
		p := storage.NewPersistent(app, store)

		require.NoError(t, storage.Persist(p, "list", &observed.Array[int]{}))
		arr, ok := storage.GetAs[*observed.Array[int]](app, "list")
		require.True(t, ok)
		assert.Equal(t, []int{4, 5}, arr.Values())
	})

	t.Run("teardown clears store", func(t *testing.T) {
		app := newApp(t, storage.WithProp("k", 1))
		store := kv.NewMemory()
		p := storage.NewPersistent(app, store)
		require.NoError(t, storage.Persist(p, "k", 0))

		require.NoError(t, p.AboutToBeDeleted())
		keys, err := store.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
		assert.True(t, app.Delete("k"))
	})
}
