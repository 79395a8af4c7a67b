package storage

import (
	"sync"

	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/staterr"
)

var ErrAppExists = staterr.New(staterr.Usage, "storage.CreateApp", "app storage instance exists already")

var app struct {
	mu    sync.Mutex
	local *Local
}

// App returns the process-wide store, creating an empty one if CreateApp was
// never called.
func App() *Local {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.local == nil {
		console.Warn("storage: app storage instance missing, creating one without initialization")
		app.local = NewLocal()
	}
	return app.local
}

// CreateApp creates the process-wide store with initial properties.
func CreateApp(opts ...Option) (*Local, error) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.local != nil {
		console.Error("storage: " + ErrAppExists.Msg)
		return app.local, ErrAppExists
	}
	app.local = NewLocal(opts...)
	return app.local, nil
}

// ResetApp tears down every App property, subscribers or not, and forgets the
// instance. Meant for tests.
func ResetApp() {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.local != nil {
		app.local.teardown()
		app.local = nil
	}
}
