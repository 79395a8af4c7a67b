package console_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/delaneyj/statesync/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureLevels(t *testing.T) {
	c, restore := console.NewCapture()
	defer restore()

	console.Debug("debug line")
	console.Warn("unknown subscriber", "id", 7)
	console.Warn("unknown subscriber", "id", 8)
	console.Error("source is undefined")

	assert.Equal(t, 1, c.Count(slog.LevelDebug, "debug"))
	assert.Equal(t, 2, c.Count(slog.LevelWarn, "unknown subscriber"))
	assert.Equal(t, 1, c.Count(slog.LevelError, "undefined"))
	assert.Contains(t, c.String(), "id=7")
}

func TestSetLoggerNilDiscards(t *testing.T) {
	prev := console.Logger()
	defer console.SetLogger(prev)

	console.SetLogger(nil)
	require.NotNil(t, console.Logger())
	assert.False(t, console.Logger().Enabled(context.Background(), slog.LevelError))
	console.Error("dropped")
}

func TestTracePassesThroughErrors(t *testing.T) {
	calls := 0
	err := console.Trace(context.Background(), "ok", func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)

	boom := errors.New("boom")
	err = console.Trace(context.Background(), "fails", func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}
