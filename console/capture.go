package console

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Capture is a logger that records messages in memory, used by tests across
// the module to assert on diagnostics.
type Capture struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	records []slog.Record
}

// NewCapture installs a capturing logger at debug level and returns it along
// with a function restoring the previous logger.
func NewCapture() (*Capture, func()) {
	prev := Logger()
	c := &Capture{}
	SetLogger(slog.New(&captureHandler{c: c, text: slog.NewTextHandler(&c.buf, &slog.HandlerOptions{Level: slog.LevelDebug})}))
	return c, func() { SetLogger(prev) }
}

// Count returns the number of records at level whose message contains substr.
func (c *Capture) Count(level slog.Level, substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.Level == level && strings.Contains(r.Message, substr) {
			n++
		}
	}
	return n
}

func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

type captureHandler struct {
	c    *Capture
	text slog.Handler
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.c.records = append(h.c.records, r.Clone())
	return h.text.Handle(ctx, r)
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &captureHandler{c: h.c, text: h.text.WithAttrs(attrs)}
}

func (h *captureHandler) WithGroup(name string) slog.Handler {
	return &captureHandler{c: h.c, text: h.text.WithGroup(name)}
}
