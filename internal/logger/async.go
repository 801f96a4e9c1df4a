package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered log output.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncState is shared by an AsyncHandler and every handler derived from it
// through WithAttrs/WithGroup.
type asyncState struct {
	queue   chan asyncRecord
	workers sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
	direct  atomic.Int64
}

type asyncRecord struct {
	inner slog.Handler
	rec   slog.Record
}

// AsyncHandler hands records to a pool of writer goroutines. When the buffer
// is full, records below Warn are dropped and counted; Warn and above are
// written on the caller's goroutine so failed ledger operations are never
// missing from the log.
type AsyncHandler struct {
	inner slog.Handler
	state *asyncState
}

// NewAsyncHandler starts workers goroutines draining a buffer of size records.
func NewAsyncHandler(inner slog.Handler, size, workers int) *AsyncHandler {
	st := &asyncState{queue: make(chan asyncRecord, size)}
	for range workers {
		st.workers.Add(1)
		go func() {
			defer st.workers.Done()
			for r := range st.queue {
				_ = r.inner.Handle(context.Background(), r.rec)
			}
		}()
	}
	return &AsyncHandler{inner: inner, state: st}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.state.queue <- asyncRecord{inner: h.inner, rec: rec.Clone()}:
		return nil
	default:
	}
	if rec.Level >= slog.LevelWarn {
		h.state.direct.Add(1)
		return h.inner.Handle(ctx, rec)
	}
	h.state.dropped.Add(1)
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// DroppedCount is the number of sub-Warn records lost to a full buffer.
func (h *AsyncHandler) DroppedCount() int64 { return h.state.dropped.Load() }

// DirectCount is the number of Warn+ records written synchronously because
// the buffer was full.
func (h *AsyncHandler) DirectCount() int64 { return h.state.direct.Load() }

// Close stops accepting records and waits for the buffer to drain. It is safe
// to call more than once; records handled after Close panic.
func (h *AsyncHandler) Close() {
	h.state.once.Do(func() {
		close(h.state.queue)
		h.state.workers.Wait()
	})
}
