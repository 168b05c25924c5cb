package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/episode"
)

// AsyncConfig tunes an AsyncWriter.
type AsyncConfig struct {
	QueueSize    int
	WriteTimeout time.Duration
	// OnError is called from the writer goroutine for every failed or
	// dropped record.
	OnError func(episode.Record, error)
}

// DefaultAsyncConfig returns a 64-slot queue with 2s per write.
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{QueueSize: 64, WriteTimeout: 2 * time.Second}
}

// AsyncWriter appends to a Store from its own goroutine so the caller
// never waits on disk. Records are written in Append order.
type AsyncWriter struct {
	store  Store
	cfg    AsyncConfig
	logger *slog.Logger

	mu     sync.RWMutex
	queue  chan episode.Record
	closed bool
	done   chan struct{}
}

// NewAsyncWriter starts the writer goroutine.
func NewAsyncWriter(store Store, cfg AsyncConfig) *AsyncWriter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultAsyncConfig().QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultAsyncConfig().WriteTimeout
	}
	w := &AsyncWriter{
		store:  store,
		cfg:    cfg,
		logger: log.Component("eventlog"),
		queue:  make(chan episode.Record, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Append enqueues rec. It fails fast with ErrQueueFull rather than block.
func (w *AsyncWriter) Append(rec episode.Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- rec:
		return nil
	default:
		w.logger.Warn("event log queue full, record dropped", "kind", rec.Kind, "episode", rec.EpisodeID)
		return ErrQueueFull
	}
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for rec := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
		err := w.store.Append(ctx, rec)
		cancel()
		if err != nil {
			w.logger.Warn("event log append failed", "kind", rec.Kind, "error", err)
			if w.cfg.OnError != nil {
				w.cfg.OnError(rec, err)
			}
		}
	}
}

// Close drains the queue and stops the writer. It does not close the
// underlying store. ctx bounds the drain.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
