package sink

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// QueueHandler puts records on a channel without blocking. Records that do
// not fit are dropped and counted.
type QueueHandler struct {
	base

	queue   chan<- *Record
	dropped atomic.Uint64
}

// NewQueueHandler creates a handler sending to queue.
func NewQueueHandler(queue chan<- *Record) *QueueHandler {
	return &QueueHandler{
		base:  base{name: KindQueue},
		queue: queue,
	}
}

// Fire implements logrus.Hook.
func (h *QueueHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	select {
	case h.queue <- newRecord(entry, line):
	default:
		h.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many records were discarded because the queue was full.
func (h *QueueHandler) Dropped() uint64 {
	return h.dropped.Load()
}

// Close is a no-op. The queue belongs to the caller and stays open.
func (h *QueueHandler) Close() error {
	return nil
}

// QueueListener drains a record queue into handlers, typically on a
// goroutine separate from the one producing records.
type QueueListener struct {
	queue    <-chan *Record
	handlers []Handler
}

// NewQueueListener creates a listener for queue.
func NewQueueListener(queue <-chan *Record, handlers ...Handler) *QueueListener {
	return &QueueListener{
		queue:    queue,
		handlers: handlers,
	}
}

// Run dispatches records until ctx is cancelled or the queue is closed.
// Records still queued when ctx is cancelled are dispatched before it returns.
func (l *QueueListener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case r, ok := <-l.queue:
			if !ok {
				return nil
			}
			l.dispatch(r)
		}
	}
}

func (l *QueueListener) drain() {
	for {
		select {
		case r, ok := <-l.queue:
			if !ok {
				return
			}
			l.dispatch(r)
		default:
			return
		}
	}
}

// dispatch hands r to every handler whose levels include it. Handler errors
// are dropped, as they are for logrus hooks on the producing side.
func (l *QueueListener) dispatch(r *Record) {
	entry := r.Entry()
	for _, h := range l.handlers {
		if handles(h, entry.Level) {
			_ = h.Fire(entry)
		}
	}
}

func handles(h logrus.Hook, level logrus.Level) bool {
	for _, lv := range h.Levels() {
		if lv == level {
			return true
		}
	}
	return false
}
