package sink

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the buffer size used when Params.Capacity is zero.
const DefaultCapacity = 1000

// BufferingHandler keeps records in memory. When the buffer reaches its
// capacity it is flushed, which discards the contents.
type BufferingHandler struct {
	base

	capacity int

	mu      sync.Mutex
	records []*Record
}

// NewBufferingHandler creates a buffering handler holding up to capacity records.
func NewBufferingHandler(capacity int) *BufferingHandler {
	return newBufferingHandler(KindBuffering, capacity)
}

func newBufferingHandler(name string, capacity int) *BufferingHandler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BufferingHandler{
		base:     base{name: name},
		capacity: capacity,
		records:  make([]*Record, 0, capacity),
	}
}

// Capacity returns the maximum number of buffered records.
func (h *BufferingHandler) Capacity() int { return h.capacity }

// Fire implements logrus.Hook.
func (h *BufferingHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, newRecord(entry, line))
	if len(h.records) >= h.capacity {
		h.records = h.records[:0]
	}
	return nil
}

// Records returns a copy of the buffered records, oldest first.
func (h *BufferingHandler) Records() []*Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Record, len(h.records))
	copy(out, h.records)
	return out
}

// Flush discards the buffered records.
func (h *BufferingHandler) Flush() {
	h.mu.Lock()
	h.records = h.records[:0]
	h.mu.Unlock()
}

// Close discards the buffered records.
func (h *BufferingHandler) Close() error {
	h.Flush()
	return nil
}

// MemoryHandler buffers records and hands them to a target handler when the
// buffer fills up or a record at or above the flush level arrives.
type MemoryHandler struct {
	base

	capacity   int
	flushLevel logrus.Level

	mu      sync.Mutex
	records []*Record
	target  Handler
}

// NewMemoryHandler creates a memory handler. target may be nil, in which case
// flushes drop the buffer.
func NewMemoryHandler(capacity int, flushLevel logrus.Level, target Handler) *MemoryHandler {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryHandler{
		base:       base{name: KindMemory},
		capacity:   capacity,
		flushLevel: flushLevel,
		records:    make([]*Record, 0, capacity),
		target:     target,
	}
}

// SetTarget replaces the handler that receives flushed records.
func (h *MemoryHandler) SetTarget(target Handler) {
	h.mu.Lock()
	h.target = target
	h.mu.Unlock()
}

// Target returns the current flush target.
func (h *MemoryHandler) Target() Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

// Fire implements logrus.Hook.
func (h *MemoryHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, newRecord(entry, line))
	if len(h.records) >= h.capacity || entry.Level <= h.flushLevel {
		return h.flushLocked()
	}
	return nil
}

// Len returns the number of buffered records.
func (h *MemoryHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Flush sends buffered records to the target and empties the buffer.
func (h *MemoryHandler) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked()
}

func (h *MemoryHandler) flushLocked() error {
	var errs []error
	if h.target != nil {
		for _, r := range h.records {
			if err := h.target.Fire(r.Entry()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	clear(h.records)
	h.records = h.records[:0]
	return errors.Join(errs...)
}

// Close flushes the buffer. The target is not closed.
func (h *MemoryHandler) Close() error {
	return h.Flush()
}
