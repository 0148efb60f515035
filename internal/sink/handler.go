package sink

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler is one installed destination. Each handler owns a formatter that
// can be swapped while the process runs.
type Handler interface {
	logrus.Hook

	// Name returns the handler kind.
	Name() string

	// Formatter returns the current formatter.
	Formatter() logrus.Formatter

	// SetFormatter replaces the formatter used for subsequent records.
	SetFormatter(f logrus.Formatter)

	// Close flushes buffered records and releases the destination.
	Close() error
}

// HTTPDoer abstracts HTTP client operations for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPDoer = (*http.Client)(nil)

var errHandlerClosed = errors.New("handler closed")

// base carries the parts every handler shares.
type base struct {
	name string

	fmu       sync.RWMutex
	formatter logrus.Formatter
}

func (b *base) Name() string { return b.name }

func (b *base) Levels() []logrus.Level { return logrus.AllLevels }

func (b *base) Formatter() logrus.Formatter {
	b.fmu.RLock()
	defer b.fmu.RUnlock()
	return b.formatter
}

func (b *base) SetFormatter(f logrus.Formatter) {
	b.fmu.Lock()
	b.formatter = f
	b.fmu.Unlock()
}

// format renders entry with the current formatter, falling back to the
// template when none has been set.
func (b *base) format(entry *logrus.Entry) ([]byte, error) {
	f := b.Formatter()
	if f == nil {
		f = NewTemplateFormatter("")
	}
	return f.Format(entry)
}

// writerHandler writes each formatted record to an io.Writer.
type writerHandler struct {
	base

	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

func newWriterHandler(name string, w io.Writer, c io.Closer) *writerHandler {
	return &writerHandler{
		base:   base{name: name},
		writer: w,
		closer: c,
	}
}

// Fire implements logrus.Hook.
func (h *writerHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.writer.Write(line)
	return err
}

// Close closes the underlying writer when it owns one.
func (h *writerHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closer != nil {
		return h.closer.Close()
	}
	return nil
}
