package sink

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// WriterFactory creates the writer behind the rotating-file handler.
type WriterFactory func(p Params) (io.WriteCloser, error)

func defaultWriterFactory(p Params) (io.WriteCloser, error) {
	return &lumberjack.Logger{
		Filename:   p.Destination,
		MaxSize:    p.MaxSizeMB,
		MaxBackups: p.Backups,
		LocalTime:  true,
	}, nil
}

// NewRotatingFileHandler writes to w, normally a lumberjack logger that
// rotates by size.
func NewRotatingFileHandler(w io.WriteCloser) Handler {
	return newWriterHandler(KindRotatingFile, w, w)
}

// rotator is the part of lumberjack.Logger the timed handler drives.
type rotator interface {
	io.WriteCloser
	Rotate() error
}

// noSizeLimitMB keeps lumberjack from rotating on size in timed mode.
const noSizeLimitMB = 1 << 20

// TimedRotatingFileHandler rotates its file when a record's time crosses
// the next interval boundary. Boundaries are aligned to multiples of the
// interval since the zero time.
type TimedRotatingFileHandler struct {
	base

	mu    sync.Mutex
	out   rotator
	every time.Duration
	next  time.Time
}

// NewTimedRotatingFileHandler creates a handler writing to path and keeping
// backups rotated files.
func NewTimedRotatingFileHandler(path string, every time.Duration, backups int) *TimedRotatingFileHandler {
	return newTimedRotatingFileHandler(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    noSizeLimitMB,
		MaxBackups: backups,
		LocalTime:  true,
	}, every)
}

func newTimedRotatingFileHandler(out rotator, every time.Duration) *TimedRotatingFileHandler {
	if every <= 0 {
		every = time.Hour
	}
	return &TimedRotatingFileHandler{
		base:  base{name: KindTimedRotatingFile},
		out:   out,
		every: every,
	}
}

// Fire implements logrus.Hook.
func (h *TimedRotatingFileHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	t := entry.Time
	if t.IsZero() {
		t = time.Now()
	}

	switch {
	case h.next.IsZero():
		h.next = t.Truncate(h.every).Add(h.every)
	case !t.Before(h.next):
		if err := h.out.Rotate(); err != nil {
			return err
		}
		h.next = t.Truncate(h.every).Add(h.every)
	}

	_, err = h.out.Write(line)
	return err
}

// Close closes the current file.
func (h *TimedRotatingFileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out.Close()
}

// WatchedFileHandler appends to a file and reopens it after it has been
// renamed or removed, e.g. by an external logrotate.
type WatchedFileHandler struct {
	base

	path string

	mu      sync.Mutex
	file    *os.File
	closed  bool
	stale   atomic.Bool
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatchedFileHandler opens path for appending and starts watching its
// directory.
func NewWatchedFileHandler(path string) (*WatchedFileHandler, error) {
	path = filepath.Clean(path)

	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		f.Close()
		return nil, err
	}

	h := &WatchedFileHandler{
		base:    base{name: KindWatchedFile},
		path:    path,
		file:    f,
		watcher: watcher,
		done:    make(chan struct{}),
	}

	h.wg.Add(1)
	go h.watchLoop()
	return h, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

func (h *WatchedFileHandler) watchLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != h.path {
				continue
			}
			if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
				h.stale.Store(true)
			}
		case _, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Fire implements logrus.Hook.
func (h *WatchedFileHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return os.ErrClosed
	}

	if h.stale.Swap(false) || h.file == nil || h.moved() {
		if err := h.reopenLocked(); err != nil {
			return err
		}
	}

	_, err = h.file.Write(line)
	return err
}

// moved reports whether path no longer names the open file. The check
// covers events fsnotify has not delivered yet.
func (h *WatchedFileHandler) moved() bool {
	onDisk, err := os.Stat(h.path)
	if err != nil {
		return true
	}
	open, err := h.file.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(onDisk, open)
}

func (h *WatchedFileHandler) reopenLocked() error {
	if h.file != nil {
		_ = h.file.Close()
	}

	f, err := openAppend(h.path)
	if err != nil {
		h.file = nil
		return err
	}
	h.file = f
	return nil
}

// Close stops the watcher and closes the file.
func (h *WatchedFileHandler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	var err error
	if h.file != nil {
		err = h.file.Close()
		h.file = nil
	}
	h.mu.Unlock()

	werr := h.watcher.Close()
	h.wg.Wait()

	if err != nil {
		return err
	}
	return werr
}
