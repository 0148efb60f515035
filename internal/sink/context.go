// Package sink provides the process logging context, the fixed message
// template and the handler kinds installed by the configuration factory.
package sink

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Context is the process-wide logger. It is created by the application's
// composition root and passed to whatever needs to log; nothing in this
// module reaches for a package-level logger.
//
// Records are delivered only through installed handlers. The underlying
// logrus output is discarded.
type Context struct {
	logger *logrus.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// NewContext creates an empty logging context at Info level.
func NewContext() *Context {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetFormatter(nopFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetReportCaller(true)

	return &Context{logger: l}
}

// Logger exposes the underlying logrus logger for callers that want
// structured fields. Records logged through it reach the same handlers.
func (c *Context) Logger() *logrus.Logger {
	return c.logger
}

// AddHandler appends h to the handler list. Existing handlers are kept.
func (c *Context) AddHandler(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()

	c.logger.AddHook(h)
}

// Handlers returns a copy of the installed handlers in installation order.
func (c *Context) Handlers() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Handler, len(c.handlers))
	copy(out, c.handlers)
	return out
}

// Level returns the severity threshold.
func (c *Context) Level() logrus.Level {
	return c.logger.GetLevel()
}

// SetLevel sets the severity threshold.
func (c *Context) SetLevel(level logrus.Level) {
	c.logger.SetLevel(level)
}

// Formatter returns the formatter of the first installed handler, or nil
// when no handler is installed.
func (c *Context) Formatter() logrus.Formatter {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.handlers) == 0 {
		return nil
	}
	return c.handlers[0].Formatter()
}

// SetFormatter replaces the formatter of the first installed handler.
// It is a no-op when no handler is installed.
func (c *Context) SetFormatter(f logrus.Formatter) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.handlers) == 0 {
		return
	}
	c.handlers[0].SetFormatter(f)
}

// Emit logs msg at level.
func (c *Context) Emit(level logrus.Level, msg string) {
	c.log(level, msg)
}

// Emitf logs a formatted message at level.
func (c *Context) Emitf(level logrus.Level, format string, args ...any) {
	if !c.logger.IsLevelEnabled(level) {
		return
	}
	c.log(level, fmt.Sprintf(format, args...))
}

// Debug logs msg at debug level.
func (c *Context) Debug(msg string) { c.log(logrus.DebugLevel, msg) }

// Info logs msg at info level.
func (c *Context) Info(msg string) { c.log(logrus.InfoLevel, msg) }

// Warn logs msg at warning level.
func (c *Context) Warn(msg string) { c.log(logrus.WarnLevel, msg) }

// Error logs msg at error level.
func (c *Context) Error(msg string) { c.log(logrus.ErrorLevel, msg) }

// Critical logs msg at the highest level. It never exits the process.
func (c *Context) Critical(msg string) { c.log(logrus.FatalLevel, msg) }

// Close closes every installed handler.
func (c *Context) Close() error {
	c.mu.Lock()
	handlers := c.handlers
	c.handlers = nil
	c.mu.Unlock()

	c.logger.ReplaceHooks(make(logrus.LevelHooks))

	var errs []error
	for _, h := range handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s handler: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// log captures the frame of the caller of the exported method (two frames
// up) so the template shows the application's function and line.
func (c *Context) log(level logrus.Level, msg string) {
	if level == logrus.PanicLevel {
		level = logrus.FatalLevel
	}
	if !c.logger.IsLevelEnabled(level) {
		return
	}

	var frame *runtime.Frame
	if pc, file, line, ok := runtime.Caller(2); ok {
		frame = &runtime.Frame{PC: pc, File: file, Line: line}
		if fn := runtime.FuncForPC(pc); fn != nil {
			frame.Function = fn.Name()
		}
	}

	c.logger.WithField(callerKey, frame).Log(level, msg)
}
