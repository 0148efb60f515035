// Package heartbeat emits rate-limited "alive" records from inside a
// caller's own processing loop, so the caller needs no timer of its own.
//
// An Emitter is checked as often as the caller likes; it writes at most one
// Info record per interval. While that record is written, the sink's
// formatter is swapped for one that shows the emitter's name as the source,
// then restored.
//
// An Emitter is not safe for concurrent use. Callers sharing one across
// goroutines must serialize calls to Check.
package heartbeat

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/GabrielNunesIT/heartlog/internal/sink"
	"github.com/sirupsen/logrus"
)

// Sink accepts leveled messages.
type Sink interface {
	Emit(level logrus.Level, msg string)
	Level() logrus.Level
}

// Formattable is implemented by sinks whose output format can be replaced.
type Formattable interface {
	Formatter() logrus.Formatter
	SetFormatter(f logrus.Formatter)
}

// sourceSetter is implemented by formatters that can print a different
// source column, such as sink.TemplateFormatter.
type sourceSetter interface {
	WithSource(source string) logrus.Formatter
}

// ElapsedPolicy decides how fractional seconds count toward the interval.
type ElapsedPolicy int

const (
	// Round rounds elapsed seconds half to even, so 1.5s counts as 2s.
	Round ElapsedPolicy = iota
	// Truncate drops fractional seconds, so 1.9s counts as 1s.
	Truncate
)

// String implements fmt.Stringer.
func (p ElapsedPolicy) String() string {
	if p == Truncate {
		return "truncate"
	}
	return "round"
}

// ParseElapsedPolicy maps "round" and "truncate" (any case) to a policy.
// Anything else is Round.
func ParseElapsedPolicy(s string) ElapsedPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "truncate") {
		return Truncate
	}
	return Round
}

// ParseInterval returns raw as a number of seconds when it consists only of
// ASCII digits, and fallback otherwise.
func ParseInterval(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return fallback
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithDefaultInterval sets the interval used when the configured value is
// missing or not a number. Negative values are treated as zero.
func WithDefaultInterval(seconds int) Option {
	return func(e *Emitter) {
		e.defaultInterval = max(seconds, 0)
	}
}

// WithElapsedPolicy sets how elapsed time is rounded.
func WithElapsedPolicy(p ElapsedPolicy) Option {
	return func(e *Emitter) {
		e.policy = p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// Emitter tracks when a named source last reported it was alive.
type Emitter struct {
	name            string
	interval        int
	defaultInterval int
	policy          ElapsedPolicy
	now             func() time.Time

	start   time.Time
	started bool
}

// New creates an emitter for name. rawInterval is the interval in seconds
// as text, usually read from the environment; an interval of zero disables
// the emitter.
func New(name, rawInterval string, opts ...Option) *Emitter {
	e := &Emitter{
		name: name,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.interval = ParseInterval(rawInterval, e.defaultInterval)
	return e
}

// Name returns the source name shown in heartbeat records.
func (e *Emitter) Name() string { return e.name }

// Interval returns the interval in seconds. Zero means disabled.
func (e *Emitter) Interval() int { return e.interval }

// SetInterval changes the interval. The current window is kept.
func (e *Emitter) SetInterval(seconds int) {
	e.interval = max(seconds, 0)
}

// ElapsedPolicy returns how elapsed time is rounded.
func (e *Emitter) ElapsedPolicy() ElapsedPolicy { return e.policy }

// SetElapsedPolicy changes how elapsed time is rounded. The current window
// is kept.
func (e *Emitter) SetElapsedPolicy(p ElapsedPolicy) {
	e.policy = p
}

// Tick is Check without a message.
func (e *Emitter) Tick(s Sink) {
	e.Check(s, "", false)
}

// Check writes a heartbeat to s if at least the interval has elapsed since
// the previous heartbeat. The first call only starts the clock. message is
// appended to the standard text, or replaces it when replace is set.
//
// Check never panics; a panic raised while writing the record is swallowed
// and the window still restarts.
func (e *Emitter) Check(s Sink, message string, replace bool) {
	if e.interval == 0 {
		return
	}

	now := e.now()
	if !e.started {
		e.start = now
		e.started = true
		return
	}

	if e.elapsed(now) < float64(e.interval) || absent(s) {
		return
	}

	e.emit(s, e.compose(message, replace))
	e.start = now
}

// absent reports whether s is nil, including a nil pointer held in the
// interface such as an unconfigured *sink.Context.
func absent(s Sink) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (e *Emitter) elapsed(now time.Time) float64 {
	secs := now.Sub(e.start).Seconds()
	if e.policy == Truncate {
		return math.Trunc(secs)
	}
	return math.RoundToEven(secs)
}

func (e *Emitter) compose(message string, replace bool) string {
	switch {
	case replace && message != "":
		return message
	case message != "":
		return fmt.Sprintf("Heart beat ----- alive. Logged every %d seconds. %s", e.interval, message)
	default:
		return fmt.Sprintf("Heart beat ----- alive. Logged every %d seconds.", e.interval)
	}
}

// emit writes msg with the source column set to the emitter's name. The
// deferred restore runs before the recover, so the sink's own formatter is
// back in place on every path.
func (e *Emitter) emit(s Sink, msg string) {
	defer func() {
		_ = recover()
	}()

	if s.Level() < logrus.InfoLevel {
		return
	}

	if f, ok := s.(Formattable); ok {
		if orig := f.Formatter(); orig != nil {
			f.SetFormatter(e.sourceFormatter(orig))
			defer f.SetFormatter(orig)
		}
	}

	s.Emit(logrus.InfoLevel, msg)
}

func (e *Emitter) sourceFormatter(orig logrus.Formatter) logrus.Formatter {
	if ss, ok := orig.(sourceSetter); ok {
		return ss.WithSource(e.name)
	}
	return sink.NewTemplateFormatter(e.name)
}
