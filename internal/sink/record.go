package sink

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Record is a snapshot of one log event, kept by the buffering, memory and
// queue handlers.
type Record struct {
	ID       string
	Time     time.Time
	Level    logrus.Level
	Message  string
	Function string
	File     string
	Line     int

	// Text is the record rendered by the handler's formatter at capture time.
	Text string

	entry *logrus.Entry
}

// newRecord copies entry so it outlives the logrus call that produced it.
func newRecord(entry *logrus.Entry, text []byte) *Record {
	r := &Record{
		ID:      uuid.NewString(),
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
		Text:    string(text),
		entry:   entry.Dup(),
	}
	r.entry.Time = entry.Time
	r.entry.Level = entry.Level
	r.entry.Message = entry.Message
	r.entry.Caller = entry.Caller

	if frame := callerFrame(entry); frame != nil {
		r.Function = shortFunction(frame.Function)
		r.File = frame.File
		r.Line = frame.Line
	}
	return r
}

// Entry returns a logrus entry equivalent to the one the record was built
// from, suitable for replaying into another handler.
func (r *Record) Entry() *logrus.Entry {
	if r.entry != nil {
		return r.entry
	}
	e := logrus.NewEntry(logrus.StandardLogger())
	e.Time = r.Time
	e.Level = r.Level
	e.Message = r.Message
	return e
}

// LevelName returns the level as printed by the template.
func (r *Record) LevelName() string {
	return levelName(r.Level)
}
