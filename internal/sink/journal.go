package sink

import (
	"bytes"
	"strconv"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

// JournalSender writes one entry to the systemd journal. It has the
// signature of journal.Send.
type JournalSender func(message string, priority journal.Priority, vars map[string]string) error

// journalPriority maps a level to a journal priority.
func journalPriority(level logrus.Level) journal.Priority {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return journal.PriCrit
	case logrus.ErrorLevel:
		return journal.PriErr
	case logrus.WarnLevel:
		return journal.PriWarning
	case logrus.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// JournalHandler sends records to the local systemd journal.
type JournalHandler struct {
	base

	send JournalSender
}

// NewJournalHandler creates a journal handler. A nil sender uses journal.Send.
func NewJournalHandler(send JournalSender) *JournalHandler {
	if send == nil {
		send = journal.Send
	}
	return &JournalHandler{
		base: base{name: KindJournal},
		send: send,
	}
}

// Fire implements logrus.Hook.
func (h *JournalHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	vars := make(map[string]string, 3)
	if frame := callerFrame(entry); frame != nil {
		vars["CODE_FUNC"] = frame.Function
		vars["CODE_FILE"] = frame.File
		vars["CODE_LINE"] = strconv.Itoa(frame.Line)
	}

	return h.send(string(bytes.TrimRight(line, "\n")), journalPriority(entry.Level), vars)
}

// Close is a no-op; the journal socket is shared by the process.
func (h *JournalHandler) Close() error {
	return nil
}
