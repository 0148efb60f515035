package sink

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultTimestampFormat renders timestamps as "2025-01-02 15:04:05,123".
const DefaultTimestampFormat = "2006-01-02 15:04:05,000"

const (
	separator = " — "
	callerKey = "caller"
)

// TemplateFormatter renders records with the fixed template
// "timestamp — source — function:line — LEVEL — message".
type TemplateFormatter struct {
	// Source replaces the source column. Empty means the caller's file name.
	Source string

	// TimestampFormat defaults to DefaultTimestampFormat.
	TimestampFormat string
}

// NewTemplateFormatter creates a formatter with the given source override.
func NewTemplateFormatter(source string) *TemplateFormatter {
	return &TemplateFormatter{
		Source:          source,
		TimestampFormat: DefaultTimestampFormat,
	}
}

// WithSource returns a copy of the formatter that prints source in the source column.
func (f *TemplateFormatter) WithSource(source string) logrus.Formatter {
	clone := *f
	clone.Source = source
	return &clone
}

// Format implements logrus.Formatter.
func (f *TemplateFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = DefaultTimestampFormat
	}

	frame := callerFrame(entry)

	source := f.Source
	if source == "" {
		source = "?"
		if frame != nil && frame.File != "" {
			source = filepath.Base(frame.File)
		}
	}

	function, line := "?", 0
	if frame != nil {
		function = shortFunction(frame.Function)
		line = frame.Line
	}

	var b bytes.Buffer
	b.WriteString(entry.Time.Format(tsFormat))
	b.WriteString(separator)
	b.WriteString(source)
	b.WriteString(separator)
	b.WriteString(function)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(line))
	b.WriteString(separator)
	b.WriteString(levelName(entry.Level))
	b.WriteString(separator)
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != callerKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// callerFrame prefers the frame captured by Context over the one logrus
// computes, since logrus would report the Context method itself.
func callerFrame(entry *logrus.Entry) *runtime.Frame {
	if v, ok := entry.Data[callerKey].(*runtime.Frame); ok && v != nil {
		return v
	}
	if entry.HasCaller() {
		return entry.Caller
	}
	return nil
}

// shortFunction trims the import path and package from a fully qualified
// function name: "github.com/x/y/pkg.(*T).Run" becomes "(*T).Run".
func shortFunction(name string) string {
	if name == "" {
		return "?"
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// nopFormatter is installed on the underlying logrus logger, whose own
// output is discarded; handlers format records themselves.
type nopFormatter struct{}

func (nopFormatter) Format(*logrus.Entry) ([]byte, error) { return nil, nil }
