package sink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GabrielNunesIT/heartlog/internal/testutil"
)

func newBufferedContext(t *testing.T) (*Context, *BufferingHandler) {
	t.Helper()
	lc := NewContext()
	buf := NewBufferingHandler(100)
	lc.AddHandler(buf)
	return lc, buf
}

func TestContext_Defaults(t *testing.T) {
	lc := NewContext()
	assert.Equal(t, logrus.InfoLevel, lc.Level())
	assert.Empty(t, lc.Handlers())
	assert.Nil(t, lc.Formatter())

	// No handler installed: nothing to do, nothing to fail.
	lc.SetFormatter(NewTemplateFormatter("x"))
	lc.Info("dropped")
}

func TestContext_LevelThreshold(t *testing.T) {
	lc, buf := newBufferedContext(t)

	lc.Debug("hidden")
	lc.Info("shown")
	require.Len(t, buf.Records(), 1)

	lc.SetLevel(logrus.DebugLevel)
	lc.Debug("now shown")
	require.Len(t, buf.Records(), 2)

	lc.SetLevel(logrus.ErrorLevel)
	lc.Warn("hidden")
	lc.Error("shown")
	lc.Critical("shown")

	records := buf.Records()
	require.Len(t, records, 4)
	assert.Equal(t, "ERROR", records[2].LevelName())
	assert.Equal(t, "CRITICAL", records[3].LevelName())
}

func TestContext_CallerIsApplication(t *testing.T) {
	lc, buf := newBufferedContext(t)

	lc.Info("here")

	records := buf.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "TestContext_CallerIsApplication", records[0].Function)
	assert.True(t, strings.HasSuffix(records[0].File, "context_test.go"), records[0].File)
	assert.Positive(t, records[0].Line)
}

func TestContext_EmitClampsPanic(t *testing.T) {
	lc, buf := newBufferedContext(t)

	assert.NotPanics(t, func() {
		lc.Emit(logrus.PanicLevel, "bad")
	})
	lc.Emitf(logrus.WarnLevel, "disk %d%% full", 91)
	lc.Emitf(logrus.DebugLevel, "skipped %s", "entirely")

	records := buf.Records()
	require.Len(t, records, 2)
	assert.Equal(t, logrus.FatalLevel, records[0].Level)
	assert.Equal(t, "disk 91% full", records[1].Message)
	assert.Equal(t, "TestContext_EmitClampsPanic", records[1].Function)
}

func TestContext_StreamOutput(t *testing.T) {
	var out bytes.Buffer
	lc := NewContext()
	lc.AddHandler(NewStreamHandler(&out))

	lc.Info("hello")

	parts := strings.Split(strings.TrimSuffix(out.String(), "\n"), separator)
	require.Len(t, parts, 5)
	assert.Equal(t, "context_test.go", parts[1])
	assert.True(t, strings.HasPrefix(parts[2], "TestContext_StreamOutput:"), parts[2])
	assert.Equal(t, "INFO", parts[3])
	assert.Equal(t, "hello", parts[4])
}

func TestContext_FormatterOfFirstHandler(t *testing.T) {
	var first, second bytes.Buffer
	lc := NewContext()
	lc.AddHandler(NewStreamHandler(&first))
	lc.AddHandler(NewStreamHandler(&second))

	lc.SetFormatter(NewTemplateFormatter("named"))
	assert.Equal(t, "named", lc.Formatter().(*TemplateFormatter).Source)

	lc.Info("both")

	assert.Contains(t, first.String(), " — named — ")
	assert.Contains(t, second.String(), " — context_test.go — ")
	assert.Len(t, lc.Handlers(), 2)
}

func TestContext_StructuredLogger(t *testing.T) {
	lc, buf := newBufferedContext(t)

	lc.Logger().WithField("request", "abc").Warn("structured")

	records := buf.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "structured", records[0].Message)
	assert.Equal(t, "TestContext_StructuredLogger", records[0].Function)
	assert.Contains(t, records[0].Text, "request=abc")
}

func TestContext_Close(t *testing.T) {
	w := testutil.NewWriteCloser(t)
	w.On("Write", mock.Anything).Return(10, nil).Once()
	w.On("Close").Return(assert.AnError).Once()

	lc, buf := newBufferedContext(t)
	lc.AddHandler(NewRotatingFileHandler(w))

	lc.Info("before")

	err := lc.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "closing rotating-file handler")

	lc.Info("after close")
	assert.Empty(t, lc.Handlers())
	assert.Empty(t, buf.Records())
}
