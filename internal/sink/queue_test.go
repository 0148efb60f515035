package sink

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueHandler_DropsWhenFull(t *testing.T) {
	q := make(chan *Record, 1)
	h := NewQueueHandler(q)

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "kept")))
	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "dropped")))

	assert.Equal(t, uint64(1), h.Dropped())
	r := <-q
	assert.Equal(t, "kept", r.Message)
	assert.Equal(t, wantLine, r.Text)
	require.NoError(t, h.Close())
}

func TestQueueListener_RunUntilClosed(t *testing.T) {
	q := make(chan *Record, 3)
	producer := NewQueueHandler(q)
	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, producer.Fire(newEntry(logrus.InfoLevel, msg)))
	}
	close(q)

	target := NewBufferingHandler(10)
	require.NoError(t, NewQueueListener(q, target).Run(context.Background()))

	records := target.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[2].Message)
	assert.Equal(t, "(*Job).Run", records[2].Function)
}

func TestQueueListener_RespectsLevels(t *testing.T) {
	q := make(chan *Record, 2)
	producer := NewQueueHandler(q)
	require.NoError(t, producer.Fire(newEntry(logrus.InfoLevel, "info")))
	require.NoError(t, producer.Fire(newEntry(logrus.ErrorLevel, "error")))
	close(q)

	errorsOnly := &levelHandler{BufferingHandler: NewBufferingHandler(10), levels: []logrus.Level{logrus.ErrorLevel}}
	all := NewBufferingHandler(10)
	require.NoError(t, NewQueueListener(q, errorsOnly, all).Run(context.Background()))

	require.Len(t, errorsOnly.Records(), 1)
	assert.Equal(t, "error", errorsOnly.Records()[0].Message)
	assert.Len(t, all.Records(), 2)
}

func TestQueueListener_DrainsOnCancel(t *testing.T) {
	q := make(chan *Record, 2)
	producer := NewQueueHandler(q)
	require.NoError(t, producer.Fire(newEntry(logrus.InfoLevel, "a")))
	require.NoError(t, producer.Fire(newEntry(logrus.InfoLevel, "b")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := NewBufferingHandler(10)
	err := NewQueueListener(q, target).Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, target.Records(), 2)
}

func TestQueue_ThroughContext(t *testing.T) {
	q := make(chan *Record, 10)
	lc := NewContext()
	lc.AddHandler(NewQueueHandler(q))

	target := NewBufferingHandler(10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewQueueListener(q, target).Run(ctx) }()

	lc.Warn("async")

	assert.Eventually(t, func() bool {
		return len(target.Records()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "TestQueue_ThroughContext", target.Records()[0].Function)
}
