package sink

import (
	"errors"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var testTime = time.Date(2025, 3, 4, 5, 6, 7, 8_000_000, time.UTC)

// newEntry builds an entry the way Context would, with a fixed caller frame.
func newEntry(level logrus.Level, msg string) *logrus.Entry {
	e := logrus.NewEntry(logrus.New())
	e.Time = testTime
	e.Level = level
	e.Message = msg
	e.Data = logrus.Fields{
		callerKey: &runtime.Frame{
			Function: "github.com/acme/app/worker.(*Job).Run",
			File:     "/src/app/worker/job.go",
			Line:     42,
		},
	}
	return e
}

const wantLine = "2025-03-04 05:06:07,008 — job.go — (*Job).Run:42 — INFO — hello\n"

// fakeConn records writes. Write fails with err when set.
type fakeConn struct {
	net.Conn

	mu     sync.Mutex
	writes []string
	err    error
	closed bool
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.writes = append(c.writes, string(b))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// fakeDialer hands out conns in order and records what was dialed.
type fakeDialer struct {
	conns   []*fakeConn
	err     error
	dials   int
	network string
	address string
}

func (d *fakeDialer) dial(network, address string) (net.Conn, error) {
	d.network, d.address = network, address
	if d.err != nil {
		return nil, d.err
	}
	c := d.conns[d.dials]
	d.dials++
	return c, nil
}

// failingHandler rejects every record.
type failingHandler struct {
	base
}

var errFire = errors.New("fire failed")

func (h *failingHandler) Fire(*logrus.Entry) error { return errFire }

func (h *failingHandler) Close() error { return errFire }

// levelHandler restricts a buffering handler to the given levels.
type levelHandler struct {
	*BufferingHandler
	levels []logrus.Level
}

func (h *levelHandler) Levels() []logrus.Level { return h.levels }
