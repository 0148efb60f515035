package sink

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lokiRecorder captures push requests.
type lokiRecorder struct {
	mu       sync.Mutex
	status   int
	requests []*http.Request
	bodies   []lokiPushRequest
}

func (r *lokiRecorder) Do(req *http.Request) (*http.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var body lokiPushRequest
	data, _ := io.ReadAll(req.Body)
	_ = json.Unmarshal(data, &body)

	r.requests = append(r.requests, req)
	r.bodies = append(r.bodies, body)

	status := r.status
	if status == 0 {
		status = http.StatusNoContent
	}
	return respond(status), nil
}

func (r *lokiRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func TestLokiHandler_BatchFlush(t *testing.T) {
	rec := &lokiRecorder{}
	h := NewLokiHandler(LokiParams{
		URL:           "http://localhost:3100",
		TenantID:      "team-a",
		Labels:        map[string]string{"app": "test"},
		BatchSize:     2,
		FlushInterval: time.Hour,
	}, rec)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")))
	assert.Equal(t, 0, rec.count())

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")))
	require.Equal(t, 1, rec.count())

	req := rec.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/loki/api/v1/push", req.URL.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "team-a", req.Header.Get("X-Scope-OrgID"))

	body := rec.bodies[0]
	require.Len(t, body.Streams, 1)
	assert.Equal(t, map[string]string{"app": "test", "level": "INFO"}, body.Streams[0].Stream)
	require.Len(t, body.Streams[0].Values, 2)
	assert.Equal(t, "1741064767008000000", body.Streams[0].Values[0][0])
	assert.Equal(t, wantLine[:len(wantLine)-1], body.Streams[0].Values[0][1])
}

func TestLokiHandler_StreamsPerLevel(t *testing.T) {
	rec := &lokiRecorder{}
	h := NewLokiHandler(LokiParams{URL: "http://loki", BatchSize: 3, FlushInterval: time.Hour}, rec)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "a")))
	require.NoError(t, h.Fire(newEntry(logrus.ErrorLevel, "b")))
	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "c")))

	require.Equal(t, 1, rec.count())
	require.Len(t, rec.bodies[0].Streams, 2)
	assert.Len(t, rec.bodies[0].Streams[0].Values, 2)
	assert.Equal(t, "ERROR", rec.bodies[0].Streams[1].Stream["level"])
	assert.Empty(t, rec.requests[0].Header.Get("X-Scope-OrgID"))
}

func TestLokiHandler_CloseFlushes(t *testing.T) {
	rec := &lokiRecorder{}
	h := NewLokiHandler(LokiParams{URL: "http://loki", BatchSize: 10, FlushInterval: time.Hour}, rec)

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "pending")))
	require.NoError(t, h.Close())
	assert.Equal(t, 1, rec.count())

	// Nothing left to send.
	require.NoError(t, h.Close())
	assert.Equal(t, 1, rec.count())
}

func TestLokiHandler_IntervalFlush(t *testing.T) {
	rec := &lokiRecorder{}
	h := NewLokiHandler(LokiParams{URL: "http://loki", BatchSize: 10, FlushInterval: 20 * time.Millisecond}, rec)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "pending")))

	assert.Eventually(t, func() bool {
		return rec.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLokiHandler_FailedPushKeepsBatch(t *testing.T) {
	rec := &lokiRecorder{status: http.StatusServiceUnavailable}
	h := NewLokiHandler(LokiParams{URL: "http://loki", BatchSize: 1, FlushInterval: time.Hour}, rec)

	err := h.Fire(newEntry(logrus.InfoLevel, "hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	rec.mu.Lock()
	rec.status = http.StatusNoContent
	rec.mu.Unlock()

	require.NoError(t, h.Close())
	require.Equal(t, 2, rec.count())
	assert.Len(t, rec.bodies[1].Streams[0].Values, 1)
}
