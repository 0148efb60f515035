package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LokiParams configures the loki handler.
type LokiParams struct {
	URL           string
	TenantID      string
	Labels        map[string]string
	BatchSize     int
	FlushInterval time.Duration
}

// lokiPushRequest is the Loki push API request format.
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// LokiHandler batches records into Loki push requests. A batch is sent when
// it reaches BatchSize, on every FlushInterval and on Close.
type LokiHandler struct {
	base

	p      LokiParams
	client HTTPDoer

	mu    sync.Mutex
	batch []lokiStream

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewLokiHandler creates a loki handler and starts its flush loop.
func NewLokiHandler(p LokiParams, client HTTPDoer) *LokiHandler {
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.FlushInterval <= 0 {
		p.FlushInterval = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	h := &LokiHandler{
		base:   base{name: KindLoki},
		p:      p,
		client: client,
		done:   make(chan struct{}),
	}

	h.wg.Add(1)
	go h.flushLoop()
	return h
}

func (h *LokiHandler) flushLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.p.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			_ = h.flush(context.Background())
		}
	}
}

// Fire implements logrus.Hook.
func (h *LokiHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	labels := make(map[string]string, len(h.p.Labels)+1)
	for k, v := range h.p.Labels {
		labels[k] = v
	}
	labels["level"] = levelName(entry.Level)

	ts := strconv.FormatInt(entry.Time.UnixNano(), 10)
	value := []string{ts, string(bytes.TrimRight(line, "\n"))}

	h.mu.Lock()
	defer h.mu.Unlock()

	found := false
	for i := range h.batch {
		if labelsEqual(h.batch[i].Stream, labels) {
			h.batch[i].Values = append(h.batch[i].Values, value)
			found = true
			break
		}
	}
	if !found {
		h.batch = append(h.batch, lokiStream{
			Stream: labels,
			Values: [][]string{value},
		})
	}

	if h.batchSize() >= h.p.BatchSize {
		return h.flushLocked(context.Background())
	}
	return nil
}

// batchSize returns the total number of lines in the batch.
func (h *LokiHandler) batchSize() int {
	count := 0
	for _, s := range h.batch {
		count += len(s.Values)
	}
	return count
}

func labelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (h *LokiHandler) flush(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked(ctx)
}

// flushLocked sends the batch (caller must hold lock).
func (h *LokiHandler) flushLocked(ctx context.Context) error {
	if len(h.batch) == 0 {
		return nil
	}

	data, err := json.Marshal(lokiPushRequest{Streams: h.batch})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.p.URL+"/loki/api/v1/push", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.p.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", h.p.TenantID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki push failed with status: %d", resp.StatusCode)
	}

	h.batch = h.batch[:0]
	return nil
}

// Close stops the flush loop and sends what is left.
func (h *LokiHandler) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	h.wg.Wait()
	return h.flush(context.Background())
}
