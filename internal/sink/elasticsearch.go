package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ElasticsearchParams configures the elasticsearch handler.
type ElasticsearchParams struct {
	Addresses     []string
	Index         string
	Username      string
	Password      string
	FlushInterval time.Duration
}

// IndexerFactory creates a new BulkIndexer.
type IndexerFactory func(p ElasticsearchParams) (esutil.BulkIndexer, error)

func defaultIndexerFactory(p ElasticsearchParams) (esutil.BulkIndexer, error) {
	esCfg := elasticsearch.Config{
		Addresses: p.Addresses,
	}
	if p.Username != "" {
		esCfg.Username = p.Username
		esCfg.Password = p.Password
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	flush := p.FlushInterval
	if flush <= 0 {
		flush = 5 * time.Second
	}

	return esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		Index:         p.Index,
		NumWorkers:    2,
		FlushBytes:    5e+6, // 5MB
		FlushInterval: flush,
	})
}

// ElasticsearchHandler indexes one document per record through a bulk indexer.
type ElasticsearchHandler struct {
	base

	mu      sync.Mutex
	indexer esutil.BulkIndexer
	onError func(error)
}

// NewElasticsearchHandler wraps indexer. onError, when set, receives
// per-document failures reported asynchronously by the indexer.
func NewElasticsearchHandler(indexer esutil.BulkIndexer, onError func(error)) *ElasticsearchHandler {
	return &ElasticsearchHandler{
		base:    base{name: KindElasticsearch},
		indexer: indexer,
		onError: onError,
	}
}

// Fire implements logrus.Hook.
func (h *ElasticsearchHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	doc := map[string]any{
		"@timestamp": entry.Time.Format(time.RFC3339Nano),
		"level":      levelName(entry.Level),
		"message":    entry.Message,
		"formatted":  string(bytes.TrimRight(line, "\n")),
	}
	if frame := callerFrame(entry); frame != nil {
		doc["function"] = shortFunction(frame.Function)
		doc["file"] = frame.File
		doc["line"] = frame.Line
	}
	for k, v := range entry.Data {
		if k != callerKey {
			doc[k] = v
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}

	h.mu.Lock()
	indexer := h.indexer
	h.mu.Unlock()
	if indexer == nil {
		return errHandlerClosed
	}

	return indexer.Add(ctx, esutil.BulkIndexerItem{
		Action:     "index",
		DocumentID: uuid.NewString(),
		Body:       bytes.NewReader(data),
		OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			if h.onError == nil {
				return
			}
			if err == nil {
				err = fmt.Errorf("elasticsearch index failed: %s: %s", res.Error.Type, res.Error.Reason)
			}
			h.onError(err)
		},
	})
}

// Close flushes and closes the bulk indexer.
func (h *ElasticsearchHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.indexer == nil {
		return nil
	}
	err := h.indexer.Close(context.Background())
	h.indexer = nil
	return err
}
