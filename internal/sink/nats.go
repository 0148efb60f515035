package sink

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSParams configures the nats handler.
type NATSParams struct {
	URL     string
	Subject string
}

// Publisher is the part of *nats.Conn the nats handler uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

var _ Publisher = (*nats.Conn)(nil)

// PublisherFactory connects to a NATS server.
type PublisherFactory func(p NATSParams) (Publisher, error)

func defaultPublisherFactory(p NATSParams) (Publisher, error) {
	url := p.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("heartlog"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return nc, nil
}

// NATSHandler publishes each formatted record on a subject. The level is
// appended as the last subject token, e.g. "logs.heartlog.INFO".
type NATSHandler struct {
	base

	subject string

	mu  sync.Mutex
	pub Publisher
}

// NewNATSHandler creates a handler publishing under subject.
func NewNATSHandler(pub Publisher, subject string) *NATSHandler {
	return &NATSHandler{
		base:    base{name: KindNATS},
		subject: subject,
		pub:     pub,
	}
}

// Fire implements logrus.Hook.
func (h *NATSHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pub == nil {
		return errHandlerClosed
	}
	return h.pub.Publish(h.subject+"."+levelName(entry.Level), bytes.TrimRight(line, "\n"))
}

// Close drains pending messages and closes the connection.
func (h *NATSHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pub == nil {
		return nil
	}
	err := h.pub.Drain()
	h.pub = nil
	return err
}
