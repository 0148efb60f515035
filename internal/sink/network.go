package sink

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DialFunc opens a network connection.
type DialFunc func(network, address string) (net.Conn, error)

const dialTimeout = 5 * time.Second

func defaultDial(network, address string) (net.Conn, error) {
	return net.DialTimeout(network, address, dialTimeout)
}

// NetworkHandler writes one formatted record per write to a TCP or UDP
// peer. The connection is dialed on the first record and redialed on the
// record after a failed write.
type NetworkHandler struct {
	base

	network string
	address string
	dial    DialFunc

	// frame turns a formatted record into the bytes put on the wire.
	frame func(entry *logrus.Entry, line []byte) []byte

	mu   sync.Mutex
	conn net.Conn
}

// NewSocketHandler streams newline-terminated records over TCP.
func NewSocketHandler(address string, dial DialFunc) *NetworkHandler {
	return newNetworkHandler(KindSocket, "tcp", address, dial, nil)
}

// NewDatagramHandler sends one UDP datagram per record.
func NewDatagramHandler(address string, dial DialFunc) *NetworkHandler {
	return newNetworkHandler(KindDatagram, "udp", address, dial, func(_ *logrus.Entry, line []byte) []byte {
		return bytes.TrimRight(line, "\n")
	})
}

func newNetworkHandler(name, network, address string, dial DialFunc, frame func(*logrus.Entry, []byte) []byte) *NetworkHandler {
	if dial == nil {
		dial = defaultDial
	}
	return &NetworkHandler{
		base:    base{name: name},
		network: network,
		address: address,
		dial:    dial,
		frame:   frame,
	}
}

// Address returns the peer address.
func (h *NetworkHandler) Address() string {
	return h.address
}

// Fire implements logrus.Hook.
func (h *NetworkHandler) Fire(entry *logrus.Entry) error {
	line, err := h.format(entry)
	if err != nil {
		return err
	}
	if h.frame != nil {
		line = h.frame(entry, line)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		conn, err := h.dial(h.network, h.address)
		if err != nil {
			return err
		}
		h.conn = conn
	}

	if _, err := h.conn.Write(line); err != nil {
		_ = h.conn.Close()
		h.conn = nil
		return err
	}
	return nil
}

// Close closes the connection if one is open.
func (h *NetworkHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}
