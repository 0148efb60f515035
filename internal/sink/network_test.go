package sink

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketHandler(t *testing.T) {
	conn := &fakeConn{}
	d := &fakeDialer{conns: []*fakeConn{conn}}

	h := NewSocketHandler("collector:51000", d.dial)
	assert.Equal(t, KindSocket, h.Name())
	assert.Equal(t, "collector:51000", h.Address())

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")))
	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")))

	assert.Equal(t, "tcp", d.network)
	assert.Equal(t, "collector:51000", d.address)
	assert.Equal(t, 1, d.dials, "connection is reused")
	assert.Equal(t, []string{wantLine, wantLine}, conn.writes)

	require.NoError(t, h.Close())
	assert.True(t, conn.closed)
	require.NoError(t, h.Close())
}

func TestDatagramHandler(t *testing.T) {
	conn := &fakeConn{}
	d := &fakeDialer{conns: []*fakeConn{conn}}

	h := NewDatagramHandler("collector:51000", d.dial)
	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")))

	assert.Equal(t, "udp", d.network)
	assert.Equal(t, []string{wantLine[:len(wantLine)-1]}, conn.writes)
}

func TestNetworkHandler_RedialsAfterWriteError(t *testing.T) {
	broken := &fakeConn{err: errors.New("connection reset")}
	healthy := &fakeConn{}
	d := &fakeDialer{conns: []*fakeConn{broken, healthy}}

	h := NewSocketHandler("collector:51000", d.dial)

	assert.Error(t, h.Fire(newEntry(logrus.InfoLevel, "lost")))
	assert.True(t, broken.closed)

	require.NoError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")))
	assert.Equal(t, 2, d.dials)
	assert.Equal(t, []string{wantLine}, healthy.writes)
}

func TestNetworkHandler_DialError(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	h := NewSocketHandler("collector:51000", d.dial)

	assert.EqualError(t, h.Fire(newEntry(logrus.InfoLevel, "hello")), "connection refused")
	require.NoError(t, h.Close())
}
