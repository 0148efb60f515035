package testutil

import (
	"context"
	"testing"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/stretchr/testify/mock"
)

// BulkIndexer is a testify mock of esutil.BulkIndexer.
type BulkIndexer struct {
	mock.Mock
}

var _ esutil.BulkIndexer = (*BulkIndexer)(nil)

// NewBulkIndexer creates a mock whose expectations are asserted at cleanup.
func NewBulkIndexer(t *testing.T) *BulkIndexer {
	m := &BulkIndexer{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *BulkIndexer) Add(ctx context.Context, item esutil.BulkIndexerItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *BulkIndexer) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *BulkIndexer) Stats() esutil.BulkIndexerStats {
	args := m.Called()
	return args.Get(0).(esutil.BulkIndexerStats)
}

// Publisher is a testify mock of a NATS publisher.
type Publisher struct {
	mock.Mock
}

// NewPublisher creates a mock whose expectations are asserted at cleanup.
func NewPublisher(t *testing.T) *Publisher {
	m := &Publisher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Publisher) Publish(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func (m *Publisher) Drain() error {
	args := m.Called()
	return args.Error(0)
}

// WriteCloser is a testify mock of io.WriteCloser.
type WriteCloser struct {
	mock.Mock
}

// NewWriteCloser creates a mock whose expectations are asserted at cleanup.
func NewWriteCloser(t *testing.T) *WriteCloser {
	m := &WriteCloser{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *WriteCloser) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *WriteCloser) Close() error {
	args := m.Called()
	return args.Error(0)
}
