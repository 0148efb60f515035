// Package ingestor reads the lines that drive the host processing loop.
package ingestor

import "context"

// Ingestor defines the contract for line sources.
type Ingestor interface {
	// Start reads lines and sends them to out until the source is exhausted
	// or ctx is cancelled. The implementation must close out when done.
	Start(ctx context.Context, out chan<- string) error

	// Name returns a unique identifier for this source.
	Name() string
}
