package sink

import "io"

// Stream targets.
const (
	StreamStderr = "stderr"
	StreamStdout = "stdout"
)

// NewStreamHandler writes formatted records to w. The writer is not closed.
func NewStreamHandler(w io.Writer) Handler {
	return newWriterHandler(KindStream, w, nil)
}
