package ingestor

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/GabrielNunesIT/go-libs/logger"
)

const maxLineSize = 1024 * 1024

// LineReader reads newline-separated lines from a reader, standard input
// by default.
type LineReader struct {
	name       string
	reader     io.Reader
	skipBlank  bool
	logger     logger.ILogger
	linesTotal int
}

// LineReaderOption configures a LineReader.
type LineReaderOption func(*LineReader)

// WithReader replaces standard input.
func WithReader(r io.Reader) LineReaderOption {
	return func(l *LineReader) {
		l.reader = r
	}
}

// WithBlankLines keeps empty lines instead of skipping them.
func WithBlankLines() LineReaderOption {
	return func(l *LineReader) {
		l.skipBlank = false
	}
}

// NewLineReader creates a reader of standard input.
func NewLineReader(log logger.ILogger, opts ...LineReaderOption) *LineReader {
	l := &LineReader{
		name:      "stdin",
		reader:    os.Stdin,
		skipBlank: true,
		logger:    log.SubLogger("LineReader"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the ingestor identifier.
func (l *LineReader) Name() string {
	return l.name
}

// Lines returns how many lines were delivered.
func (l *LineReader) Lines() int {
	return l.linesTotal
}

// Start reads until EOF or cancellation and closes out. Reading happens on
// a separate goroutine, so cancellation returns at once even while the
// reader is blocked; that goroutine exits at the next line or EOF.
func (l *LineReader) Start(ctx context.Context, out chan<- string) error {
	defer close(out)

	l.logger.Debug("reading lines")

	lines := make(chan string)
	errc := make(chan error, 1)
	go l.scan(ctx, lines, errc)

	for {
		select {
		case <-ctx.Done():
			l.logger.Debugf("line reader stopped: lines_read=%d", l.linesTotal)
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				return l.finish(<-errc)
			}
			select {
			case out <- line:
				l.linesTotal++
			case <-ctx.Done():
				l.logger.Debugf("line reader stopped: lines_read=%d", l.linesTotal)
				return ctx.Err()
			}
		}
	}
}

// scan sends lines until EOF, a read error or cancellation. errc receives
// the outcome before lines is closed.
func (l *LineReader) scan(ctx context.Context, lines chan<- string, errc chan<- error) {
	defer close(lines)

	scanner := bufio.NewScanner(l.reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && l.skipBlank {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		}
	}
	errc <- scanner.Err()
}

func (l *LineReader) finish(err error) error {
	if err != nil {
		l.logger.Errorf("read error: %v", err)
		return err
	}
	l.logger.Infof("EOF reached: lines_read=%d", l.linesTotal)
	return nil
}
