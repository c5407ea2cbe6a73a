package trec

import (
	"bufio"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Writer streams runs to an underlying writer, optionally gzip-compressed.
// Lines are newline-joined; no trailing newline is written.
type Writer struct {
	exporter Exporter
	buf      *bufio.Writer
	gz       *gzip.Writer
	lines    int
}

// WriterOption configures a Writer.
type WriterOption func(*writerOptions)

type writerOptions struct {
	gzip  bool
	level int
}

// WithGzip compresses the output at the given gzip level.
func WithGzip(level int) WriterOption {
	return func(o *writerOptions) {
		o.gzip = true
		o.level = level
	}
}

// NewWriter returns a Writer formatting runs with exp. Close must be called
// to flush buffered data; it does not close w.
func NewWriter(w io.Writer, exp Exporter, opts ...WriterOption) (*Writer, error) {
	o := writerOptions{level: gzip.DefaultCompression}
	for _, opt := range opts {
		opt(&o)
	}

	tw := &Writer{exporter: exp}
	if o.gzip {
		gz, err := gzip.NewWriterLevel(w, o.level)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		tw.gz = gz
		w = gz
	}
	tw.buf = bufio.NewWriter(w)
	return tw, nil
}

// WriteRun appends the lines of run.
func (w *Writer) WriteRun(run Run) error {
	for _, line := range w.exporter.Lines(run) {
		if w.lines > 0 {
			if err := w.buf.WriteByte('\n'); err != nil {
				return fmt.Errorf("writing run %s: %w", run.QueryID, err)
			}
		}
		if _, err := w.buf.WriteString(line); err != nil {
			return fmt.Errorf("writing run %s: %w", run.QueryID, err)
		}
		w.lines++
	}
	return nil
}

// Lines returns the number of lines written so far.
func (w *Writer) Lines() int { return w.lines }

// Close flushes buffered output and finishes the gzip stream, if any.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flushing run file: %w", err)
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return fmt.Errorf("closing gzip stream: %w", err)
		}
	}
	return nil
}
