package output

import (
	"bufio"
	"fmt"
	"io"

	"github.com/linuxmatters/bang/internal/detector"
)

// Writer prints events one per line. Output is flushed after every batch so
// a reader on the other end of a pipe sees each pulse as it happens.
type Writer struct {
	w        *bufio.Writer
	velocity bool
	line     []byte
}

// NewWriter returns a Writer printing to w
func NewWriter(w io.Writer, velocity bool) *Writer {
	return &Writer{w: bufio.NewWriter(w), velocity: velocity}
}

// Emit implements Sink
func (w *Writer) Emit(events []detector.FireEvent) error {
	if len(events) == 0 {
		return nil
	}
	w.line = appendLines(w.line[:0], events, w.velocity)
	if _, err := w.w.Write(w.line); err != nil {
		return fmt.Errorf("failed to write events: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush events: %w", err)
	}
	return nil
}

// Close flushes pending output. The underlying writer is left open.
func (w *Writer) Close() error {
	return w.w.Flush()
}
