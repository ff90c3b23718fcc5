// Package output delivers fire events to the places that act on them: a
// terminal or pipe, a serial line, or websocket clients.
package output

import (
	"errors"
	"strconv"

	"github.com/linuxmatters/bang/internal/detector"
)

// Sink receives the events of each processed buffer, in order
type Sink interface {
	Emit(events []detector.FireEvent) error
	Close() error
}

// appendLines renders events one per line into dst. With velocity the masked
// level follows the message, separated by a space.
func appendLines(dst []byte, events []detector.FireEvent, velocity bool) []byte {
	for _, ev := range events {
		dst = append(dst, ev.Message...)
		if velocity {
			dst = append(dst, ' ')
			dst = strconv.AppendUint(dst, uint64(ev.Level), 10)
		}
		dst = append(dst, '\n')
	}
	return dst
}

// Multi fans events out to several sinks. Every sink sees every batch even
// when an earlier one fails.
type Multi []Sink

// Emit implements Sink
func (m Multi) Emit(events []detector.FireEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
