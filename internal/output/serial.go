package output

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/linuxmatters/bang/internal/detector"
)

// DefaultBaud is used when no baud rate is configured
const DefaultBaud = 115200

// SerialPort is the subset of a serial connection the sink needs, so tests
// can stand in for hardware.
type SerialPort interface {
	io.ReadWriteCloser
}

// Serial writes events as text lines to a serial device, typically a
// microcontroller driving lights or solenoids.
type Serial struct {
	name     string
	port     SerialPort
	velocity bool
	line     []byte
}

// OpenSerial opens the named serial device
func OpenSerial(name string, baud int, velocity bool) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	s := NewSerial(port, velocity)
	s.name = name
	return s, nil
}

// NewSerial wraps an already open port
func NewSerial(port SerialPort, velocity bool) *Serial {
	return &Serial{port: port, velocity: velocity}
}

// Emit implements Sink. A batch goes out in a single write.
func (s *Serial) Emit(events []detector.FireEvent) error {
	if len(events) == 0 {
		return nil
	}
	if s.port == nil {
		return fmt.Errorf("serial port %s is closed", s.name)
	}
	s.line = appendLines(s.line[:0], events, s.velocity)
	if _, err := s.port.Write(s.line); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

// Close implements Sink
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
