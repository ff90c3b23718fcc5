// Package audio provides the sample sources the detector reads from: decoded
// audio files and live capture devices. Every source delivers interleaved
// signed 8-bit samples.
package audio

import "errors"

// Source is a stream of interleaved signed 8-bit samples.
type Source interface {
	// SampleRate of the stream in Hz.
	SampleRate() int
	// Channels per frame.
	Channels() int
	// Read fills dst with interleaved samples and returns how many were
	// written. It blocks until at least one sample is available and may return
	// fewer than len(dst). io.EOF marks the end of the stream.
	Read(dst []int8) (int, error)
	// Close releases the underlying file or device.
	Close() error
}

// Metadata describes an opened source
type Metadata struct {
	Duration   float64 // seconds, 0 when unknown (live capture)
	SampleRate int
	Channels   int
	BitDepth   int    // bits per sample before conversion to 8-bit
	Format     string // "wav", "aiff", "mp3", "ogg" or "capture"
}

var (
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrInvalidFile         = errors.New("invalid audio file")
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth")
	ErrClosed              = errors.New("source closed")
)
